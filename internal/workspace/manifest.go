package workspace

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest describes which parts of the vendored material kit get synced into
// each project workspace. It lives as manifest.yaml at the kit root so the
// kit can evolve without a code change.
type Manifest struct {
	Directories []string `yaml:"directories"`
	Files       []string `yaml:"files"`
}

// DefaultManifest covers the stock kit layout, used when the kit ships
// without a manifest.
func DefaultManifest() Manifest {
	return Manifest{
		Directories: []string{"specs_docs", "system_prompts", "requires_docs", "scripts"},
		Files:       []string{"工作流程.md", "执行计划.md"},
	}
}

// LoadManifest reads manifest.yaml from the kit root. A missing file falls
// back to DefaultManifest; a malformed one is an error.
func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultManifest(), nil
		}
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, err
	}
	if len(m.Directories) == 0 && len(m.Files) == 0 {
		return DefaultManifest(), nil
	}
	return m, nil
}
