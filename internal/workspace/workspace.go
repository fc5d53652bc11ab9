// Package workspace manages the on-disk project directories that copyright
// material generation writes into: vendored kit sync, generated-output
// resets, model-proposed file writes, and final archiving.
package workspace

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/teachflow/teachflow-backend/internal/parse"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
)

// Config locates the vendored material kit and the data roots.
type Config struct {
	VendorDir   string
	ProjectsDir string
	ZipsDir     string
}

type Manager struct {
	log *logger.Logger
	cfg Config
}

func NewManager(log *logger.Logger, cfg Config) *Manager {
	return &Manager{log: log.With("service", "WorkspaceManager"), cfg: cfg}
}

func (m *Manager) ProjectDir(projectID uuid.UUID) string {
	return filepath.Join(m.cfg.ProjectsDir, projectID.String())
}

func (m *Manager) ZipDir(projectID uuid.UUID) string {
	return filepath.Join(m.cfg.ZipsDir, projectID.String())
}

// generatedDirs are wiped on every run so stale output from a previous
// attempt never leaks into a fresh archive.
var generatedDirs = []string{"process_docs", "output_docs", "output_sourcecode"}

var sourcecodeSubdirs = []string{"front", "backend", "db"}

// Prepare creates the project workspace, syncs the vendored kit into it per
// the kit manifest, and resets all generated-output directories.
func (m *Manager) Prepare(projectID uuid.UUID) (string, error) {
	projectDir := m.ProjectDir(projectID)
	for _, sub := range []string{"requires_docs", "specs_docs", "system_prompts", "scripts"} {
		if err := os.MkdirAll(filepath.Join(projectDir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create workspace dir: %w", err)
		}
	}

	manifest, err := LoadManifest(filepath.Join(m.cfg.VendorDir, "manifest.yaml"))
	if err != nil {
		return "", fmt.Errorf("load kit manifest: %w", err)
	}
	for _, dir := range manifest.Directories {
		if err := syncDirectory(filepath.Join(m.cfg.VendorDir, dir), filepath.Join(projectDir, dir)); err != nil {
			return "", fmt.Errorf("sync kit dir %s: %w", dir, err)
		}
	}
	for _, name := range manifest.Files {
		src := filepath.Join(m.cfg.VendorDir, name)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := copyFile(src, filepath.Join(projectDir, name)); err != nil {
			return "", fmt.Errorf("sync kit file %s: %w", name, err)
		}
	}

	if err := m.ResetGeneratedDirs(projectDir); err != nil {
		return "", err
	}
	return projectDir, nil
}

// ResetGeneratedDirs removes and recreates every generated-output directory.
func (m *Manager) ResetGeneratedDirs(projectDir string) error {
	for _, dir := range generatedDirs {
		target := filepath.Join(projectDir, dir)
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("reset %s: %w", dir, err)
		}
		if err := os.MkdirAll(target, 0o755); err != nil {
			return fmt.Errorf("recreate %s: %w", dir, err)
		}
	}
	for _, sub := range sourcecodeSubdirs {
		if err := os.MkdirAll(filepath.Join(projectDir, "output_sourcecode", sub), 0o755); err != nil {
			return fmt.Errorf("recreate output_sourcecode/%s: %w", sub, err)
		}
	}
	return nil
}

func syncDirectory(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return copyFile(src, dst)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := syncDirectory(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// SafeWriteFiles writes model-proposed file blocks under root. Paths that
// are absolute or escape the root are skipped silently; only the written
// relative paths are returned.
func (m *Manager) SafeWriteFiles(root string, blocks []parse.FileBlock) ([]string, error) {
	var written []string
	for _, block := range blocks {
		rel, ok := parse.SafeRelPath(block.Path)
		if !ok {
			m.log.Warn("skipping unsafe file path", "path", block.Path)
			continue
		}
		target := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return written, fmt.Errorf("create dir for %s: %w", rel, err)
		}
		content := strings.TrimSpace(block.Content) + "\n"
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", rel, err)
		}
		written = append(written, rel)
	}
	return written, nil
}

// ProjectDocs are the user-supplied documents materialized into the
// workspace before generation starts.
type ProjectDocs struct {
	SystemName       string
	Domain           string
	Description      string
	RequirementsText string
	UIDescription    string
	TechDescription  string
	IncludeUIDesc    bool
	IncludeTechDesc  bool
}

// WriteProjectDocuments writes the requirements, UI-spec and tech-stack
// documents into requires_docs. Returns the three paths; UI and tech paths
// may not exist when their include flags are off.
func (m *Manager) WriteProjectDocuments(projectDir string, docs ProjectDocs) (reqPath, uiPath, techPath string, err error) {
	reqPath = filepath.Join(projectDir, "requires_docs", "需求文档.md")
	header := []string{fmt.Sprintf("# %s 需求文档", docs.SystemName)}
	if docs.Domain != "" {
		header = append(header, fmt.Sprintf("\n**所属领域**：%s", docs.Domain))
	}
	if docs.Description != "" {
		header = append(header, fmt.Sprintf("\n**系统简介**：%s", docs.Description))
	}
	header = append(header, "\n## 需求描述\n")
	body := strings.Join(header, "\n") + strings.TrimSpace(docs.RequirementsText) + "\n"
	if err = os.WriteFile(reqPath, []byte(body), 0o644); err != nil {
		return "", "", "", fmt.Errorf("write requirements doc: %w", err)
	}

	uiPath = filepath.Join(projectDir, "requires_docs", "UI设计规范.md")
	if docs.IncludeUIDesc {
		content := strings.TrimSpace(docs.UIDescription)
		if content == "" {
			content = "请补充 UI 设计规范描述。"
		}
		if err = os.WriteFile(uiPath, []byte(content+"\n"), 0o644); err != nil {
			return "", "", "", fmt.Errorf("write ui spec doc: %w", err)
		}
	}

	techPath = filepath.Join(projectDir, "requires_docs", "技术栈说明文档.md")
	if docs.IncludeTechDesc {
		content := strings.TrimSpace(docs.TechDescription)
		if content == "" {
			content = "请补充技术栈说明。"
		}
		if err = os.WriteFile(techPath, []byte(content+"\n"), 0o644); err != nil {
			return "", "", "", fmt.Errorf("write tech stack doc: %w", err)
		}
	}
	return reqPath, uiPath, techPath, nil
}

// ProjectConfig is the rendered ai-copyright-config.json content, keyed by
// the placeholder names the stage templates use.
type ProjectConfig map[string]any

// ConfigInput carries the project fields merged over the kit's base config.
type ConfigInput struct {
	SystemName      string
	SoftwareAbbr    string
	GenerationMode  string
	IncludeUIDesc   bool
	IncludeTechDesc bool
}

// BuildProjectConfig merges project settings over the vendored base config
// and writes the result as ai-copyright-config.json in the workspace.
func (m *Manager) BuildProjectConfig(projectDir string, in ConfigInput) (ProjectConfig, error) {
	base := ProjectConfig{}
	raw, err := os.ReadFile(filepath.Join(m.cfg.VendorDir, "ai-copyright-config.json"))
	if err == nil {
		if err := json.Unmarshal(raw, &base); err != nil {
			return nil, fmt.Errorf("parse kit base config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read kit base config: %w", err)
	}

	techStackPath := "specs_docs/tech_stack_specs/技术栈说明文档_默认.md"
	if in.IncludeTechDesc {
		techStackPath = "requires_docs/技术栈说明文档.md"
	}
	uiDesignSpec := "specs_docs/ui_design_specs/01-UI设计规范_默认_Corporate.md"
	if in.IncludeUIDesc {
		uiDesignSpec = "requires_docs/UI设计规范.md"
	}
	shortTitle := in.SoftwareAbbr
	if shortTitle == "" {
		shortTitle = in.SystemName
	}

	for key, value := range map[string]any{
		"front":                    "React",
		"backend":                  "Python FastAPI",
		"title":                    in.SystemName,
		"short_title":              shortTitle,
		"requirements_description": "requires_docs/需求文档.md",
		"dev_tech_stack":           techStackPath,
		"ui_design_spec":           uiDesignSpec,
		"ui_design_style":          "corporate",
		"generation_mode":          in.GenerationMode,
		"framework_design":         fmt.Sprintf("process_docs/%s_框架设计文档.md", in.SystemName),
		"page_list":                "process_docs/页面规划.md",
		"ui_design":                "process_docs/界面设计方案.md",
		"database_schema":          "output_sourcecode/db/database_schema.sql",
		"copyright_application":    "output_docs/软件著作权登记信息表.md",
	} {
		base[key] = value
	}

	rendered, err := json.MarshalIndent(base, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render project config: %w", err)
	}
	target := filepath.Join(projectDir, "ai-copyright-config.json")
	if err := os.WriteFile(target, append(rendered, '\n'), 0o644); err != nil {
		return nil, fmt.Errorf("write project config: %w", err)
	}
	return base, nil
}

// Str returns a config value rendered as a string, empty when absent.
func (c ProjectConfig) Str(key string) string {
	v, ok := c[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}

// StagePrompt reads one stage's system prompt template from the vendored kit.
func (m *Manager) StagePrompt(filename string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(m.cfg.VendorDir, "system_prompts", filename))
	if err != nil {
		return "", fmt.Errorf("read stage prompt %s: %w", filename, err)
	}
	return string(raw), nil
}
