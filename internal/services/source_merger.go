package services

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
)

// SourceMerger runs the vendored merge script that folds the generated
// source files into the consolidated source document required in the
// application package. A non-zero exit fails the run; a partial source
// document is worse than an explicit failure.
type SourceMerger interface {
	Merge(ctx context.Context, projectDir string) error
}

type sourceMerger struct {
	log    *logger.Logger
	python string
}

func NewSourceMerger(baseLog *logger.Logger, pythonBin string) SourceMerger {
	if pythonBin == "" {
		pythonBin = "python3"
	}
	return &sourceMerger{
		log:    baseLog.With("service", "SourceMerger"),
		python: pythonBin,
	}
}

func (m *sourceMerger) Merge(ctx context.Context, projectDir string) error {
	script := filepath.Join(projectDir, "scripts", "generators", "merge_all_simple.py")
	cmd := exec.CommandContext(ctx, m.python, script)
	cmd.Dir = projectDir

	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("源代码合并失败：%s", detail)
	}
	m.log.Debug("source merge completed", "project_dir", projectDir)
	return nil
}
