package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
)

// ErrTemplateNotFound is returned when the render service does not know the
// requested template; this fails the whole generation rather than producing a
// document with missing sections.
var ErrTemplateNotFound = errors.New("模板文件未找到")

// Well-known document templates.
const (
	TemplateTeachingPlan = "授课计划模板.docx"
	TemplateLessonPlan   = "教案模板.docx"
)

// DocxRenderer renders Word documents from named templates. Rendering runs in
// a separate service that owns the .docx template kit; this client posts the
// data payload and stores the returned document under the uploads tree.
type DocxRenderer interface {
	Render(ctx context.Context, templateName string, data map[string]any) ([]byte, error)
	RenderToFile(ctx context.Context, templateName string, data map[string]any, courseID uuid.UUID) (fileURL string, err error)
}

type DocxRendererConfig struct {
	BaseURL      string
	GeneratedDir string
}

type docxRenderer struct {
	log        *logger.Logger
	cfg        DocxRendererConfig
	httpClient *http.Client
}

func NewDocxRenderer(baseLog *logger.Logger, cfg DocxRendererConfig) DocxRenderer {
	return &docxRenderer{
		log:        baseLog.With("service", "DocxRenderer"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type renderRequest struct {
	Template string         `json:"template"`
	Data     map[string]any `json:"data"`
}

func (r *docxRenderer) Render(ctx context.Context, templateName string, data map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(renderRequest{Template: templateName, Data: data}); err != nil {
		return nil, fmt.Errorf("encode render request: %w", err)
	}
	url := strings.TrimRight(r.cfg.BaseURL, "/") + "/render"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateName)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("render service http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return io.ReadAll(resp.Body)
}

// RenderToFile renders and stores the document under the generated-uploads
// directory, returning the public file URL. Filenames carry the template stem
// and a timestamp so history is preserved on disk even when the DB row is
// overwritten.
func (r *docxRenderer) RenderToFile(ctx context.Context, templateName string, data map[string]any, courseID uuid.UUID) (string, error) {
	raw, err := r.Render(ctx, templateName, data)
	if err != nil {
		return "", err
	}
	stem := strings.TrimSuffix(templateName, filepath.Ext(templateName))
	filename := fmt.Sprintf("%s_%s_%d.docx", stem, courseID.String(), time.Now().Unix())

	if err := os.MkdirAll(r.cfg.GeneratedDir, 0o755); err != nil {
		return "", fmt.Errorf("create generated dir: %w", err)
	}
	target := filepath.Join(r.cfg.GeneratedDir, filename)
	if err := os.WriteFile(target, raw, 0o644); err != nil {
		return "", fmt.Errorf("write rendered document: %w", err)
	}
	return "/uploads/generated/" + filename, nil
}
