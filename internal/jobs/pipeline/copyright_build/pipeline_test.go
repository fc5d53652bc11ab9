package copyright_build

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/jobs/runtime"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/platform/openai"
	"github.com/teachflow/teachflow-backend/internal/prompts"
	"github.com/teachflow/teachflow-backend/internal/workspace"
)

type userRepoStub struct {
	user *domain.User
}

func (s *userRepoStub) Create(ctx context.Context, tx *gorm.DB, u *domain.User) (*domain.User, error) {
	return u, nil
}
func (s *userRepoStub) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.User, error) {
	return s.user, nil
}
func (s *userRepoStub) GetByUsername(ctx context.Context, tx *gorm.DB, username string) (*domain.User, error) {
	return s.user, nil
}
func (s *userRepoStub) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

type projectRepoStub struct {
	project *domain.CopyrightProject
}

func (s *projectRepoStub) Create(ctx context.Context, tx *gorm.DB, p *domain.CopyrightProject) (*domain.CopyrightProject, error) {
	return p, nil
}
func (s *projectRepoStub) GetByIDForOwner(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) (*domain.CopyrightProject, error) {
	return s.project, nil
}
func (s *projectRepoStub) ListByOwner(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID) ([]*domain.CopyrightProject, error) {
	return nil, nil
}
func (s *projectRepoStub) UpdateFields(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}
func (s *projectRepoStub) Delete(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) error {
	return nil
}

type mergerStub struct {
	called bool
	dir    string
}

func (s *mergerStub) Merge(ctx context.Context, projectDir string) error {
	s.called = true
	s.dir = projectDir
	return nil
}

type clientStub struct {
	responses []string
	systems   []string
	users     []string
}

func (c *clientStub) RunPrompt(ctx context.Context, system, user string, opts openai.Options) (string, error) {
	c.systems = append(c.systems, system)
	c.users = append(c.users, user)
	idx := len(c.systems) - 1
	if idx >= len(c.responses) {
		return "", nil
	}
	return c.responses[idx], nil
}

func (c *clientStub) StreamChat(ctx context.Context, messages []openai.Message, onDelta func(string)) (string, error) {
	return "", nil
}

func writeStagePrompts(t *testing.T, vendorDir string) {
	t.Helper()
	dir := filepath.Join(vendorDir, "system_prompts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir system_prompts: %v", err)
	}
	for _, filename := range prompts.StagePromptFiles {
		content := "系统名称：{{title}}，前端：{{front}}，后端：{{backend}}，模块：{{module_list}}"
		if err := os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644); err != nil {
			t.Fatalf("write stage prompt %s: %v", filename, err)
		}
	}
}

func fullResponses(t *testing.T) []string {
	t.Helper()
	insights, err := json.Marshal(map[string]any{
		"module_list":       []string{"用户管理", "AI生成中心"},
		"innovation_points": []string{"一键生成全套材料"},
	})
	if err != nil {
		t.Fatalf("marshal insights: %v", err)
	}
	pageItems, err := json.Marshal([]map[string]string{
		{"name": "仪表盘", "path": "/dashboard", "file": "dashboard.html", "description": "总览页面"},
		{"name": "生成中心", "path": "/generate", "file": "generate.html", "description": "材料生成"},
	})
	if err != nil {
		t.Fatalf("marshal page items: %v", err)
	}
	return []string{
		"# 智慧教学系统 框架设计文档\n\n## 功能模块\n用户管理、AI生成中心",
		string(insights),
		"# 页面规划\n\n仪表盘、生成中心",
		string(pageItems),
		"# 界面设计方案\n\n企业风格。",
		"### FILE: output_sourcecode/front/dashboard.html\n<html><body>仪表盘</body></html>\n\n### FILE: output_sourcecode/front/generate.html\n<html><body>生成中心</body></html>",
		"### FILE: output_sourcecode/db/database_schema.sql\nCREATE TABLE sys_users (id BIGSERIAL PRIMARY KEY);",
		"### FILE: output_sourcecode/backend/app.py\nfrom fastapi import FastAPI\napp = FastAPI()",
		"# 用户手册\n\n第一章 系统简介。",
		"# 软件著作权登记信息表\n\n软件全称：智慧教学系统。",
	}
}

type fixture struct {
	pipeline  *Pipeline
	merger    *mergerStub
	ws        *workspace.Manager
	projectID uuid.UUID
}

func newFixture(t *testing.T, client *clientStub, project *domain.CopyrightProject) fixture {
	t.Helper()
	root := t.TempDir()
	vendorDir := filepath.Join(root, "vendor")
	writeStagePrompts(t, vendorDir)

	ws := workspace.NewManager(logger.NewNop(), workspace.Config{
		VendorDir:   vendorDir,
		ProjectsDir: filepath.Join(root, "projects"),
		ZipsDir:     filepath.Join(root, "zips"),
	})
	users := &userRepoStub{user: &domain.User{
		AIAPIKey:    "sk-test",
		AIBaseURL:   "https://api.example.com/v1",
		AIModelName: "gpt-4",
	}}
	merger := &mergerStub{}
	p := New(nil, logger.NewNop(), users, &projectRepoStub{project: project}, ws, merger,
		func(l *logger.Logger, cfg openai.Config) (openai.Client, error) {
			return client, nil
		})
	return fixture{pipeline: p, merger: merger, ws: ws, projectID: project.ID}
}

func newProject() *domain.CopyrightProject {
	return &domain.CopyrightProject{
		ID:                uuid.New(),
		OwnerUserID:       uuid.New(),
		Name:              "智慧教学系统",
		SystemName:        "智慧教学辅助管理系统",
		SoftwareAbbr:      "智教系统",
		Domain:            "教育信息化",
		Description:       "面向高职院校的教学材料生成系统。",
		GenerationMode:    domain.GenerationModeFast,
		IncludeSourcecode: true,
		IncludeUIDesc:     false,
		IncludeTechDesc:   false,
		RequirementsText:  "系统需支持授课计划、教案与软著材料的自动生成。",
	}
}

func newTestJob(t *testing.T, projectID uuid.UUID) *domain.GenerationJob {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"project_id": projectID.String()})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &domain.GenerationJob{
		OwnerUserID: uuid.New(),
		JobType:     domain.JobTypeCopyrightBuild,
		EntityType:  domain.EntityTypeCopyrightProject,
		EntityID:    projectID,
		Status:      domain.JobStatusRunning,
		Payload:     datatypes.JSON(raw),
	}
}

func TestRunProducesFullMaterialPackage(t *testing.T) {
	client := &clientStub{responses: fullResponses(t)}
	project := newProject()
	fx := newFixture(t, client, project)

	job := newTestJob(t, project.ID)
	jc := runtime.NewContext(context.Background(), nil, job, nil, nil)
	if err := fx.pipeline.Run(jc); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (error %q), want completed", job.Status, job.Error)
	}
	if len(client.systems) != 10 {
		t.Fatalf("client calls = %d, want 10", len(client.systems))
	}

	// Stage templates must be rendered with project variables.
	if strings.Contains(client.systems[0], "{{title}}") {
		t.Fatalf("framework system prompt not rendered: %q", client.systems[0])
	}
	if !strings.Contains(client.systems[0], "智慧教学辅助管理系统") {
		t.Fatalf("framework system prompt missing system name: %q", client.systems[0])
	}
	// Insights extracted after stage 1 must reach later stage templates.
	if !strings.Contains(client.systems[2], "用户管理、AI生成中心") {
		t.Fatalf("page-list system prompt missing module list: %q", client.systems[2])
	}

	projectDir := fx.ws.ProjectDir(project.ID)
	for _, rel := range []string{
		"process_docs/智慧教学辅助管理系统_框架设计文档.md",
		"process_docs/页面规划.md",
		"process_docs/界面设计方案.md",
		"output_sourcecode/front/dashboard.html",
		"output_sourcecode/front/generate.html",
		"output_sourcecode/db/database_schema.sql",
		"output_sourcecode/backend/app.py",
		"output_docs/用户手册.txt",
		"output_docs/软件著作权登记信息表.md",
	} {
		if _, err := os.Stat(filepath.Join(projectDir, filepath.FromSlash(rel))); err != nil {
			t.Fatalf("expected artifact %s: %v", rel, err)
		}
	}

	if !fx.merger.called {
		t.Fatalf("source merger not invoked")
	}
	if fx.merger.dir != projectDir {
		t.Fatalf("merger dir = %q, want %q", fx.merger.dir, projectDir)
	}

	entries, err := os.ReadDir(fx.ws.ZipDir(project.ID))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one archive, got %v (err %v)", entries, err)
	}
	name := entries[0].Name()
	if !strings.HasPrefix(name, project.ID.String()+"_") || !strings.HasSuffix(name, ".zip") {
		t.Fatalf("archive name = %q", name)
	}
}

func TestRunFallsBackWhenModelSkipsSourceFiles(t *testing.T) {
	responses := fullResponses(t)
	responses[3] = "这不是 JSON"             // page extraction degrades to defaults
	responses[5] = "这里没有任何文件块标记"   // frontend fallback
	responses[6] = "同样没有文件块"           // database fallback
	responses[7] = "依旧没有文件块"           // backend fallback
	client := &clientStub{responses: responses}
	project := newProject()
	fx := newFixture(t, client, project)

	job := newTestJob(t, project.ID)
	jc := runtime.NewContext(context.Background(), nil, job, nil, nil)
	if err := fx.pipeline.Run(jc); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (error %q), want completed", job.Status, job.Error)
	}

	projectDir := fx.ws.ProjectDir(project.ID)
	// Default page set produces these fallback pages.
	for _, rel := range []string{
		"output_sourcecode/front/dashboard.html",
		"output_sourcecode/front/projects.html",
		"output_sourcecode/front/help.html",
		"output_sourcecode/db/database_schema.sql",
		"output_sourcecode/backend/app.py",
	} {
		if _, err := os.Stat(filepath.Join(projectDir, filepath.FromSlash(rel))); err != nil {
			t.Fatalf("expected fallback artifact %s: %v", rel, err)
		}
	}
}

func TestRunSkipsMergeWhenSourcecodeExcluded(t *testing.T) {
	client := &clientStub{responses: fullResponses(t)}
	project := newProject()
	project.IncludeSourcecode = false
	fx := newFixture(t, client, project)

	job := newTestJob(t, project.ID)
	jc := runtime.NewContext(context.Background(), nil, job, nil, nil)
	if err := fx.pipeline.Run(jc); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (error %q), want completed", job.Status, job.Error)
	}
	if fx.merger.called {
		t.Fatalf("merger must not run when sourcecode is excluded")
	}
}

func TestRunFailsOnEmptyRequirements(t *testing.T) {
	client := &clientStub{}
	project := newProject()
	project.RequirementsText = "   "
	fx := newFixture(t, client, project)

	job := newTestJob(t, project.ID)
	jc := runtime.NewContext(context.Background(), nil, job, nil, nil)
	if err := fx.pipeline.Run(jc); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if job.Error != "需求文档不能为空" {
		t.Fatalf("error = %q", job.Error)
	}
	if len(client.systems) != 0 {
		t.Fatalf("client should not be called, got %d calls", len(client.systems))
	}
}

func TestRunFailsWithoutAIConfig(t *testing.T) {
	client := &clientStub{}
	project := newProject()
	fx := newFixture(t, client, project)
	// Strip the AI settings after fixture construction.
	fx.pipeline.users = &userRepoStub{user: &domain.User{}}

	job := newTestJob(t, project.ID)
	jc := runtime.NewContext(context.Background(), nil, job, nil, nil)
	if err := fx.pipeline.Run(jc); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if job.Error != "请先配置 AI" {
		t.Fatalf("error = %q", job.Error)
	}
}
