// Package copyright_build generates a complete software-copyright material
// package: staged design documents, frontend/database/backend source, the
// user manual and the registration form, all archived into one zip. Document
// stages degrade to built-in fallbacks when extraction fails; source stages
// always leave usable files in the archive.
package copyright_build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/jobs/runtime"
	"github.com/teachflow/teachflow-backend/internal/parse"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/platform/openai"
	"github.com/teachflow/teachflow-backend/internal/prompts"
	"github.com/teachflow/teachflow-backend/internal/repos"
	"github.com/teachflow/teachflow-backend/internal/services"
	"github.com/teachflow/teachflow-backend/internal/workspace"
)

type NewClientFunc func(log *logger.Logger, cfg openai.Config) (openai.Client, error)

type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	users     repos.UserRepo
	projects  repos.CopyrightProjectRepo
	ws        *workspace.Manager
	merger    services.SourceMerger
	newClient NewClientFunc
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	users repos.UserRepo,
	projects repos.CopyrightProjectRepo,
	ws *workspace.Manager,
	merger services.SourceMerger,
	newClient NewClientFunc,
) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("pipeline", "copyright_build"),
		users:     users,
		projects:  projects,
		ws:        ws,
		merger:    merger,
		newClient: newClient,
	}
}

func (p *Pipeline) Type() string { return domain.JobTypeCopyrightBuild }

// run holds the per-execution state threaded through the stages.
type run struct {
	jc         *runtime.Context
	client     openai.Client
	projectDir string
	cfg        workspace.ProjectConfig
	variables  map[string]string
}

// runStage renders one vendored stage template and executes it against the
// model at the standard generation temperature.
func (p *Pipeline) runStage(r *run, stage, userPrompt string) (string, error) {
	tmpl, err := p.ws.StagePrompt(prompts.StagePromptFiles[stage])
	if err != nil {
		return "", err
	}
	system := prompts.RenderPrompt(tmpl, r.variables)
	return r.client.RunPrompt(r.jc.Ctx, system, userPrompt, openai.Options{Temperature: 0.7})
}

func (p *Pipeline) writeDoc(r *run, relPath, content string) error {
	target := filepath.Join(r.projectDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create doc dir %s: %w", relPath, err)
	}
	if err := os.WriteFile(target, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	return nil
}

func (p *Pipeline) readDoc(r *run, relPath string) string {
	raw, err := os.ReadFile(filepath.Join(r.projectDir, filepath.FromSlash(relPath)))
	if err != nil {
		return ""
	}
	return string(raw)
}

// extractInsights pulls module and innovation lists out of the framework
// document. Extraction is advisory; failure degrades to empty values instead
// of failing the run.
func (p *Pipeline) extractInsights(r *run, frameworkDoc string) (moduleList, innovationPoints string) {
	raw, err := r.client.RunPrompt(r.jc.Ctx, prompts.FrameworkInsightsSystem,
		prompts.BuildFrameworkInsightsPrompt(frameworkDoc), openai.Options{Temperature: 0.2})
	if err != nil {
		p.log.Warn("framework insight extraction failed", "job_id", r.jc.Job.ID, "error", err)
		return "", ""
	}
	obj, err := parse.DecodeObject(raw)
	if err != nil {
		p.log.Warn("framework insight response not JSON", "job_id", r.jc.Job.ID)
		return "", ""
	}
	return joinStringList(obj["module_list"]), joinStringList(obj["innovation_points"])
}

func joinStringList(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, "、")
}

// extractPages pulls the page plan out of the page-list document, degrading
// to the default page set.
func (p *Pipeline) extractPages(r *run, pageDoc string) []workspace.PageItem {
	raw, err := r.client.RunPrompt(r.jc.Ctx, prompts.PageItemsSystem,
		prompts.BuildPageItemsPrompt(pageDoc), openai.Options{Temperature: 0.2})
	if err != nil {
		p.log.Warn("page extraction failed, using defaults", "job_id", r.jc.Job.ID, "error", err)
		return workspace.DefaultPages()
	}
	list, err := parse.DecodeObjectList(raw)
	if err != nil || len(list) == 0 {
		p.log.Warn("page extraction response unusable, using defaults", "job_id", r.jc.Job.ID)
		return workspace.DefaultPages()
	}
	pages := make([]workspace.PageItem, 0, len(list))
	for _, item := range list {
		page := workspace.PageItem{}
		page.Name, _ = item["name"].(string)
		page.Path, _ = item["path"].(string)
		page.File, _ = item["file"].(string)
		page.Description, _ = item["description"].(string)
		if page.Name == "" && page.File == "" {
			continue
		}
		pages = append(pages, page)
	}
	if len(pages) == 0 {
		return workspace.DefaultPages()
	}
	return pages
}

// writeSourceStage writes model-proposed file blocks and reports which of
// them landed under the given source subtree.
func (p *Pipeline) writeSourceStage(r *run, content, subtree string) ([]string, error) {
	blocks := parse.ParseFileBlocks(content)
	written, err := p.ws.SafeWriteFiles(r.projectDir, blocks)
	if err != nil {
		return nil, err
	}
	var matched []string
	for _, rel := range written {
		if strings.HasPrefix(rel, subtree) {
			matched = append(matched, rel)
		}
	}
	return matched, nil
}

func hasHTML(paths []string) bool {
	for _, p := range paths {
		if strings.HasSuffix(strings.ToLower(p), ".html") {
			return true
		}
	}
	return false
}

func (p *Pipeline) Run(jc *runtime.Context) error {
	jc.Progress("preparing", 5, "正在准备工作目录...")

	projectID, ok := jc.PayloadUUID("project_id")
	if !ok {
		jc.Fail(domain.StageError, fmt.Errorf("缺少项目参数"))
		return nil
	}

	project, err := p.projects.GetByIDForOwner(jc.Ctx, nil, jc.Job.OwnerUserID, projectID)
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	if project == nil {
		jc.Fail(domain.StageError, fmt.Errorf("项目不存在"))
		return nil
	}
	if strings.TrimSpace(project.RequirementsText) == "" {
		jc.Fail(domain.StageError, fmt.Errorf("需求文档不能为空"))
		return nil
	}

	user, err := p.users.GetByID(jc.Ctx, nil, jc.Job.OwnerUserID)
	if err != nil || user == nil {
		jc.Fail(domain.StageError, fmt.Errorf("用户不存在"))
		return nil
	}
	if !user.HasAIConfig() {
		jc.Fail(domain.StageError, fmt.Errorf("请先配置 AI"))
		return nil
	}

	client, err := p.newClient(p.log, openai.Config{
		APIKey:  user.AIAPIKey,
		BaseURL: user.AIBaseURL,
		Model:   user.AIModelName,
	})
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}

	projectDir, err := p.ws.Prepare(project.ID)
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	systemName := project.EffectiveSystemName()
	if _, _, _, err := p.ws.WriteProjectDocuments(projectDir, workspace.ProjectDocs{
		SystemName:       systemName,
		Domain:           project.Domain,
		Description:      project.Description,
		RequirementsText: project.RequirementsText,
		UIDescription:    project.UIDescription,
		TechDescription:  project.TechDescription,
		IncludeUIDesc:    project.IncludeUIDesc,
		IncludeTechDesc:  project.IncludeTechDesc,
	}); err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	cfg, err := p.ws.BuildProjectConfig(projectDir, workspace.ConfigInput{
		SystemName:      systemName,
		SoftwareAbbr:    project.SoftwareAbbr,
		GenerationMode:  domain.SanitizeGenerationMode(project.GenerationMode),
		IncludeUIDesc:   project.IncludeUIDesc,
		IncludeTechDesc: project.IncludeTechDesc,
	})
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}

	r := &run{
		jc:         jc,
		client:     client,
		projectDir: projectDir,
		cfg:        cfg,
		variables: map[string]string{
			"title":           systemName,
			"short_title":     cfg.Str("short_title"),
			"front":           cfg.Str("front"),
			"backend":         cfg.Str("backend"),
			"ui_design_style": cfg.Str("ui_design_style"),
			"system_name":     systemName,
			"module_list":     "",
			"innovation":      "",
		},
	}

	requirementsText := p.readDoc(r, cfg.Str("requirements_description"))
	techStackText := p.readDoc(r, cfg.Str("dev_tech_stack"))
	uiSpecText := p.readDoc(r, cfg.Str("ui_design_spec"))

	// Stage 1: framework design document.
	jc.Progress("generating", 15, "正在生成框架设计文档...")
	frameworkDoc, err := p.runStage(r, prompts.StageFramework,
		prompts.BuildFrameworkUser(requirementsText, techStackText))
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	if err := p.writeDoc(r, cfg.Str("framework_design"), frameworkDoc); err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	moduleList, innovationPoints := p.extractInsights(r, frameworkDoc)
	r.variables["module_list"] = moduleList
	r.variables["innovation"] = innovationPoints

	// Stage 2: page plan.
	jc.Progress("generating", 30, "正在生成页面规划...")
	pageDoc, err := p.runStage(r, prompts.StagePageList, prompts.BuildPageListUser(frameworkDoc))
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	if err := p.writeDoc(r, cfg.Str("page_list"), pageDoc); err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	pages := p.extractPages(r, pageDoc)

	// Stage 3: UI design document.
	jc.Progress("generating", 45, "正在生成界面设计方案...")
	uiDoc, err := p.runStage(r, prompts.StageUIDesign,
		prompts.BuildUIDesignUser(pageDoc, frameworkDoc, uiSpecText))
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	if err := p.writeDoc(r, cfg.Str("ui_design"), uiDoc); err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}

	// Stage 4: frontend source. The frontend must contain at least one HTML
	// page; anything less falls back to the generated static pages.
	jc.Progress("generating", 55, "正在生成前端代码...")
	pagesJSON, _ := json.Marshal(pages)
	frontendOut, err := p.runStage(r, prompts.StageFrontend,
		prompts.BuildFrontendUser(string(pagesJSON), uiDoc))
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	frontFiles, err := p.writeSourceStage(r, frontendOut, "output_sourcecode/front/")
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	if !hasHTML(frontFiles) {
		p.log.Warn("frontend stage produced no html, writing fallback pages", "job_id", jc.Job.ID)
		if err := p.ws.WriteFallbackFrontend(projectDir, systemName, pages); err != nil {
			jc.Fail(domain.StageError, err)
			return nil
		}
	}

	// Stage 5: database schema.
	jc.Progress("generating", 65, "正在生成数据库代码...")
	databaseOut, err := p.runStage(r, prompts.StageDatabase,
		prompts.BuildDatabaseUser(frameworkDoc, pageDoc, uiDoc))
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	dbFiles, err := p.writeSourceStage(r, databaseOut, "output_sourcecode/db/")
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	if len(dbFiles) == 0 {
		p.log.Warn("database stage produced no files, writing fallback schema", "job_id", jc.Job.ID)
		if err := p.ws.WriteFallbackDatabase(projectDir, systemName); err != nil {
			jc.Fail(domain.StageError, err)
			return nil
		}
	}
	databaseSchema := p.readDoc(r, cfg.Str("database_schema"))

	// Stage 6: backend source.
	jc.Progress("generating", 75, "正在生成后端代码...")
	backendOut, err := p.runStage(r, prompts.StageBackend,
		prompts.BuildBackendUser(frameworkDoc, pageDoc, databaseSchema))
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	backendFiles, err := p.writeSourceStage(r, backendOut, "output_sourcecode/backend/")
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	if len(backendFiles) == 0 {
		p.log.Warn("backend stage produced no files, writing fallback app", "job_id", jc.Job.ID)
		if err := p.ws.WriteFallbackBackend(projectDir, systemName); err != nil {
			jc.Fail(domain.StageError, err)
			return nil
		}
	}

	// Stage 7: user manual.
	jc.Progress("rendering", 82, "正在生成用户手册...")
	manual, err := p.runStage(r, prompts.StageUserManual,
		prompts.BuildUserManualUser(requirementsText, frameworkDoc, pageDoc, uiDoc))
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	if err := p.writeDoc(r, "output_docs/用户手册.txt", manual); err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}

	// Stage 8: registration form.
	jc.Progress("rendering", 88, "正在生成软件著作权登记信息表...")
	form, err := p.runStage(r, prompts.StageApplicationForm,
		prompts.BuildApplicationFormUser(requirementsText, frameworkDoc))
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	if err := p.writeDoc(r, cfg.Str("copyright_application"), form); err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}

	if project.IncludeSourcecode {
		jc.Progress("saving", 92, "正在合并源代码文档...")
		if err := p.merger.Merge(jc.Ctx, projectDir); err != nil {
			jc.Fail(domain.StageError, err)
			return nil
		}
	}

	jc.Progress("saving", 96, "正在打包生成材料...")
	zipPath := filepath.Join(p.ws.ZipDir(project.ID), workspace.ZipName(project.ID, time.Now()))
	if err := p.ws.ZipProject(projectDir, zipPath); err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	if err := jc.SetOutputPath(zipPath); err != nil {
		p.log.Warn("record output path failed", "error", err)
	}

	jc.Succeed("completed", "软著材料生成完成", map[string]any{
		"zip_path":     zipPath,
		"project_dir":  projectDir,
		"system_name":  systemName,
		"front_files":  len(frontFiles),
		"module_list":  moduleList,
		"page_count":   len(pages),
		"merge_script": project.IncludeSourcecode,
	})
	return nil
}
