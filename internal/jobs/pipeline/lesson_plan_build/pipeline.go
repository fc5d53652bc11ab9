// Package lesson_plan_build generates one structured lesson plan from the
// course's teaching plan. The model produces the lesson JSON; the time budget
// is then verified exactly and, when violated, repaired through a bounded
// reconciliation loop before the document is rendered and stored.
package lesson_plan_build

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/jobs/runtime"
	"github.com/teachflow/teachflow-backend/internal/parse"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/planparams"
	"github.com/teachflow/teachflow-backend/internal/platform/openai"
	"github.com/teachflow/teachflow-backend/internal/prompts"
	"github.com/teachflow/teachflow-backend/internal/repos"
	"github.com/teachflow/teachflow-backend/internal/services"
)

// maxRepairs bounds the reconciliation loop. Two rounds catch nearly all
// arithmetic slips; a model that fails three times in a row is not going to
// converge.
const maxRepairs = 2

type NewClientFunc func(log *logger.Logger, cfg openai.Config) (openai.Client, error)

type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	users     repos.UserRepo
	courses   repos.CourseRepo
	documents repos.CourseDocumentRepo
	renderer  services.DocxRenderer
	newClient NewClientFunc
}

func New(
	db *gorm.DB,
	baseLog *logger.Logger,
	users repos.UserRepo,
	courses repos.CourseRepo,
	documents repos.CourseDocumentRepo,
	renderer services.DocxRenderer,
	newClient NewClientFunc,
) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("pipeline", "lesson_plan_build"),
		users:     users,
		courses:   courses,
		documents: documents,
		renderer:  renderer,
		newClient: newClient,
	}
}

func (p *Pipeline) Type() string { return domain.JobTypeLessonPlanBuild }

// planFullText flattens the stored schedule into the prose form the lesson
// prompt expects.
func planFullText(params planparams.PlanParams) string {
	var b strings.Builder
	for _, item := range params.Schedule {
		fmt.Fprintf(&b, "第%d次课（第%d周，%d学时）：%s\n", item.Order, item.Week, item.Hour, item.Title)
		if item.Tasks != "" {
			b.WriteString(item.Tasks)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func lessonContents(plan map[string]any) []string {
	rawLessons, _ := plan["new_lessons"].([]any)
	out := make([]string, 0, len(rawLessons))
	for _, raw := range rawLessons {
		item, ok := raw.(map[string]any)
		if !ok {
			out = append(out, "")
			continue
		}
		content, _ := item["content"].(string)
		out = append(out, content)
	}
	return out
}

// reconcile enforces the time-budget law on the generated plan, asking the
// model for corrected times up to maxRepairs times. Content fields are never
// touched; only review_time and per-item times are merged back.
func (p *Pipeline) reconcile(jc *runtime.Context, client openai.Client, plan map[string]any, hours int) error {
	budgetErr := parse.CheckTimeAllocation(plan, hours)
	for round := 1; budgetErr != nil && round <= maxRepairs; round++ {
		p.log.Warn("time allocation invalid, requesting repair",
			"job_id", jc.Job.ID, "round", round, "reason", budgetErr.Error())
		jc.Progress("generating", 60, fmt.Sprintf("时间分配校正中（第 %d 次）...", round))

		repairPrompt := prompts.BuildReallocatePrompt(hours, lessonContents(plan))
		raw, err := client.RunPrompt(jc.Ctx, prompts.ReallocateSystem, repairPrompt, openai.Options{Temperature: 0.3})
		if err != nil {
			return err
		}
		repaired, err := parse.DecodeObject(raw)
		if err != nil {
			budgetErr = err
			continue
		}
		parse.MergeRepairedTimes(plan, repaired)
		budgetErr = parse.CheckTimeAllocation(plan, hours)
	}
	return budgetErr
}

func (p *Pipeline) Run(jc *runtime.Context) error {
	jc.Progress("analyzing", 10, "正在分析授课计划...")

	courseID, ok := jc.PayloadUUID("course_id")
	if !ok {
		jc.Fail(domain.StageError, fmt.Errorf("缺少课程参数"))
		return nil
	}
	sequence, ok := jc.PayloadInt("sequence")
	if !ok || sequence < 1 {
		jc.Fail(domain.StageError, fmt.Errorf("无效的课次参数"))
		return nil
	}

	course, err := p.courses.GetByIDForOwner(jc.Ctx, nil, jc.Job.OwnerUserID, courseID)
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	if course == nil {
		jc.Fail(domain.StageError, fmt.Errorf("课程不存在"))
		return nil
	}

	user, err := p.users.GetByID(jc.Ctx, nil, jc.Job.OwnerUserID)
	if err != nil || user == nil {
		jc.Fail(domain.StageError, fmt.Errorf("用户不存在"))
		return nil
	}
	if !user.HasAIConfig() {
		jc.Fail(domain.StageError, fmt.Errorf("请先配置 AI API"))
		return nil
	}

	planDoc, err := p.documents.GetPlan(jc.Ctx, nil, courseID)
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	if planDoc == nil {
		jc.Fail(domain.StageError, fmt.Errorf("请先生成授课计划"))
		return nil
	}

	var params planparams.PlanParams
	if len(planDoc.PlanParams) > 0 {
		if err := json.Unmarshal(planDoc.PlanParams, &params); err != nil {
			jc.Fail(domain.StageError, fmt.Errorf("授课计划参数解析失败，请重新生成授课计划"))
			return nil
		}
	}
	if len(params.Schedule) == 0 {
		jc.Fail(domain.StageError, fmt.Errorf("授课计划不含课次安排，请重新生成授课计划"))
		return nil
	}

	hourPerClass := 0
	if params.HourPerClass != nil {
		hourPerClass = *params.HourPerClass
	}
	if hourPerClass <= 0 {
		hourPerClass = planparams.FallbackHourPerClass(course.TotalHours, len(params.Schedule))
	}

	// Strict mode needs both a matched plan row and a resolvable hour count;
	// without them the model infers fields from the plan text.
	item := params.Item(sequence)
	hours := hourPerClass
	if item != nil && item.Hour > 0 {
		hours = item.Hour
	}
	if hours <= 0 {
		jc.Fail(domain.StageError, fmt.Errorf("无法确定本次课学时，请重新生成授课计划"))
		return nil
	}
	strict := item != nil

	var planItem, systemFields map[string]any
	if strict {
		planItem = map[string]any{
			"week":  item.Week,
			"order": item.Order,
			"title": item.Title,
			"tasks": item.Tasks,
			"hour":  item.Hour,
		}
		systemFields = map[string]any{
			"project_name": item.Title,
			"week":         item.Week,
			"sequence":     sequence,
			"hours":        hours,
			"total_hours":  params.CumulativeHours(sequence, hourPerClass),
		}
	}

	jc.Progress("retrieving", 30, "正在整理课程上下文...")

	courseContext := fmt.Sprintf("课程名称：%s\n授课班级：%s\n总学时：%d\n课程目录：\n%s",
		course.Name, course.ClassName, course.TotalHours, course.CourseCatalog)

	client, err := p.newClient(p.log, openai.Config{
		APIKey:  user.AIAPIKey,
		BaseURL: user.AIBaseURL,
		Model:   user.AIModelName,
	})
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}

	jc.Progress("generating", 50, "正在生成教案内容...")

	prompt := prompts.BuildLessonPlanPrompt(prompts.LessonPlanInput{
		Sequence:         sequence,
		PlanItem:         planItem,
		SystemFields:     systemFields,
		DocumentFullText: planFullText(params),
		CourseContext:    courseContext,
		Strict:           strict,
	})
	raw, err := client.RunPrompt(jc.Ctx, prompts.LessonPlanSystem, prompt, openai.Options{Temperature: 0.7})
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	plan, err := parse.DecodeObject(raw)
	if err != nil {
		jc.Fail(domain.StageError, fmt.Errorf("AI 服务响应异常（返回空内容或非 JSON）。请检查 Base URL、模型名与网络连通性，并确认服务支持 OpenAI 兼容接口。"))
		return nil
	}

	if err := p.reconcile(jc, client, plan, hours); err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}

	// The identity fields are system-computed; whatever the model echoed back
	// is replaced before the plan reaches the renderer or the database.
	if strict {
		for key, value := range systemFields {
			plan[key] = value
		}
	} else {
		plan["sequence"] = sequence
	}

	jc.Progress("generating", 70, "教案内容生成完成")

	jc.Progress("rendering", 85, "正在渲染 Word 文档...")

	fileURL, err := p.renderer.RenderToFile(jc.Ctx, services.TemplateLessonPlan, plan, course.ID)
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}

	jc.Progress("saving", 95, "正在保存到数据库...")

	contentJSON, _ := json.Marshal(plan)
	doc := &domain.CourseDocument{
		CourseID:     course.ID,
		DocType:      domain.DocTypeLesson,
		Title:        fmt.Sprintf("教案 - 第%d次课", sequence),
		Content:      datatypes.JSON(contentJSON),
		FileURL:      fileURL,
		LessonNumber: sequence,
	}
	if _, err := p.documents.Upsert(jc.Ctx, nil, doc); err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}

	if err := jc.SetOutputPath(fileURL); err != nil {
		p.log.Warn("record output path failed", "error", err)
	}
	jc.Succeed("completed", "教案生成完成！", map[string]any{
		"document_id":   doc.ID,
		"file_url":      fileURL,
		"lesson_number": sequence,
	})
	return nil
}
