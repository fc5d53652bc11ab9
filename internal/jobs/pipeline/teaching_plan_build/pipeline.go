// Package teaching_plan_build generates a course teaching plan: the system
// computes the calendar frame, the model fills in teaching content, and the
// result is rendered to a Word document and stored on the course.
package teaching_plan_build

import (
	"encoding/json"
	"fmt"

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
	"github.com/teachflow/teachflow-backend/internal/scheduling"
	"github.com/teachflow/teachflow-backend/internal/services"
)

// NewClientFunc builds an LLM client from per-user credentials. Injected so
// tests can substitute a fake.
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
		log:       baseLog.With("pipeline", "teaching_plan_build"),
		users:     users,
		courses:   courses,
		documents: documents,
		renderer:  renderer,
		newClient: newClient,
	}
}

func (p *Pipeline) Type() string { return domain.JobTypeTeachingPlanBuild }

type payload struct {
	hourPerClass     int
	totalWeeks       int
	classesPerWeek   int
	firstWeekClasses int
	finalReview      bool
	teacherName      string
	skipSlots        []scheduling.SkipSlot
}

func (p *Pipeline) decodePayload(jc *runtime.Context) (payload, error) {
	var out payload
	var ok bool
	if out.hourPerClass, ok = jc.PayloadInt("hour_per_class"); !ok || out.hourPerClass < 1 {
		return out, fmt.Errorf("单次学时参数缺失或无效")
	}
	if out.totalWeeks, ok = jc.PayloadInt("total_weeks"); !ok || out.totalWeeks < 1 {
		return out, fmt.Errorf("总周数参数缺失或无效")
	}
	if out.classesPerWeek, ok = jc.PayloadInt("classes_per_week"); !ok || out.classesPerWeek < 1 {
		return out, fmt.Errorf("每周上课次数参数缺失或无效")
	}
	if out.firstWeekClasses, ok = jc.PayloadInt("first_week_classes"); !ok {
		out.firstWeekClasses = 1
	}
	out.finalReview = jc.PayloadBool("final_review")
	out.teacherName = fmt.Sprint(jc.Payload()["teacher_name"])
	if out.teacherName == "<nil>" {
		out.teacherName = ""
	}

	if raw, exists := jc.Payload()["skip_slots"]; exists && raw != nil {
		items, ok := raw.([]any)
		if !ok {
			return out, fmt.Errorf("排课调整参数格式错误，请检查不上课的周次与次数设置。")
		}
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				return out, fmt.Errorf("排课调整参数格式错误，请检查不上课的周次与次数设置。")
			}
			week, wok := parse.IntValue(m["week"])
			class, cok := parse.IntValue(m["class"])
			if !cok {
				class, cok = parse.IntValue(m["class_index"])
			}
			if !cok {
				class, cok = parse.IntValue(m["session"])
			}
			if !wok || !cok {
				continue
			}
			out.skipSlots = append(out.skipSlots, scheduling.SkipSlot{Week: week, Class: class})
		}
	}
	return out, nil
}

func (p *Pipeline) Run(jc *runtime.Context) error {
	jc.Progress("validating", 10, "正在校验排课参数...")

	courseID, ok := jc.PayloadUUID("course_id")
	if !ok {
		jc.Fail(domain.StageError, fmt.Errorf("缺少课程参数"))
		return nil
	}
	pl, err := p.decodePayload(jc)
	if err != nil {
		jc.Fail(domain.StageError, err)
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
	if course.CourseCatalog == "" {
		jc.Fail(domain.StageError, fmt.Errorf("课程目录为空，请先在课程详情页编辑课程目录"))
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

	// Frame arithmetic before any LLM call; parameter errors are cheap here
	// and expensive after.
	actualClasses := course.TotalHours / pl.hourPerClass
	maxClasses := pl.totalWeeks * pl.classesPerWeek
	if actualClasses > maxClasses {
		jc.Fail(domain.StageError, fmt.Errorf(
			"课程需要 %d 次课（%d 学时），但只有 %d 次课时间（%d 周）。请增加周数或每周上课次数。",
			actualClasses, course.TotalHours, maxClasses, pl.totalWeeks))
		return nil
	}

	params := scheduling.Params{
		TotalWeeks:       pl.totalWeeks,
		ClassesPerWeek:   pl.classesPerWeek,
		FirstWeekClasses: pl.firstWeekClasses,
		SkipSlots:        pl.skipSlots,
	}
	available := scheduling.AvailableSlotCount(params)
	if err := scheduling.CheckSlack(available, actualClasses, scheduling.DefaultMaxSlack); err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	frame := scheduling.BuildScheduleFrame(params, actualClasses)
	if len(frame) == 0 {
		jc.Fail(domain.StageError, fmt.Errorf("排课框架为空，请检查排课参数"))
		return nil
	}
	lastSlot := frame[len(frame)-1]

	jc.Progress("generating", 30, "正在生成授课计划内容...")

	theoryHours := course.TheoryHours()
	theoryClasses := int(float64(theoryHours)/float64(pl.hourPerClass) + 0.5)
	practiceClasses := actualClasses - theoryClasses

	contentFrame := frame
	if pl.finalReview {
		contentFrame = frame[:len(frame)-1]
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

	prompt := prompts.BuildTeachingPlanPrompt(prompts.TeachingPlanInput{
		CourseName:      course.Name,
		CourseCatalog:   course.CourseCatalog,
		TheoryHours:     theoryHours,
		PracticeHours:   course.PracticeHours,
		TheoryClasses:   theoryClasses,
		PracticeClasses: practiceClasses,
		HourPerClass:    pl.hourPerClass,
		ActualClasses:   actualClasses,
		ContentFrame:    contentFrame,
	})
	content, err := client.RunPrompt(jc.Ctx, prompts.TeachingPlanSystem, prompt, openai.Options{Temperature: 0.7})
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}
	rawSchedule, err := parse.DecodeObjectList(content)
	if err != nil {
		jc.Fail(domain.StageError, fmt.Errorf("AI 服务响应异常（返回空内容或非 JSON）。请检查 Base URL、模型名与网络连通性，并确认服务支持 OpenAI 兼容接口。"))
		return nil
	}

	if pl.finalReview {
		rawSchedule = append(rawSchedule, map[string]any{
			"week":  lastSlot.Week,
			"order": lastSlot.Order,
			"title": prompts.FinalReviewTitle,
			"tasks": prompts.FinalReviewTasks,
			"hour":  pl.hourPerClass,
		})
	}

	jc.Progress("generating", 70, fmt.Sprintf("AI 生成完成，共 %d 次课", len(rawSchedule)))

	jc.Progress("rendering", 85, "正在渲染 Word 文档...")

	templateData := map[string]any{
		"academic_year":  course.Semester,
		"course_name":    course.Name,
		"target_classes": course.ClassName,
		"teacher_name":   pl.teacherName,
		"total_hours":    course.TotalHours,
		"theory_hours":   theoryHours,
		"practice_hours": course.PracticeHours,
		"schedule":       rawSchedule,
	}
	fileURL, err := p.renderer.RenderToFile(jc.Ctx, services.TemplateTeachingPlan, templateData, course.ID)
	if err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}

	jc.Progress("saving", 95, "正在保存到数据库...")

	planParams := planparams.Build(rawSchedule, pl.hourPerClass)
	planParamsJSON, _ := json.Marshal(planParams)
	contentJSON, _ := json.Marshal(templateData)

	doc := &domain.CourseDocument{
		CourseID:   course.ID,
		DocType:    domain.DocTypePlan,
		Title:      fmt.Sprintf("《%s》授课计划", course.Name),
		Content:    datatypes.JSON(contentJSON),
		FileURL:    fileURL,
		PlanParams: datatypes.JSON(planParamsJSON),
	}
	if _, err := p.documents.Upsert(jc.Ctx, nil, doc); err != nil {
		jc.Fail(domain.StageError, err)
		return nil
	}

	if err := jc.SetOutputPath(fileURL); err != nil {
		p.log.Warn("record output path failed", "error", err)
	}
	jc.Succeed("completed", "授课计划生成完成！", map[string]any{
		"document_id": doc.ID,
		"file_url":    fileURL,
		"classes":     len(rawSchedule),
	})
	return nil
}
