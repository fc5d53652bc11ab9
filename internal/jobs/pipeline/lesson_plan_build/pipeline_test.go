package lesson_plan_build

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/jobs/runtime"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/planparams"
	"github.com/teachflow/teachflow-backend/internal/platform/openai"
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

type courseRepoStub struct {
	course *domain.Course
}

func (s *courseRepoStub) Create(ctx context.Context, tx *gorm.DB, c *domain.Course) (*domain.Course, error) {
	return c, nil
}
func (s *courseRepoStub) GetByIDForOwner(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) (*domain.Course, error) {
	return s.course, nil
}
func (s *courseRepoStub) ListByOwner(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID) ([]*domain.Course, error) {
	return nil, nil
}
func (s *courseRepoStub) UpdateFields(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}
func (s *courseRepoStub) Delete(ctx context.Context, tx *gorm.DB, ownerUserID, id uuid.UUID) error {
	return nil
}

type docRepoStub struct {
	plan     *domain.CourseDocument
	upserted *domain.CourseDocument
}

func (s *docRepoStub) Upsert(ctx context.Context, tx *gorm.DB, doc *domain.CourseDocument) (*domain.CourseDocument, error) {
	s.upserted = doc
	return doc, nil
}
func (s *docRepoStub) GetPlan(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) (*domain.CourseDocument, error) {
	return s.plan, nil
}
func (s *docRepoStub) GetLesson(ctx context.Context, tx *gorm.DB, courseID uuid.UUID, lessonNumber int) (*domain.CourseDocument, error) {
	return nil, nil
}
func (s *docRepoStub) ListLessons(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*domain.CourseDocument, error) {
	return nil, nil
}
func (s *docRepoStub) DeleteByCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) error {
	return nil
}

type rendererStub struct {
	template string
	data     map[string]any
	fileURL  string
}

func (s *rendererStub) Render(ctx context.Context, templateName string, data map[string]any) ([]byte, error) {
	return []byte("doc"), nil
}
func (s *rendererStub) RenderToFile(ctx context.Context, templateName string, data map[string]any, courseID uuid.UUID) (string, error) {
	s.template = templateName
	s.data = data
	return s.fileURL, nil
}

// clientStub replays one scripted response per call and records the system
// prompts it was invoked with.
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
		return c.responses[len(c.responses)-1], nil
	}
	return c.responses[idx], nil
}

func (c *clientStub) StreamChat(ctx context.Context, messages []openai.Message, onDelta func(string)) (string, error) {
	return "", nil
}

func lessonJSON(t *testing.T, reviewTime int, times []int) string {
	t.Helper()
	lessons := make([]map[string]any, 0, len(times))
	for i, tm := range times {
		lessons = append(lessons, map[string]any{
			"content": fmt.Sprintf("任务%d：示例任务点；教师活动：讲解与演示", i+1),
			"time":    tm,
		})
	}
	plan := map[string]any{
		"project_name":        "项目3：示例项目",
		"week":                2,
		"sequence":            3,
		"hours":               4,
		"total_hours":         12,
		"review_time":         reviewTime,
		"new_lessons":         lessons,
		"teaching_content":    "示例教学内容。",
		"assessment_content":  "示例考核。",
		"summary_content":     "示例小结。",
		"homework_content":    "示例作业。",
		"knowledge_goals":     "(1) 示例\n",
		"ability_goals":       "(1) 示例\n",
		"quality_goals":       "(1) 示例\n",
		"teaching_focus":      "(1) 示例\n",
		"teaching_difficulty": "(1) 示例\n",
		"review_content":      "示例导入。",
	}
	b, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("marshal lesson: %v", err)
	}
	return string(b)
}

func repairJSON(t *testing.T, reviewTime int, times []int) string {
	t.Helper()
	lessons := make([]map[string]any, 0, len(times))
	for i, tm := range times {
		lessons = append(lessons, map[string]any{
			"content": fmt.Sprintf("任务%d", i+1),
			"time":    tm,
		})
	}
	b, err := json.Marshal(map[string]any{
		"review_time": reviewTime,
		"new_lessons": lessons,
	})
	if err != nil {
		t.Fatalf("marshal repair: %v", err)
	}
	return string(b)
}

func planDocument(t *testing.T, hourPerClass int, items []planparams.PlanItem) *domain.CourseDocument {
	t.Helper()
	params := planparams.PlanParams{Schedule: items, HourPerClass: &hourPerClass}
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal plan params: %v", err)
	}
	return &domain.CourseDocument{
		CourseID:   uuid.New(),
		DocType:    domain.DocTypePlan,
		Title:      "《课程》授课计划",
		PlanParams: datatypes.JSON(raw),
	}
}

func defaultSchedule() []planparams.PlanItem {
	return []planparams.PlanItem{
		{Week: 1, Order: 1, Title: "项目1：环境搭建", Tasks: "1. 安装工具", Hour: 4},
		{Week: 1, Order: 2, Title: "项目2：基础语法", Tasks: "1. 变量与类型", Hour: 4},
		{Week: 2, Order: 3, Title: "项目3：示例项目", Tasks: "1. 函数定义", Hour: 4},
	}
}

func newFixture(t *testing.T, client *clientStub, docs *docRepoStub) (*Pipeline, *rendererStub) {
	t.Helper()
	users := &userRepoStub{user: &domain.User{
		AIAPIKey:    "sk-test",
		AIBaseURL:   "https://api.example.com/v1",
		AIModelName: "gpt-4",
	}}
	courses := &courseRepoStub{course: &domain.Course{
		ID:            uuid.New(),
		Name:          "Python 程序设计",
		ClassName:     "软件2301",
		TotalHours:    48,
		CourseCatalog: "第一章 基础语法",
	}}
	renderer := &rendererStub{fileURL: "/uploads/generated/lesson.docx"}
	p := New(nil, logger.NewNop(), users, courses, docs, renderer,
		func(l *logger.Logger, cfg openai.Config) (openai.Client, error) {
			return client, nil
		})
	return p, renderer
}

func newTestJob(t *testing.T, sequence int) *domain.GenerationJob {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"course_id": uuid.New().String(),
		"sequence":  sequence,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &domain.GenerationJob{
		OwnerUserID: uuid.New(),
		JobType:     domain.JobTypeLessonPlanBuild,
		EntityType:  domain.EntityTypeCourse,
		EntityID:    uuid.New(),
		Status:      domain.JobStatusRunning,
		Payload:     datatypes.JSON(raw),
	}
}

func TestRunStrictModeSucceedsWithoutRepair(t *testing.T) {
	// hours=4: 10 + 45*3 + 10 + 5 == 160, no repair needed.
	client := &clientStub{responses: []string{lessonJSON(t, 10, []int{45, 45, 45})}}
	docs := &docRepoStub{plan: planDocument(t, 4, defaultSchedule())}
	p, renderer := newFixture(t, client, docs)

	job := newTestJob(t, 3)
	jc := runtime.NewContext(context.Background(), nil, job, nil, nil)
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (error %q), want completed", job.Status, job.Error)
	}
	if len(client.systems) != 1 {
		t.Fatalf("client calls = %d, want 1", len(client.systems))
	}
	if !strings.Contains(client.users[0], "系统字段必须复用") {
		t.Fatalf("expected strict prompt, got: %q", client.users[0][:200])
	}
	if !strings.Contains(client.users[0], "项目3：示例项目") {
		t.Fatalf("prompt missing plan item title")
	}

	if renderer.template != "教案模板.docx" {
		t.Fatalf("template = %q", renderer.template)
	}
	if docs.upserted == nil {
		t.Fatalf("lesson document not saved")
	}
	if docs.upserted.Title != "教案 - 第3次课" {
		t.Fatalf("doc title = %q", docs.upserted.Title)
	}
	if docs.upserted.LessonNumber != 3 {
		t.Fatalf("lesson number = %d", docs.upserted.LessonNumber)
	}
	if docs.upserted.DocType != domain.DocTypeLesson {
		t.Fatalf("doc type = %q", docs.upserted.DocType)
	}
}

func TestRunRepairsInvalidBudgetOnce(t *testing.T) {
	// First response has review_time out of range; the repair round fixes it.
	client := &clientStub{responses: []string{
		lessonJSON(t, 20, []int{45, 45, 45}),
		repairJSON(t, 10, []int{45, 45, 45}),
	}}
	docs := &docRepoStub{plan: planDocument(t, 4, defaultSchedule())}
	p, renderer := newFixture(t, client, docs)

	job := newTestJob(t, 3)
	jc := runtime.NewContext(context.Background(), nil, job, nil, nil)
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (error %q), want completed", job.Status, job.Error)
	}
	if len(client.systems) != 2 {
		t.Fatalf("client calls = %d, want 2", len(client.systems))
	}
	if client.systems[1] != "你只负责时间分配校正。" {
		t.Fatalf("repair system prompt = %q", client.systems[1])
	}

	review, ok := renderer.data["review_time"]
	if !ok {
		t.Fatalf("review_time missing from rendered data")
	}
	if n, _ := review.(int); n != 10 {
		t.Fatalf("review_time = %v, want merged value 10", review)
	}
	// Repair responses must never replace lesson content.
	lessons := renderer.data["new_lessons"].([]any)
	first := lessons[0].(map[string]any)
	if !strings.Contains(first["content"].(string), "教师活动") {
		t.Fatalf("lesson content was overwritten by repair: %v", first["content"])
	}
}

func TestRunFailsAfterRepairBudgetExhausted(t *testing.T) {
	// Every repair keeps review_time out of range; two rounds then failure.
	client := &clientStub{responses: []string{
		lessonJSON(t, 20, []int{45, 45, 45}),
		repairJSON(t, 20, []int{45, 45, 45}),
		repairJSON(t, 20, []int{45, 45, 45}),
	}}
	docs := &docRepoStub{plan: planDocument(t, 4, defaultSchedule())}
	p, _ := newFixture(t, client, docs)

	job := newTestJob(t, 3)
	jc := runtime.NewContext(context.Background(), nil, job, nil, nil)
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if len(client.systems) != 3 {
		t.Fatalf("client calls = %d, want 1 generation + 2 repairs", len(client.systems))
	}
	if job.Error != "review_time 不在 5-15 分钟范围内" {
		t.Fatalf("error = %q", job.Error)
	}
	if docs.upserted != nil {
		t.Fatalf("failed run must not save a document")
	}
}

func TestRunRestoresSystemFieldsAfterGeneration(t *testing.T) {
	// The model echoes bogus identity fields alongside a valid time budget;
	// the rendered and stored plan must carry the computed values instead.
	var obj map[string]any
	if err := json.Unmarshal([]byte(lessonJSON(t, 10, []int{45, 45, 45})), &obj); err != nil {
		t.Fatalf("unmarshal lesson fixture: %v", err)
	}
	obj["project_name"] = "错误标题"
	obj["week"] = 99
	obj["sequence"] = 42
	obj["hours"] = 99
	obj["total_hours"] = 999
	raw, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshal mutated lesson: %v", err)
	}

	client := &clientStub{responses: []string{string(raw)}}
	docs := &docRepoStub{plan: planDocument(t, 4, defaultSchedule())}
	p, renderer := newFixture(t, client, docs)

	job := newTestJob(t, 3)
	jc := runtime.NewContext(context.Background(), nil, job, nil, nil)
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (error %q), want completed", job.Status, job.Error)
	}

	if got := renderer.data["project_name"]; got != "项目3：示例项目" {
		t.Fatalf("rendered project_name = %v, want plan item title", got)
	}
	if got, _ := renderer.data["week"].(int); got != 2 {
		t.Fatalf("rendered week = %v, want system value 2", renderer.data["week"])
	}
	if got, _ := renderer.data["sequence"].(int); got != 3 {
		t.Fatalf("rendered sequence = %v, want 3", renderer.data["sequence"])
	}
	if got, _ := renderer.data["hours"].(int); got != 4 {
		t.Fatalf("rendered hours = %v, want 4", renderer.data["hours"])
	}
	if got, _ := renderer.data["total_hours"].(int); got != 12 {
		t.Fatalf("rendered total_hours = %v, want cumulative 12", renderer.data["total_hours"])
	}

	var saved map[string]any
	if err := json.Unmarshal(docs.upserted.Content, &saved); err != nil {
		t.Fatalf("unmarshal saved content: %v", err)
	}
	if saved["project_name"] != "项目3：示例项目" {
		t.Fatalf("saved project_name = %v", saved["project_name"])
	}
	if n, _ := saved["week"].(float64); n != 2 {
		t.Fatalf("saved week = %v, want 2", saved["week"])
	}
}

func TestRunLenientModeWhenSequenceNotInPlan(t *testing.T) {
	client := &clientStub{responses: []string{lessonJSON(t, 10, []int{45, 45, 45})}}
	docs := &docRepoStub{plan: planDocument(t, 4, defaultSchedule())}
	p, _ := newFixture(t, client, docs)

	job := newTestJob(t, 9)
	jc := runtime.NewContext(context.Background(), nil, job, nil, nil)
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q (error %q), want completed", job.Status, job.Error)
	}
	if strings.Contains(client.users[0], "系统字段必须复用") {
		t.Fatalf("expected lenient prompt for sequence outside the plan")
	}
	if !strings.Contains(client.users[0], "字段推断要求") {
		t.Fatalf("lenient prompt missing inference rules")
	}
	if docs.upserted.Title != "教案 - 第9次课" {
		t.Fatalf("doc title = %q", docs.upserted.Title)
	}
	// Even without plan-derived system fields the requested sequence wins
	// over whatever the model returned.
	var saved map[string]any
	if err := json.Unmarshal(docs.upserted.Content, &saved); err != nil {
		t.Fatalf("unmarshal saved content: %v", err)
	}
	if n, _ := saved["sequence"].(float64); n != 9 {
		t.Fatalf("saved sequence = %v, want 9", saved["sequence"])
	}
}

func TestRunFailsWithoutTeachingPlan(t *testing.T) {
	client := &clientStub{responses: []string{""}}
	docs := &docRepoStub{}
	p, _ := newFixture(t, client, docs)

	job := newTestJob(t, 1)
	jc := runtime.NewContext(context.Background(), nil, job, nil, nil)
	if err := p.Run(jc); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %q, want failed", job.Status)
	}
	if job.Error != "请先生成授课计划" {
		t.Fatalf("error = %q", job.Error)
	}
	if len(client.systems) != 0 {
		t.Fatalf("client should not be called, got %d calls", len(client.systems))
	}
}
