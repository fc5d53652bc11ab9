package prompts

import (
	"strings"
	"testing"

	"github.com/teachflow/teachflow-backend/internal/scheduling"
)

func TestRenderPrompt(t *testing.T) {
	template := "系统名称：{{title}}，简称：{{short_title}}，未知：{{missing}}"
	out := RenderPrompt(template, map[string]string{
		"title":       "教学管理系统",
		"short_title": "教管",
	})
	if !strings.Contains(out, "教学管理系统") || !strings.Contains(out, "教管") {
		t.Fatalf("placeholders not substituted: %q", out)
	}
	if !strings.Contains(out, "{{missing}}") {
		t.Fatalf("unknown placeholder should stay visible: %q", out)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("长", 5000)
	out := Truncate(long, 4000)
	if !strings.HasSuffix(out, TruncateMarker) {
		t.Fatalf("missing truncation marker")
	}
	if len([]rune(out)) >= 5000 {
		t.Fatalf("text not truncated, %d runes", len([]rune(out)))
	}
	short := "短文本"
	if got := Truncate(short, 4000); got != short {
		t.Fatalf("short text must pass through unchanged: %q", got)
	}
}

func TestBuildTeachingPlanPromptEmbedsFrame(t *testing.T) {
	in := TeachingPlanInput{
		CourseName:      "信息技术",
		CourseCatalog:   "项目一 计算机基础",
		TheoryHours:     36,
		PracticeHours:   36,
		TheoryClasses:   9,
		PracticeClasses: 9,
		HourPerClass:    4,
		ActualClasses:   18,
		ContentFrame: []scheduling.Slot{
			{Order: 1, Week: 1},
			{Order: 2, Week: 2},
		},
	}
	out := BuildTeachingPlanPrompt(in)
	if !strings.Contains(out, `"order":1`) || !strings.Contains(out, `"week":2`) {
		t.Fatalf("frame JSON missing from prompt")
	}
	if !strings.Contains(out, "第 18 次课") {
		t.Fatalf("final session prohibition missing")
	}
}

func TestBuildLessonPlanPromptModes(t *testing.T) {
	strict := BuildLessonPlanPrompt(LessonPlanInput{
		Sequence:     3,
		PlanItem:     map[string]any{"title": "项目三：网络配置"},
		SystemFields: map[string]any{"sequence": 3, "hours": 4},
		Strict:       true,
	})
	if !strings.Contains(strict, "系统字段必须复用") {
		t.Fatal("strict mode rule missing")
	}
	if !strings.Contains(strict, "项目三：网络配置") {
		t.Fatal("plan item not embedded")
	}

	lenient := BuildLessonPlanPrompt(LessonPlanInput{Sequence: 3, Strict: false})
	if !strings.Contains(lenient, "字段推断要求") {
		t.Fatal("lenient mode rule missing")
	}
	if strings.Contains(lenient, "系统字段必须复用") {
		t.Fatal("strict rule must not appear in lenient mode")
	}
}

func TestBuildReallocatePromptEchoesContentsOnly(t *testing.T) {
	out := BuildReallocatePrompt(4, []string{"任务一：需求分析", "任务二：原型设计"})
	if !strings.Contains(out, "160") {
		t.Fatalf("total minutes missing: %q", out)
	}
	if !strings.Contains(out, "任务一：需求分析") {
		t.Fatal("lesson content missing")
	}
	if strings.Contains(out, `"time":`) && !strings.Contains(out, `"time": 20`) {
		t.Fatal("payload must not carry times, only the format example does")
	}
}
