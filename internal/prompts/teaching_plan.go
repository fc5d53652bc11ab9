// Package prompts builds the system/user prompt pairs for every generation
// stage. Builders are pure string assembly; truncation keeps any embedded
// document within the model's working budget.
package prompts

import (
	"encoding/json"
	"fmt"

	"github.com/teachflow/teachflow-backend/internal/scheduling"
)

// TeachingPlanSystem primes the schedule content model.
const TeachingPlanSystem = "你负责填充教学计划内容。"

// TeachingPlanInput carries everything the schedule-filling prompt embeds.
type TeachingPlanInput struct {
	CourseName      string
	CourseCatalog   string
	TheoryHours     int
	PracticeHours   int
	TheoryClasses   int
	PracticeClasses int
	HourPerClass    int
	ActualClasses   int
	ContentFrame    []scheduling.Slot
}

// BuildTeachingPlanPrompt renders the user prompt that asks the model to fill
// teaching content into a pre-computed week frame. The frame is authoritative;
// the model only supplies titles and tasks.
func BuildTeachingPlanPrompt(in TeachingPlanInput) string {
	frameJSON, _ := json.Marshal(in.ContentFrame)
	return fmt.Sprintf(`# Role
你是广东碧桂园职业学院的资深教学管理人员。

# Task
根据已定的周次安排（Schedule Frame）和课程目录，填充教学内容。

# Input Data
- 课程名称：%s
- 理论学时：%d（约 %d 次课）
- 实训学时：%d（约 %d 次课）
- **已定课表框架**：%s

# 课程目录
%s

# Rules
1. **严格遵守已定课表**：你必须严格按照 Input Data 中的 `+"`week`"+` 和 `+"`order`"+` 填充内容。不要修改周次。
2. **学时分配**：
   - 确保理论课约 %d 次，实训课约 %d 次。
   - **标题格式重要规则**：
     - 正确示例：`+"`项目一：计算机基础`"+` 或 `+"`实训项目一：Word应用`"+`
     - 错误示例：`+"`[理论] 项目一：...`"+` 或 `+"`项目一：... [实训]`"+`
     - **必须保留** `+"`项目X：`"+` 或 `+"`实训项目X：`"+` 前缀，以区分理论与实训。
     - **必须移除** 任何中括号标签（如 `+"`[理论]`、`[实训]`"+`）。
3. **内容生成**：
   - 根据 order 顺序和课程目录进度安排教学。
   - **Task 格式**：必须使用 "1. ", "2. ", "3. " 序号列表（不用 "任务1" 或 "1-1"）。
   - 每个项目内序号从 1 开始。
   - 多个任务点用 \n 分隔。
4. **禁止事项**：
   - ❌ 绝对不要生成第 %d 次课的"复习考核"内容！这部分由系统单独处理。

# Output Format
JSON 数组，结构如下：
[
  {
    "week": 1,
    "order": 1,
    "title": "项目1：计算机基础（无需标签）",
    "tasks": "1. 计算机组成原理\n2. 操作系统安装",
    "hour": %d
  },
  ...
]
`,
		in.CourseName,
		in.TheoryHours, in.TheoryClasses,
		in.PracticeHours, in.PracticeClasses,
		string(frameJSON),
		in.CourseCatalog,
		in.TheoryClasses, in.PracticeClasses,
		in.ActualClasses,
		in.HourPerClass,
	)
}

// FinalReviewTitle and FinalReviewTasks are appended by the pipeline as the
// last session when the course closes with a review-and-assessment class; the
// model is explicitly forbidden from generating this item itself.
const (
	FinalReviewTitle = "课程复习与考核"
	FinalReviewTasks = "1. 期末知识复习\n2. 课程考核与讲评"
)
