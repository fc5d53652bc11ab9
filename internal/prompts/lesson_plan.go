package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
)

// LessonPlanSystem primes the lesson content model.
const LessonPlanSystem = "你是一位广东碧桂园职业学院的资深专业课教师，擅长进行课程设计和教案编写。"

// LessonPlanInput carries the inputs of one lesson generation call. PlanItem
// and SystemFields are optional: when both are present the prompt runs in
// strict mode and the model must copy the system fields verbatim; otherwise it
// infers them from the plan text.
type LessonPlanInput struct {
	Sequence         int
	PlanItem         map[string]any
	SystemFields     map[string]any
	DocumentFullText string
	CourseContext    string
	Strict           bool
}

// BuildLessonPlanPrompt renders the structured-lesson generation prompt.
func BuildLessonPlanPrompt(in LessonPlanInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, `# Role
你是一位广东碧桂园职业学院的资深专业课教师，擅长进行课程设计和教案编写。你非常熟悉职业教育的教学规范，能根据"授课计划"生成高质量、符合逻辑的教案数据。

# Task
请根据我提供的【基础信息】，按照【生成规则】，生成一份用于自动化教案生成的 JSON 数据。

# Input Data (基础信息)
1. **授课顺序 (Sequence)**: %d
2. **授课计划全文 (Plan Full Content)**:
%s
`, in.Sequence, in.DocumentFullText)

	if in.SystemFields != nil {
		fields, _ := json.Marshal(in.SystemFields)
		fmt.Fprintf(&b, "\n3. **系统计算字段 (System Fields)**: %s\n", fields)
	}
	if in.PlanItem != nil {
		item, _ := json.Marshal(in.PlanItem)
		fmt.Fprintf(&b, "\n4. **授课计划条目 (Plan Item)**: %s\n", item)
	}

	fmt.Fprintf(&b, `

# Course Context (课程上下文)
%s

# Constraints & Rules (生成规则)
请严格遵守以下约束，任何违反都将导致任务失败：

## 1. 格式要求
* **输出格式**：必须且只输出一个标准的 JSON 对象。不要包含 Markdown 代码块标记（如 `+"```json```"+`），不要包含任何解释性文字或多余输出。
* **Key 值命名**：必须严格使用指定的英文 Key：project_name, week, sequence, hours, total_hours, knowledge_goals, ability_goals, quality_goals, teaching_content, teaching_focus, teaching_difficulty, review_content, review_time, new_lessons, assessment_content, summary_content, homework_content。
`, in.CourseContext)

	if in.Strict {
		b.WriteString(`
* **系统字段必须复用**：` + "`project_name`, `week`, `sequence`, `hours`, `total_hours`" + ` 必须与 System Fields 完全一致，不允许改写或重新计算。
* **授课计划条目为唯一依据**：` + "`project_name`" + ` 必须完全等于 Plan Item 的 ` + "`title`" + `，教学内容与新课教学需围绕 ` + "`tasks`" + ` 展开。
`)
	} else {
		b.WriteString(`
* **字段推断要求**：未提供 System Fields 与 Plan Item 时，` + "`sequence`" + ` 必须等于输入的授课顺序，其余 ` + "`project_name`、`week`、`hours`、`total_hours`" + ` 请结合授课计划全文合理推断并保持一致性。
`)
	}

	b.WriteString(`

## 2. 内容质量规则
* **教学目标 (goals)**：` + "`knowledge_goals`、`ability_goals`、`quality_goals`" + ` 三部分。
  * 每部分必须包含至少 3 行内容。
  * 每行必须以 (1)(2)(3) 序号开头。
  * 每行内容不少于 20 字。
  * 每行末尾必须以换行符结束，字段整体必须以换行符结尾。
* **教学内容 (teaching_content)**：这是宏观的教学内容概述。
  * 必须包含至少 2 段。
  * 每段不少于 50 字。
* **重难点 (focus & difficulty)**：包含 ` + "`teaching_focus`" + `（重点）和 ` + "`teaching_difficulty`" + `（难点）。
  * 每部分至少包含 2 行。
  * 每行以 (1)(2) 序号开头，且每行不少于 20 字。
  * 每行末尾必须以换行符结束，字段整体必须以换行符结尾。
* **复习及新课导入 (review_content)**：
  * 严格使用第一人称（如"我们"、"大家"、"我"），并使用客观书面化语言。
  * 严禁出现主观臆断（例如"大家应该还记得"、"我认为你们已经掌握"之类），应直接陈述事实或逻辑关系。
  * 结构要求包含以下三项：
    1. 回顾上节课核心知识点（客观陈述，不带感情色彩）。
    2. 引入本周新课（基于逻辑递进或项目需要引入）。
    3. 阐述本节课教学目标。
  * 每一项内容不少于 30 字。
  * 每行末尾必须以换行符结束，字段整体必须以换行符结尾。
* **课堂小结 (summary_content)**：
  * 严格使用第一人称客观书面语（如"我们"）。
  * 必须按以下序号分段书写（不要使用其他格式）：
    1. 总结本课程重难点，如[具体知识点]、[具体技能点]等。
    2. 强调相关注意事项，如[具体易错点]、[规范要求]等。
    3. 说明通过何种方式（如提问、练习、巡视等）检测教学目标达成情况，并指出发现的问题将如何在下次课加以修正（不要主观断定学生已经掌握）。
  * 每点内容不少于 30 字。
  * 每行末尾必须以换行符结束，字段整体必须以换行符结尾。
* **作业布置 (homework_content)**：
  * 要求尽量简洁、易做、适合高职学生。
  * 数量为 1~2 份即可。
  * 每行末尾必须以换行符结束，字段整体必须以换行符结尾。

## 3. 时间计算逻辑（核心）
你必须在 JSON 中自动计算时间分配：
* **总时长 (分钟)** = ` + "`hours`" + ` * 40（系统校验，不需要输出为字段）。
* **固定扣除**：
  * 考核评价 (` + "`assessment_time`" + `) = 10 分钟（固定）。
  * 课堂小结 (` + "`summary_content`" + ` 对应时间) = 5 分钟（固定）。
* **动态分配**：
  * 复习导入 (` + "`review_time`" + `)：在 5 到 15 分钟之间灵活设置（整数分钟）。
  * **新课教学 (new_lessons)**：剩余的所有时间必须全部分配给 new_lessons 列表中的各任务点。
* **校验**：必须满足等式： review_time + sum(new_lessons.time) + assessment_time + 5 == hours * 40。

## 4. 新课教学列表 (new_lessons)
* 这是一个列表（List），包含 3 到 5 个任务字典。
* 每个字典必须包含 ` + "`content`" + ` 和 ` + "`time`" + ` 两个字段。
* ` + "`content`" + ` 必须包含"任务名称"和"教师活动"两部分内容。
* 每个 ` + "`time`" + ` 为整数分钟。

## 5. 额外要求
* 如果输入信息不足，仍必须返回结构完整的 JSON，但所有文字字段填写为："Insufficient input: please provide more details."。
* 严格遵守上述所有约束，任何违反都视为任务失败。

请直接返回 JSON，不要包含任何额外的文字说明。
`)

	return b.String()
}
