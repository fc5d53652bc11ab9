package prompts

import "fmt"

// PlanExtractSystem primes the schedule-parameter extraction model.
const PlanExtractSystem = "你擅长结构化提取授课计划参数。"

// BuildPlanExtractPrompt renders the prompt that re-parses an uploaded
// teaching plan document back into structured schedule parameters.
// totalHours may be nil when the course total is unknown.
func BuildPlanExtractPrompt(extractedText string, totalHours *int) string {
	hoursText := "未知"
	if totalHours != nil {
		hoursText = fmt.Sprintf("%d", *totalHours)
	}
	return fmt.Sprintf(`# Role
你是一名教学计划数据整理员。

# Task
从授课计划文本中提取课次参数，生成结构化 JSON。

# Input
课程总学时（可用于推断单次学时）：%s
授课计划文本：
%s

# Output Format
只输出 JSON 对象，结构如下：
{
  "schedule": [
    {"week": 1, "order": 1, "title": "项目一：...", "tasks": "1. ...\n2. ...", "hour": 4}
  ],
  "hour_per_class": 4
}

# Rules
1. schedule 为完整课次列表，包含理论/实训/复习考核等所有课次。
2. week 与 order 必须为整数；title 与 tasks 尽量从文本中保留。
3. 若文本未标注学时，可先为空；但需要尽量推断 hour_per_class。
4. 输出必须为标准 JSON，不要包含额外说明或 Markdown。
`, hoursText, extractedText)
}
