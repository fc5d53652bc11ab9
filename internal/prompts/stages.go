package prompts

import (
	"fmt"
	"strings"
)

// Copyright material generation runs eight staged prompts. The system prompt
// of each stage lives as a markdown template in the vendored prompt kit and
// is rendered with RenderPrompt before use.
const (
	StageFramework       = "framework"
	StagePageList        = "page_list"
	StageUIDesign        = "ui_design"
	StageFrontend        = "frontend"
	StageDatabase        = "database"
	StageBackend         = "backend"
	StageUserManual      = "user_manual"
	StageApplicationForm = "application_form"
)

// StagePromptFiles maps each stage to its template file under the vendored
// system_prompts directory.
var StagePromptFiles = map[string]string{
	StageFramework:       "01-软著框架系统提示词.md",
	StagePageList:        "02-页面规划系统提示词.md",
	StageUIDesign:        "03-界面设计系统提示词.md",
	StageFrontend:        "04-网页代码生成系统提示词.md",
	StageDatabase:        "05-数据库代码生成系统提示词.md",
	StageBackend:         "06-后端代码生成系统提示词.md",
	StageUserManual:      "07-用户手册系统提示词.md",
	StageApplicationForm: "08-软件著作权登记信息表系统提示词.md",
}

// RenderPrompt substitutes {{key}} placeholders in a stage template. Unknown
// placeholders are left in place so a missing variable is visible in the
// rendered output rather than silently blanked.
func RenderPrompt(template string, variables map[string]string) string {
	rendered := template
	for key, value := range variables {
		rendered = strings.ReplaceAll(rendered, "{{"+key+"}}", value)
	}
	return rendered
}

// TruncateMarker is appended when an embedded document exceeds its budget.
const TruncateMarker = "\n\n[内容过长，已截断]"

// Truncate caps text at maxChars runes of the original byte string, keeping
// prompts within the model's working budget. Counted in characters, matching
// how the budgets were tuned.
func Truncate(text string, maxChars int) string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + TruncateMarker
}

// Per-document character budgets for stage user prompts.
const (
	BudgetLarge  = 12000
	BudgetMedium = 10000
	BudgetCode   = 8000
	BudgetSmall  = 6000
	BudgetTiny   = 4000
)

func BuildFrameworkUser(requirementsText, techStackText string) string {
	return fmt.Sprintf(`需求文档内容：
%s

技术栈说明：
%s
`, Truncate(requirementsText, BudgetLarge), Truncate(techStackText, BudgetTiny))
}

func BuildPageListUser(frameworkDoc string) string {
	return fmt.Sprintf(`框架设计文档：
%s
`, Truncate(frameworkDoc, BudgetLarge))
}

func BuildUIDesignUser(pageDoc, frameworkDoc, uiSpec string) string {
	return fmt.Sprintf(`页面规划文档：
%s

框架设计文档：
%s

UI设计规范：
%s
`, Truncate(pageDoc, BudgetLarge), Truncate(frameworkDoc, BudgetSmall), Truncate(uiSpec, BudgetTiny))
}

func BuildFrontendUser(pageListJSON, uiDoc string) string {
	return fmt.Sprintf(`请根据以下页面清单和设计方案生成前端代码。
页面清单(JSON)：
%s

界面设计方案：
%s

输出格式要求：
使用多文件格式输出，每个文件以行首 `+"`### FILE: output_sourcecode/front/文件名`"+` 标记。
示例：
### FILE: output_sourcecode/front/dashboard.html
<html>...</html>
`, pageListJSON, Truncate(uiDoc, BudgetCode))
}

func BuildDatabaseUser(frameworkDoc, pageDoc, uiDoc string) string {
	return fmt.Sprintf(`框架设计文档：
%s

页面规划：
%s

界面设计：
%s

输出格式要求：
使用多文件格式输出，每个文件以行首 `+"`### FILE: output_sourcecode/db/文件名`"+` 标记。
`, Truncate(frameworkDoc, BudgetCode), Truncate(pageDoc, BudgetCode), Truncate(uiDoc, BudgetTiny))
}

func BuildBackendUser(frameworkDoc, pageDoc, databaseSchema string) string {
	return fmt.Sprintf(`框架设计文档：
%s

页面规划：
%s

数据库设计：
%s

输出格式要求：
使用多文件格式输出，每个文件以行首 `+"`### FILE: output_sourcecode/backend/文件名`"+` 标记。
`, Truncate(frameworkDoc, BudgetCode), Truncate(pageDoc, BudgetCode), Truncate(databaseSchema, BudgetSmall))
}

func BuildUserManualUser(requirementsText, frameworkDoc, pageDoc, uiDoc string) string {
	return fmt.Sprintf(`需求文档：
%s

框架设计：
%s

页面规划：
%s

界面设计：
%s
`, Truncate(requirementsText, BudgetCode), Truncate(frameworkDoc, BudgetSmall),
		Truncate(pageDoc, BudgetSmall), Truncate(uiDoc, BudgetSmall))
}

func BuildApplicationFormUser(requirementsText, frameworkDoc string) string {
	return fmt.Sprintf(`需求文档：
%s

框架设计：
%s
`, Truncate(requirementsText, BudgetSmall), Truncate(frameworkDoc, BudgetSmall))
}

// FrameworkInsightsSystem and PageItemsSystem prime the two structured
// extraction calls that feed later stages.
const (
	FrameworkInsightsSystem = "你擅长结构化抽取软件文档信息。"
	PageItemsSystem         = "你擅长从文档中提取页面结构。"
)

func BuildFrameworkInsightsPrompt(frameworkDoc string) string {
	return fmt.Sprintf(`请从以下框架设计文档中提取：
1) 功能模块清单（列表）
2) 核心创新点（列表）

要求仅输出 JSON，对象字段为 module_list 和 innovation_points，均为字符串数组。

框架设计文档：
%s
`, Truncate(frameworkDoc, BudgetMedium))
}

func BuildPageItemsPrompt(pagePlanDoc string) string {
	return fmt.Sprintf(`请从以下页面规划文档中提取页面清单，输出 JSON 数组。
每个元素包含：name（页面名称）、path（页面路径）、file（建议文件名，如 dashboard.html）、description（页面功能描述，50字以内）。

页面规划文档：
%s
`, Truncate(pagePlanDoc, BudgetMedium))
}
