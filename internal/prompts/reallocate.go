package prompts

import (
	"encoding/json"
	"fmt"
)

// ReallocateSystem primes the repair model; it is scoped to time correction
// only so a creative model does not rewrite lesson content.
const ReallocateSystem = "你只负责时间分配校正。"

// BuildReallocatePrompt renders the time-repair prompt for a lesson plan that
// failed the budget check. Only the lesson contents are echoed back; the
// model fills in times and nothing else.
func BuildReallocatePrompt(hours int, lessonContents []string) string {
	totalMinutes := hours * 40
	payload := make([]map[string]string, 0, len(lessonContents))
	for _, content := range lessonContents {
		payload = append(payload, map[string]string{"content": content})
	}
	payloadJSON, _ := json.Marshal(payload)

	return fmt.Sprintf(`# Role
你是一名教学教案时间分配审校员。

# Task
仅重新生成时间分配计划，不修改任何教学内容。

# Input
- 本次学时: %d
- 总时长(分钟): %d
- 固定扣除: 考核评价 10 分钟，课堂小结 5 分钟
- 新课教学内容列表: %s

# Rules
1. review_time 必须为 5-15 之间的整数分钟。
2. new_lessons 列表必须与输入长度一致，content 不可修改，只能填写 time。
3. time 为正整数，且满足：review_time + sum(time) + 10 + 5 == %d。

# Output Format
只输出 JSON 对象，结构如下：
{
  "review_time": 10,
  "new_lessons": [
    {"content": "...", "time": 20}
  ]
}
`, hours, totalMinutes, payloadJSON, totalMinutes)
}
