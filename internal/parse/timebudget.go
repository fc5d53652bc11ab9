package parse

// MinutesPerHour is the classroom minute weight of one course hour.
const MinutesPerHour = 40

// Fixed segments of every session: 10 minutes of assessment and a 5 minute
// summary, regardless of session length.
const (
	AssessmentMinutes = 10
	SummaryMinutes    = 5
)

const (
	ReviewMinMinutes = 5
	ReviewMaxMinutes = 15
	NewLessonMinimum = 3
	NewLessonMaximum = 5
)

// CheckTimeAllocation validates the time-budget law of a generated lesson
// plan: review_time + sum(new_lessons.time) + assessment + summary must equal
// hours * 40 exactly, with review_time in [5,15] and 3-5 new-lesson items each
// carrying a positive integer time. The returned error text is shown to the
// model during reconciliation and to the user on final failure.
func CheckTimeAllocation(plan map[string]any, hours int) error {
	if hours <= 0 {
		return &SchemaError{Reason: "无效的学时参数"}
	}
	totalMinutes := hours * MinutesPerHour

	reviewTime, ok := IntValue(plan["review_time"])
	if !ok || reviewTime < ReviewMinMinutes || reviewTime > ReviewMaxMinutes {
		return &SchemaError{Reason: "review_time 不在 5-15 分钟范围内"}
	}

	rawLessons, ok := plan["new_lessons"].([]any)
	if !ok || len(rawLessons) < NewLessonMinimum || len(rawLessons) > NewLessonMaximum {
		return &SchemaError{Reason: "new_lessons 数量不符合 3-5 项要求"}
	}

	newSum := 0
	for _, raw := range rawLessons {
		item, ok := raw.(map[string]any)
		if !ok {
			return &SchemaError{Reason: "new_lessons 存在非对象项"}
		}
		t, ok := IntValue(item["time"])
		if !ok || t <= 0 {
			return &SchemaError{Reason: "new_lessons.time 必须为正整数"}
		}
		newSum += t
	}

	if reviewTime+newSum+AssessmentMinutes+SummaryMinutes != totalMinutes {
		return &SchemaError{Reason: "时间分配总和不匹配"}
	}
	return nil
}

// SessionMinutes returns the total classroom minutes for a session of the
// given hour count.
func SessionMinutes(hours int) int { return hours * MinutesPerHour }

// NewLessonBudget returns the minutes new_lessons must sum to for a valid
// plan with the given review time.
func NewLessonBudget(hours, reviewTime int) int {
	return SessionMinutes(hours) - reviewTime - AssessmentMinutes - SummaryMinutes
}

// MergeRepairedTimes copies review_time and per-item new_lessons.time from a
// repair response into the original plan, touching nothing else. Only
// well-typed integer values are taken; malformed entries leave the original
// value in place. Lesson content is never merged, so a model that rewrote the
// lesson text cannot corrupt the plan.
func MergeRepairedTimes(plan, repaired map[string]any) {
	if v, ok := IntValue(repaired["review_time"]); ok {
		plan["review_time"] = v
	}
	origLessons, _ := plan["new_lessons"].([]any)
	repLessons, _ := repaired["new_lessons"].([]any)
	for i := range origLessons {
		if i >= len(repLessons) {
			break
		}
		origItem, ok := origLessons[i].(map[string]any)
		if !ok {
			continue
		}
		repItem, ok := repLessons[i].(map[string]any)
		if !ok {
			continue
		}
		if t, ok := IntValue(repItem["time"]); ok && t > 0 {
			origItem["time"] = t
		}
	}
}
