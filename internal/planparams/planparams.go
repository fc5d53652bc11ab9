// Package planparams normalizes teaching-plan rows into the canonical
// PlanParams shape consumed by lesson generation, whether the rows came from
// a freshly generated schedule or were re-parsed out of an uploaded document.
package planparams

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
)

// PlanItem is one row of a teaching plan.
type PlanItem struct {
	Week  int    `json:"week"`
	Order int    `json:"order"`
	Title string `json:"title"`
	Tasks string `json:"tasks"`
	Hour  int    `json:"hour"`
}

// PlanParams wraps a normalized schedule plus the inferred per-session hour
// count. HourPerClass is nil when nothing could be inferred.
type PlanParams struct {
	Schedule     []PlanItem `json:"schedule"`
	HourPerClass *int       `json:"hour_per_class,omitempty"`
}

func safeInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		var i int
		if _, err := jsonNumberScan(s, &i); err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func jsonNumberScan(s string, out *int) (int, error) {
	var f float64
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return 0, err
	}
	*out = int(f)
	return 1, nil
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func normalizeTasks(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s := strings.TrimSpace(asString(item))
			if s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	default:
		return strings.TrimSpace(asString(t))
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return strings.Trim(string(b), `"`)
	}
}

// NormalizeItem maps one loosely-shaped schedule row (uploaded documents use
// a range of key spellings) into a PlanItem. Rows without a resolvable order
// are dropped by the caller.
func NormalizeItem(raw map[string]any) (PlanItem, bool) {
	order, orderOK := safeInt(firstPresent(raw, "order", "sequence", "lesson_number"))
	if !orderOK {
		return PlanItem{}, false
	}
	week, _ := safeInt(raw["week"])
	hour, _ := safeInt(firstPresent(raw, "hour", "hours", "学时"))
	title := strings.TrimSpace(asString(firstPresent(raw, "title", "project_name", "project")))
	tasks := normalizeTasks(firstPresent(raw, "tasks", "task", "content"))

	return PlanItem{
		Week:  week,
		Order: order,
		Title: title,
		Tasks: tasks,
		Hour:  hour,
	}, true
}

// InferHourPerClass picks the statistical mode of positive hour values; ties
// resolve to the smaller hour so a conservative estimate wins. Returns 0 when
// nothing can be inferred and no positive fallback exists.
func InferHourPerClass(schedule []PlanItem, fallback int) int {
	counts := map[int]int{}
	for _, item := range schedule {
		if item.Hour > 0 {
			counts[item.Hour]++
		}
	}
	best, bestCount := 0, 0
	for hour, count := range counts {
		if count > bestCount || (count == bestCount && (best == 0 || hour < best)) {
			best, bestCount = hour, count
		}
	}
	if best > 0 {
		return best
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

// FallbackHourPerClass derives a per-session hour from a known course total
// when no per-item hours exist: ceil(total / sessions).
func FallbackHourPerClass(totalHours, sessions int) int {
	if totalHours <= 0 || sessions <= 0 {
		return 0
	}
	return int(math.Ceil(float64(totalHours) / float64(sessions)))
}

// Build normalizes raw rows into PlanParams: drops orderless rows, sorts by
// order, infers hour_per_class, and backfills missing per-item hours with it.
func Build(rawSchedule []map[string]any, hourPerClass int) PlanParams {
	items := make([]PlanItem, 0, len(rawSchedule))
	for _, raw := range rawSchedule {
		if item, ok := NormalizeItem(raw); ok {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Order < items[j].Order })

	inferred := InferHourPerClass(items, hourPerClass)
	if inferred > 0 {
		for i := range items {
			if items[i].Hour <= 0 {
				items[i].Hour = inferred
			}
		}
	}

	params := PlanParams{Schedule: items}
	if inferred > 0 {
		params.HourPerClass = &inferred
	}
	return params
}

// FromItems wraps an already-typed schedule, applying the same inference and
// backfill as Build.
func FromItems(items []PlanItem, hourPerClass int) PlanParams {
	sorted := make([]PlanItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	inferred := InferHourPerClass(sorted, hourPerClass)
	if inferred > 0 {
		for i := range sorted {
			if sorted[i].Hour <= 0 {
				sorted[i].Hour = inferred
			}
		}
	}
	params := PlanParams{Schedule: sorted}
	if inferred > 0 {
		params.HourPerClass = &inferred
	}
	return params
}

// Item returns the plan row whose order equals sequence, or nil.
func (p PlanParams) Item(sequence int) *PlanItem {
	for i := range p.Schedule {
		if p.Schedule[i].Order == sequence {
			return &p.Schedule[i]
		}
	}
	return nil
}

// CumulativeHours sums hours over items with order <= sequence; items with no
// hour fall back to defaultHour when positive.
func (p PlanParams) CumulativeHours(sequence, defaultHour int) int {
	total := 0
	for _, item := range p.Schedule {
		if item.Order > sequence {
			continue
		}
		switch {
		case item.Hour > 0:
			total += item.Hour
		case defaultHour > 0:
			total += defaultHour
		}
	}
	return total
}
