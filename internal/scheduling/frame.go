// Package scheduling computes which calendar week each class session of a
// teaching plan falls in. Pure arithmetic, no I/O.
package scheduling

import "fmt"

// DefaultMaxSlack is the tolerated surplus between available and required
// session slots. Heuristic, tunable; callers may pass their own bound to
// CheckSlack.
const DefaultMaxSlack = 6

// Slot anchors one class session: Order is the 1-based session index across
// the whole plan, Week the calendar week it lands in.
type Slot struct {
	Order int `json:"order"`
	Week  int `json:"week"`
}

// SkipSlot excludes one (week, session-within-week) pair from scheduling.
type SkipSlot struct {
	Week  int `json:"week"`
	Class int `json:"class"`
}

// Params are the scheduling inputs shared by AvailableSlotCount and
// BuildScheduleFrame. ClassesPerWeek is clamped to 1..7 and FirstWeekClasses
// to 1..ClassesPerWeek before use.
type Params struct {
	TotalWeeks       int
	ClassesPerWeek   int
	FirstWeekClasses int
	SkipSlots        []SkipSlot
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (p Params) normalized() Params {
	p.ClassesPerWeek = clamp(p.ClassesPerWeek, 1, 7)
	p.FirstWeekClasses = clamp(p.FirstWeekClasses, 1, p.ClassesPerWeek)
	return p
}

func (p Params) weekLimit(week int) int {
	if week == 1 {
		return p.FirstWeekClasses
	}
	return p.ClassesPerWeek
}

// skipSet keeps only exclusions that point at a real slot; out-of-range
// entries are ignored rather than rejected.
func (p Params) skipSet() map[SkipSlot]struct{} {
	set := make(map[SkipSlot]struct{}, len(p.SkipSlots))
	for _, s := range p.SkipSlots {
		if s.Week < 1 || s.Week > p.TotalWeeks {
			continue
		}
		if s.Class < 1 || s.Class > p.weekLimit(s.Week) {
			continue
		}
		set[SkipSlot{Week: s.Week, Class: s.Class}] = struct{}{}
	}
	return set
}

// AvailableSlotCount returns how many class sessions the calendar can hold
// after exclusions. Degenerate inputs (no weeks, no weekly classes) yield
// zero rather than an error; the caller's slack check produces the clearer
// message downstream.
func AvailableSlotCount(p Params) int {
	if p.TotalWeeks < 1 || p.ClassesPerWeek < 1 {
		return 0
	}
	p = p.normalized()
	skip := p.skipSet()

	available := 0
	for week := 1; week <= p.TotalWeeks; week++ {
		limit := p.weekLimit(week)
		for class := 1; class <= limit; class++ {
			if _, excluded := skip[SkipSlot{Week: week, Class: class}]; excluded {
				continue
			}
			available++
		}
	}
	return available
}

// BuildScheduleFrame assigns actualClasses sessions to calendar weeks in
// week-then-index order, skipping exclusions, stopping as soon as the frame
// is full. Orders are contiguous 1..N.
func BuildScheduleFrame(p Params, actualClasses int) []Slot {
	if p.TotalWeeks < 1 || p.ClassesPerWeek < 1 || actualClasses < 1 {
		return nil
	}
	p = p.normalized()
	skip := p.skipSet()

	frame := make([]Slot, 0, actualClasses)
	for week := 1; week <= p.TotalWeeks; week++ {
		limit := p.weekLimit(week)
		for class := 1; class <= limit; class++ {
			if _, excluded := skip[SkipSlot{Week: week, Class: class}]; excluded {
				continue
			}
			frame = append(frame, Slot{Order: len(frame) + 1, Week: week})
			if len(frame) >= actualClasses {
				return frame
			}
		}
	}
	return frame
}

// CheckSlack verifies the plan's slot demand against the calendar before any
// LLM call is made. A negative difference means the plan cannot fit; a
// surplus beyond maxSlack almost always signals a misconfigured calendar, so
// it is rejected too.
func CheckSlack(available, actualClasses, maxSlack int) error {
	diff := available - actualClasses
	if diff < 0 {
		return fmt.Errorf(
			"排课参数不匹配：需要 %d 次课，但可用课次为 %d 次。请调整第一周上课次数、每周上课次数或不上课设置。",
			actualClasses, available,
		)
	}
	if diff > maxSlack {
		return fmt.Errorf(
			"排课参数差额过大：需要 %d 次课，但可用课次为 %d 次。差额不能超过 %d 次，请调整参数。",
			actualClasses, available, maxSlack,
		)
	}
	return nil
}
