package availability

import (
	"sort"
	"time"
)

// Interval is a half-open span [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Empty() bool {
	return !i.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	if i.Empty() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Contains reports whether [start, end) lies entirely inside the interval.
func (i Interval) Contains(start, end time.Time) bool {
	return !start.Before(i.Start) && !end.After(i.End)
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Normalize sorts intervals, drops empty ones and merges overlapping or touching spans.
func Normalize(in []Interval) []Interval {
	out := make([]Interval, 0, len(in))
	for _, iv := range in {
		if !iv.Empty() {
			out = append(out, iv)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Start.Before(out[b].Start) })

	merged := out[:0]
	for _, iv := range out {
		if n := len(merged); n > 0 && !iv.Start.After(merged[n-1].End) {
			if iv.End.After(merged[n-1].End) {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Intersect returns the spans covered by both a and b.
func Intersect(a, b []Interval) []Interval {
	a, b = Normalize(a), Normalize(b)
	var out []Interval
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		start := later(a[i].Start, b[j].Start)
		end := earlier(a[i].End, b[j].End)
		if start.Before(end) {
			out = append(out, Interval{Start: start, End: end})
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}

// Subtract removes cut from every interval, splitting where needed.
func Subtract(in []Interval, cut Interval) []Interval {
	if cut.Empty() {
		return in
	}
	out := make([]Interval, 0, len(in)+1)
	for _, iv := range in {
		if !iv.Overlaps(cut) {
			out = append(out, iv)
			continue
		}
		if iv.Start.Before(cut.Start) {
			out = append(out, Interval{Start: iv.Start, End: cut.Start})
		}
		if cut.End.Before(iv.End) {
			out = append(out, Interval{Start: cut.End, End: iv.End})
		}
	}
	return out
}

// Clamp trims every interval to [lo, hi).
func Clamp(in []Interval, lo, hi time.Time) []Interval {
	out := make([]Interval, 0, len(in))
	for _, iv := range in {
		iv.Start = later(iv.Start, lo)
		iv.End = earlier(iv.End, hi)
		if !iv.Empty() {
			out = append(out, iv)
		}
	}
	return out
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
