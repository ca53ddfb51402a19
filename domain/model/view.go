package model

import (
	"sort"
	"time"
)

// 絞り込み期間。ゼロ値の境界は上限/下限なしとして扱う
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Unbounded() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// 両端を含む
func (r DateRange) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// 期間で絞り込み、実効日時の昇順に並べる。同時刻は元の並びを保つ
func View(records []Feedback, r DateRange) []Feedback {
	out := make([]Feedback, 0, len(records))
	for _, f := range records {
		if r.Contains(f.EffectiveTime()) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectiveTime().Before(out[j].EffectiveTime())
	})
	return out
}
