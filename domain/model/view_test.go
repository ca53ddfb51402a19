package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(records []Feedback) []int {
	out := make([]int, 0, len(records))
	for _, f := range records {
		out = append(out, f.ID)
	}
	return out
}

func TestDateRange_Contains(t *testing.T) {
	r := DateRange{Start: at(10), End: at(20)}

	assert.True(t, r.Contains(at(10)), "start is inclusive")
	assert.True(t, r.Contains(at(20)), "end is inclusive")
	assert.True(t, r.Contains(at(15)))
	assert.False(t, r.Contains(at(9)))
	assert.False(t, r.Contains(at(21)))

	assert.True(t, DateRange{Start: at(10)}.Contains(at(1000)))
	assert.False(t, DateRange{Start: at(10)}.Contains(at(9)))
	assert.True(t, DateRange{End: at(10)}.Contains(at(-1000)))
	assert.False(t, DateRange{End: at(10)}.Contains(at(11)))
	assert.True(t, DateRange{}.Contains(at(0)))
	assert.True(t, DateRange{}.Unbounded())
}

func TestView_FilterUsesEffectiveTime(t *testing.T) {
	responded, err := NewFeedback(2, "B", "", at(0)).WithResponse("ok", StatusAddressed, at(30))
	require.NoError(t, err)

	records := []Feedback{
		NewFeedback(1, "A", "", at(0)),
		responded,
		NewFeedback(3, "C", "", at(20)),
	}

	got := View(records, DateRange{Start: at(20), End: at(30)})
	assert.Equal(t, []int{3, 2}, ids(got))

	got = View(records, DateRange{End: at(0)})
	assert.Equal(t, []int{1}, ids(got))
}

func TestView_SortIsStable(t *testing.T) {
	records := []Feedback{
		NewFeedback(5, "A", "", at(1)),
		NewFeedback(3, "B", "", at(0)),
		NewFeedback(4, "C", "", at(1)),
		NewFeedback(1, "D", "", at(0)),
	}

	got := View(records, DateRange{})
	assert.Equal(t, []int{3, 1, 5, 4}, ids(got))
}

func TestView_DoesNotModifyInput(t *testing.T) {
	records := []Feedback{
		NewFeedback(1, "A", "", at(5)),
		NewFeedback(2, "B", "", at(1)),
	}

	first := View(records, DateRange{})
	second := View(records, DateRange{})

	assert.Equal(t, []int{1, 2}, ids(records))
	assert.Equal(t, first, second)
}

func TestView_ResponseMovesRecordToEnd(t *testing.T) {
	records := []Feedback{
		NewFeedback(1, "A", "", at(1)),
		NewFeedback(2, "B", "", at(2)),
	}
	assert.Equal(t, []int{1, 2}, ids(View(records, DateRange{})))

	updated, err := records[0].WithResponse("fixed", StatusAddressed, at(3))
	require.NoError(t, err)
	records[0] = updated

	assert.Equal(t, []int{2, 1}, ids(View(records, DateRange{})))
}

func TestView_Empty(t *testing.T) {
	got := View(nil, DateRange{Start: at(0)})
	assert.NotNil(t, got)
	assert.Len(t, got, 0)
}
