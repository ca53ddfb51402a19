package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func at(min int) time.Time {
	return baseTime.Add(time.Duration(min) * time.Minute)
}

func TestNewFeedback(t *testing.T) {
	f := NewFeedback(7, "A", "hi", baseTime)

	assert.Equal(t, 7, f.ID)
	assert.Equal(t, StatusUnacknowledged, f.ResponseStatus)
	assert.Equal(t, "", f.ResponseText)
	assert.Nil(t, f.ResponseTime)
	assert.False(t, f.Responded())
	assert.Equal(t, baseTime, f.EffectiveTime())
}

func TestFeedback_WithResponse(t *testing.T) {
	orig := NewFeedback(1, "A", "hi", baseTime)

	updated, err := orig.WithResponse("fixed", StatusAddressed, at(5))
	require.NoError(t, err)

	assert.Equal(t, "fixed", updated.ResponseText)
	assert.Equal(t, StatusAddressed, updated.ResponseStatus)
	require.NotNil(t, updated.ResponseTime)
	assert.Equal(t, at(5), *updated.ResponseTime)
	assert.Equal(t, at(5), updated.EffectiveTime())

	// 元の値は変わらない
	assert.Nil(t, orig.ResponseTime)
	assert.Equal(t, StatusUnacknowledged, orig.ResponseStatus)
}

func TestFeedback_WithResponseRejectsUnacknowledged(t *testing.T) {
	orig := NewFeedback(1, "A", "hi", baseTime)

	got, err := orig.WithResponse("x", StatusUnacknowledged, at(1))
	assert.True(t, errors.Is(err, ErrInvalidStatus))
	assert.Equal(t, orig, got)

	_, err = orig.WithResponse("x", ResponseStatus("Closed"), at(1))
	assert.True(t, errors.Is(err, ErrInvalidStatus))
}

func TestParseResponseStatus(t *testing.T) {
	for _, v := range []string{"Unacknowledged", "Acknowledged", "Addressed", "Ignored"} {
		s, err := ParseResponseStatus(v)
		assert.NoError(t, err)
		assert.Equal(t, v, s.String())
	}

	_, err := ParseResponseStatus("addressed")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestResponseStatus_Submittable(t *testing.T) {
	assert.False(t, StatusUnacknowledged.Submittable())
	assert.True(t, StatusAcknowledged.Submittable())
	assert.True(t, StatusAddressed.Submittable())
	assert.True(t, StatusIgnored.Submittable())
}

func TestNewResponse(t *testing.T) {
	f, err := NewFeedback(3, "Eliseo", "body", baseTime).WithResponse("thanks", StatusAcknowledged, at(10))
	require.NoError(t, err)

	r := NewResponse("B1", "U1", f)
	assert.Equal(t, "B1", r.BotID)
	assert.Equal(t, 3, r.FeedbackID)
	assert.Equal(t, "Eliseo", r.CustomerName)
	assert.Equal(t, "Acknowledged", r.Status)
	assert.Equal(t, "thanks", r.Text)
	assert.Equal(t, "U1", r.ResponderID)
	assert.Equal(t, at(10), r.RespondedAt)
}
