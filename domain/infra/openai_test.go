package infra

import (
	"testing"
	"time"

	"github.com/pyama86/feedback-control/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAI_Disabled(t *testing.T) {
	o, err := NewOpenAI(OpenAIOptions{})
	assert.NoError(t, err)
	assert.Nil(t, o)
}

func TestNewOpenAI_AzureRequiresKey(t *testing.T) {
	_, err := newOpenAIClient(OpenAIOptions{AzureEndpoint: "https://example.openai.azure.com"})
	assert.Error(t, err)
}

func TestSummaryPrompt(t *testing.T) {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	responded, err := model.NewFeedback(2, "Bob", "line1\nline2", created).WithResponse("thanks", model.StatusAddressed, created.Add(time.Hour))
	require.NoError(t, err)

	prompt := summaryPrompt([]model.Feedback{
		model.NewFeedback(1, "Alice", "slow page", created),
		responded,
	})

	assert.Contains(t, prompt, "id:1 name:Alice status:Unacknowledged")
	assert.Contains(t, prompt, "id:2 name:Bob status:Addressed")
	assert.Contains(t, prompt, "body:line1 line2")
	assert.Contains(t, prompt, "response:thanks")
}
