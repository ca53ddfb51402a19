package infra

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pyama86/feedback-control/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCommentsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/comments", r.URL.Path)
		assert.Equal(t, "15", r.URL.Query().Get("_limit"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestComments_Load(t *testing.T) {
	server := newCommentsServer(t, http.StatusOK, `[
		{"postId": 1, "id": 7, "name": "A", "email": "a@example.com", "body": "hi"},
		{"postId": 1, "id": 8, "name": "B", "email": "b@example.com", "body": "hello\nworld"}
	]`)

	c := NewComments(server.URL+"/", time.Second)
	before := time.Now()
	feedbacks, err := c.Load(context.Background())
	after := time.Now()
	require.NoError(t, err)
	require.Len(t, feedbacks, 2)

	f := feedbacks[0]
	assert.Equal(t, 7, f.ID)
	assert.Equal(t, "A", f.Name)
	assert.Equal(t, "hi", f.Body)
	assert.Equal(t, model.StatusUnacknowledged, f.ResponseStatus)
	assert.Equal(t, "", f.ResponseText)
	assert.Nil(t, f.ResponseTime)
	assert.False(t, f.CreatedAt.Before(before.Truncate(time.Second)))
	assert.False(t, f.CreatedAt.After(after))

	assert.Equal(t, 8, feedbacks[1].ID)
	assert.Equal(t, "hello\nworld", feedbacks[1].Body)
	assert.Equal(t, f.CreatedAt, feedbacks[1].CreatedAt)
}

func TestComments_LoadFetchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`},
		{name: "invalid json", status: http.StatusOK, body: `[{"id": 1,`},
		{name: "not an array", status: http.StatusOK, body: `{"id": 1}`},
		{name: "missing id", status: http.StatusOK, body: `[{"name": "A", "body": "hi"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newCommentsServer(t, tt.status, tt.body)

			feedbacks, err := NewComments(server.URL, time.Second).Load(context.Background())
			assert.Nil(t, feedbacks)

			var fetchErr *FetchError
			require.True(t, errors.As(err, &fetchErr), "err=%v", err)
			assert.Contains(t, fetchErr.URL, server.URL)
		})
	}
}

func TestComments_LoadTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewComments(url, time.Second).Load(context.Background())
	var fetchErr *FetchError
	assert.True(t, errors.As(err, &fetchErr))
}

func TestComments_LoadCancelled(t *testing.T) {
	server := newCommentsServer(t, http.StatusOK, `[]`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewComments(server.URL, time.Second).Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComments_Endpoint(t *testing.T) {
	c := NewComments("", time.Second)
	assert.Equal(t, "https://jsonplaceholder.typicode.com/comments?_limit=15", c.endpoint())
}
