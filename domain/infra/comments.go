package infra

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pyama86/feedback-control/domain/model"
	"github.com/tidwall/gjson"
)

// 1回の読み込みで取得する件数
const CommentsLimit = 15

const DefaultCommentsURL = "https://jsonplaceholder.typicode.com"

// コメントの取得・デコードに失敗した
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch comments from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Comments struct {
	baseURL string
	client  *http.Client
	now     func() time.Time
}

func NewComments(baseURL string, timeout time.Duration) *Comments {
	if baseURL == "" {
		baseURL = DefaultCommentsURL
	}
	return &Comments{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		now:     timeNow,
	}
}

func (c *Comments) endpoint() string {
	q := url.Values{}
	q.Set("_limit", strconv.Itoa(CommentsLimit))
	return c.baseURL + "/comments?" + q.Encode()
}

// コメントを取得してフィードバックに変換する。リトライはしない
func (c *Comments) Load(ctx context.Context) ([]model.Feedback, error) {
	u := c.endpoint()
	fail := func(err error) error {
		return &FetchError{URL: u, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fail(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fail(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(fmt.Errorf("unexpected status: %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fail(fmt.Errorf("invalid json"))
	}
	result := gjson.ParseBytes(body)
	if !result.IsArray() {
		return nil, fail(fmt.Errorf("expected array, got %s", result.Type))
	}

	// 作成日時は元データではなく読み込んだ時刻
	createdAt := c.now()
	var feedbacks []model.Feedback
	for i, item := range result.Array() {
		id := item.Get("id")
		if id.Type != gjson.Number {
			return nil, fail(fmt.Errorf("item %d has no numeric id", i))
		}
		feedbacks = append(feedbacks, model.NewFeedback(
			int(id.Int()),
			item.Get("name").String(),
			item.Get("body").String(),
			createdAt,
		))
	}
	return feedbacks, nil
}
