package model

import (
	"errors"
	"fmt"
	"time"
)

// 対応ステータス
type ResponseStatus string

const (
	StatusUnacknowledged ResponseStatus = "Unacknowledged"
	StatusAcknowledged   ResponseStatus = "Acknowledged"
	StatusAddressed      ResponseStatus = "Addressed"
	StatusIgnored        ResponseStatus = "Ignored"
)

var ErrInvalidStatus = errors.New("invalid response status")

// ユーザーが選択できるステータス(Unacknowledged は初期値のみ)
var SubmittableStatuses = []ResponseStatus{
	StatusAcknowledged,
	StatusAddressed,
	StatusIgnored,
}

func (s ResponseStatus) Submittable() bool {
	for _, v := range SubmittableStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s ResponseStatus) String() string {
	return string(s)
}

func ParseResponseStatus(v string) (ResponseStatus, error) {
	s := ResponseStatus(v)
	if s == StatusUnacknowledged || s.Submittable() {
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, v)
}

// 顧客からのフィードバック1件と、その対応状況
type Feedback struct {
	ID             int            `json:"id"`
	Name           string         `json:"name"`
	Body           string         `json:"body"`
	CreatedAt      time.Time      `json:"created_at"`
	ResponseStatus ResponseStatus `json:"response_status"`
	ResponseText   string         `json:"response_text"`
	ResponseTime   *time.Time     `json:"response_time,omitempty"`
}

// 読み込み直後のフィードバックを作る
func NewFeedback(id int, name, body string, createdAt time.Time) Feedback {
	return Feedback{
		ID:             id,
		Name:           name,
		Body:           body,
		CreatedAt:      createdAt,
		ResponseStatus: StatusUnacknowledged,
	}
}

// 回答済みなら回答日時、未回答なら作成日時
func (f Feedback) EffectiveTime() time.Time {
	if f.ResponseTime != nil {
		return *f.ResponseTime
	}
	return f.CreatedAt
}

func (f Feedback) Responded() bool {
	return f.ResponseTime != nil
}

// 回答を反映したコピーを返す。レシーバは変更しない
func (f Feedback) WithResponse(text string, status ResponseStatus, at time.Time) (Feedback, error) {
	if !status.Submittable() {
		return f, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	t := at
	f.ResponseText = text
	f.ResponseStatus = status
	f.ResponseTime = &t
	return f, nil
}

func (f Feedback) String() string {
	return fmt.Sprintf("id:%d name:%s status:%s created_at:%s response:%s", f.ID, f.Name, f.ResponseStatus, f.CreatedAt.Format(time.RFC3339), f.ResponseText)
}
