package model

import (
	"fmt"
	"time"
)

// 回答の記録。セッション内のフィードバックには反映されない
type Response struct {
	ID           uint   `gorm:"primary_key"`
	BotID        string `gorm:"type:varchar(50)"`
	FeedbackID   int    `gorm:"index"`
	CustomerName string `gorm:"type:varchar(100)"`
	Status       string `gorm:"type:varchar(20)"`
	Text         string `gorm:"type:text"`
	ResponderID  string `gorm:"type:varchar(50)"` // 回答者の Slack ユーザー ID
	RespondedAt  time.Time
	CreatedAt    time.Time
}

func NewResponse(botID, responderID string, f Feedback) *Response {
	r := &Response{
		BotID:        botID,
		FeedbackID:   f.ID,
		CustomerName: f.Name,
		Status:       f.ResponseStatus.String(),
		Text:         f.ResponseText,
		ResponderID:  responderID,
	}
	if f.ResponseTime != nil {
		r.RespondedAt = *f.ResponseTime
	}
	return r
}

func (r Response) String() string {
	return fmt.Sprintf("time:%s feedback:%d status:%s responder:%s content:%s", r.RespondedAt.Format(time.RFC3339), r.FeedbackID, r.Status, r.ResponderID, r.Text)
}
