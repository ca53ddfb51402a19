package infra

import (
	"time"

	"github.com/pyama86/feedback-control/domain/model"
)

const latestResponsesLimit = 10

type Datastore interface {
	// 回答を記録する
	SaveResponse(*model.Response) error
	// 最新の10件の回答を取得する
	GetLatestResponses(string) ([]model.Response, error)
	// フィードバック1件に対する回答を古い順に取得する
	GetFeedbackResponses(string, int) ([]model.Response, error)
}

func timeNow() time.Time {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		loc = time.UTC
	}
	return time.Now().In(loc)
}
