package infra

import (
	"os"
	"path"

	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pyama86/feedback-control/domain/model"
)

type DataBase struct {
	db *gorm.DB
}

func NewDataBase(dbpath string) (*DataBase, error) {
	if dbpath == "" {
		dbpath = "./db/feedback_control.db"
	}
	if !path.IsAbs(dbpath) {
		dbpath = path.Join(os.Getenv("PWD"), dbpath)
	}
	db, err := gorm.Open("sqlite3", dbpath)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.Response{}).Error; err != nil {
		db.Close()
		return nil, err
	}
	return &DataBase{db: db}, nil
}

func (d *DataBase) Close() error {
	return d.db.Close()
}

func (d *DataBase) SaveResponse(response *model.Response) error {
	if response.CreatedAt.IsZero() {
		response.CreatedAt = timeNow()
	}
	// sqlite では文字列で比較されるのでタイムゾーンを揃える
	response.RespondedAt = response.RespondedAt.UTC()
	return d.db.Create(response).Error
}

func (d *DataBase) GetLatestResponses(botID string) ([]model.Response, error) {
	var responses []model.Response
	err := d.db.Where("bot_id = ?", botID).Order("responded_at desc, id desc").Limit(latestResponsesLimit).Find(&responses).Error
	return responses, err
}

func (d *DataBase) GetFeedbackResponses(botID string, feedbackID int) ([]model.Response, error) {
	var responses []model.Response
	err := d.db.Where("bot_id = ? AND feedback_id = ?", botID, feedbackID).Order("responded_at asc, id asc").Find(&responses).Error
	return responses, err
}
