package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
)

type Config struct {
	SlackBotToken  string `env:"SLACK_BOT_TOKEN,required,notEmpty"`
	SlackAppToken  string `env:"SLACK_APP_TOKEN,required,notEmpty"`
	DefaultChannel string `env:"DEFAULT_CHANNEL"`

	CommentsURL  string        `env:"COMMENTS_API_URL" envDefault:"https://jsonplaceholder.typicode.com"`
	FetchTimeout time.Duration `env:"COMMENTS_FETCH_TIMEOUT" envDefault:"10s"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBPath   string `env:"DB_PATH" envDefault:"./db/feedback_control.db"`

	DynamoLocal             bool   `env:"DYNAMO_LOCAL"`
	DynamoEndpoint          string `env:"DYNAMO_ENDPOINT" envDefault:"http://localhost:8000"`
	DynamoTableNamePrefix   string `env:"DYNAMO_TABLE_NAME_PREFIX" envDefault:"feedback_control"`
	DynamoResponseTableName string `env:"DYNAMO_RESPONSE_TABLE_NAME"`

	OpenAIAPIKey          string `env:"OPENAI_API_KEY"`
	OpenAIModel           string `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	AzureOpenAIKey        string `env:"AZURE_OPENAI_KEY"`
	AzureOpenAIEndpoint   string `env:"AZURE_OPENAI_ENDPOINT"`
	AzureOpenAIAPIVersion string `env:"AZURE_OPENAI_API_VERSION"`

	// 回答モーダルを開いたままにできる時間
	EditingTTL time.Duration `env:"EDITING_TTL" envDefault:"30m"`
	// 日時の表示に使うタイムゾーン
	TimeZone string `env:"TZ_NAME" envDefault:"Asia/Tokyo"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case DriverSQLite, DriverDynamoDB:
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %q", c.DBDriver)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("COMMENTS_FETCH_TIMEOUT must be positive: %s", c.FetchTimeout)
	}
	if c.EditingTTL <= 0 {
		return fmt.Errorf("EDITING_TTL must be positive: %s", c.EditingTTL)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid TZ_NAME: %w", err)
	}
	return nil
}

// 表示用のタイムゾーン。読み込めなければ UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
