package infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/pyama86/feedback-control/domain/model"
)

type OpenAIOptions struct {
	APIKey          string
	Model           string
	AzureKey        string
	AzureEndpoint   string
	AzureAPIVersion string
}

type OpenAI struct {
	client *openai.Client
	model  string
}

// キーが未設定なら nil を返す(サマリ機能は無効)
func NewOpenAI(opts OpenAIOptions) (*OpenAI, error) {
	if opts.APIKey == "" && opts.AzureKey == "" {
		return nil, nil
	}
	client, err := newOpenAIClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}
	return &OpenAI{
		client: client,
		model:  opts.Model,
	}, nil
}

func newOpenAIClient(opts OpenAIOptions) (*openai.Client, error) {
	if opts.AzureEndpoint != "" {
		return newAzureClient(opts)
	}

	if opts.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	options := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
	}

	c := openai.NewClient(options...)
	return &c, nil
}

func newAzureClient(opts OpenAIOptions) (*openai.Client, error) {
	if opts.AzureKey == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_KEY is not set")
	}

	var azureOpenAIAPIVersion = "2025-01-01-preview"
	if opts.AzureAPIVersion != "" {
		azureOpenAIAPIVersion = opts.AzureAPIVersion
	}

	c := openai.NewClient(
		azure.WithEndpoint(opts.AzureEndpoint, azureOpenAIAPIVersion),
		azure.WithAPIKey(opts.AzureKey),
	)
	return &c, nil
}

func summaryPrompt(feedbacks []model.Feedback) string {
	lines := make([]string, 0, len(feedbacks))
	for _, f := range feedbacks {
		lines = append(lines, "- "+f.String()+" body:"+strings.ReplaceAll(f.Body, "\n", " "))
	}
	return fmt.Sprintf(`## 依頼内容
あなたに渡すコンテンツは私達のチームに届いた顧客フィードバックと、その対応状況です。
内容はID、顧客名、対応ステータス、作成日時、回答内容、フィードバック本文です。
チームで状況を把握するためのサマリを作ってください。

## 回答内容の指定
- まだ対応していない(Unacknowledged)フィードバックのうち、優先度が高そうなものをピックアップする
- 無視(Ignored)したフィードバックに見直したほうが良いものがあればピックアップする
- 複数のフィードバックに共通するテーマがあれば説明する

## フォーマットの指定
*優先して対応すべきフィードバック*
> {フィードバックを羅列して、必要であればコメントしてください}

*見直したほうが良いフィードバック*
> {フィードバックを羅列して、必要であればコメントしてください}

*共通するテーマ*
> {テーマを羅列して、必要であればコメントしてください}

## 現在時刻
%s
## フィードバック
%s
`,
		timeNow().Format("2006-01-02 15:04:05"),
		strings.Join(lines, "\n"),
	)
}

func (h *OpenAI) GenerateSummary(ctx context.Context, feedbacks []model.Feedback) (string, error) {
	response, err := h.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(summaryPrompt(feedbacks)),
		},
		Model: h.model,
	})

	if err != nil {
		return "", fmt.Errorf("failed to call OpenAI API: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("OpenAI API returned no choices")
	}

	return response.Choices[0].Message.Content, nil
}
