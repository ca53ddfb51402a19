package handler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pyama86/feedback-control/config"
	"github.com/pyama86/feedback-control/domain/infra"
	"github.com/pyama86/feedback-control/domain/model"
	"github.com/pyama86/feedback-control/domain/store"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

const (
	cmdList    = "list"
	cmdRange   = "range"
	cmdHistory = "history"
	cmdSummary = "summary"
	cmdReload  = "reload"
)

const summaryTimeout = time.Minute

type Summarizer interface {
	GenerateSummary(context.Context, []model.Feedback) (string, error)
}

type Handler struct {
	cfg           *config.Config
	client        infra.SlackAPI
	userInfoCache *ttlcache.Cache[string, *slack.User]
	// Slack ユーザーごとの編集状態
	editing    *ttlcache.Cache[string, model.State]
	ds         infra.Datastore
	store      *store.Store
	loader     store.Loader
	summarizer Summarizer
	loc        *time.Location
	now        func() time.Time
	botID      string
}

func NewHandler(cfg *config.Config) (*Handler, error) {
	var ds infra.Datastore
	var err error
	if cfg.DBDriver == config.DriverDynamoDB {
		ds, err = infra.NewDynamoDB(infra.DynamoDBOptions{
			TablePrefix:       cfg.DynamoTableNamePrefix,
			ResponseTableName: cfg.DynamoResponseTableName,
			Local:             cfg.DynamoLocal,
			Endpoint:          cfg.DynamoEndpoint,
		})
		if err != nil {
			return nil, err
		}
	} else {
		ds, err = infra.NewDataBase(cfg.DBPath)
		if err != nil {
			return nil, err
		}
	}

	ai, err := infra.NewOpenAI(infra.OpenAIOptions{
		APIKey:          cfg.OpenAIAPIKey,
		Model:           cfg.OpenAIModel,
		AzureKey:        cfg.AzureOpenAIKey,
		AzureEndpoint:   cfg.AzureOpenAIEndpoint,
		AzureAPIVersion: cfg.AzureOpenAIAPIVersion,
	})
	if err != nil {
		return nil, err
	}

	api := slack.New(cfg.SlackBotToken)
	h := newHandler(cfg, api, ds, infra.NewComments(cfg.CommentsURL, cfg.FetchTimeout))
	if ai != nil {
		h.summarizer = ai
	}
	go h.userInfoCache.Start()
	go h.editing.Start()
	return h, nil
}

func newHandler(cfg *config.Config, client infra.SlackAPI, ds infra.Datastore, loader store.Loader) *Handler {
	loc := cfg.Location()
	return &Handler{
		cfg:           cfg,
		client:        client,
		userInfoCache: ttlcache.New(ttlcache.WithTTL[string, *slack.User](24 * time.Hour)),
		editing:       ttlcache.New(ttlcache.WithTTL[string, model.State](cfg.EditingTTL)),
		ds:            ds,
		store:         store.New(),
		loader:        loader,
		loc:           loc,
		now:           func() time.Time { return time.Now().In(loc) },
	}
}

func (h *Handler) Handle() error {
	webApi := slack.New(
		h.cfg.SlackBotToken,
		slack.OptionAppLevelToken(h.cfg.SlackAppToken),
	)
	socketMode := socketmode.New(
		webApi,
	)
	authTest, authTestErr := webApi.AuthTest()
	if authTestErr != nil {
		fmt.Fprintf(os.Stderr, "SLACK_BOT_TOKEN is invalid: %v\n", authTestErr)
		os.Exit(1)
	}
	h.botID = authTest.UserID

	// フィードバックの読み込みは起動時に1回だけ
	go h.LoadFeedbacks(context.Background())

	go func() {
		for envelope := range socketMode.Events {
			switch envelope.Type {
			case socketmode.EventTypeEventsAPI:
				socketMode.Ack(*envelope.Request)
				eventPayload, ok := envelope.Data.(slackevents.EventsAPIEvent)
				if !ok {
					slog.Error("Failed to cast to EventsAPIEvent")
					continue
				}
				h.handleCallBack(&eventPayload)
			case socketmode.EventTypeInteractive:
				socketMode.Ack(*envelope.Request)
				callback, ok := envelope.Data.(slack.InteractionCallback)
				if !ok {
					slog.Error("Failed to cast to InteractionCallback")
					continue
				}
				h.handleInteractions(&callback)
			default:
				socketMode.Debugf("Skipped: %v", envelope.Type)
			}
		}
	}()

	return socketMode.Run()
}

func (h *Handler) LoadFeedbacks(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.FetchTimeout)
	defer cancel()

	if err := h.store.Load(ctx, h.loader); err != nil {
		slog.Error("Failed to load feedbacks", slog.Any("err", err))
		h.notifyLoaded()
		return
	}
	slog.Info("Feedbacks loaded", slog.Int("count", h.store.Len()))
	h.notifyLoaded()
}

// 読み込み結果を既定のチャンネルに通知する
func (h *Handler) notifyLoaded() {
	if h.cfg.DefaultChannel == "" {
		return
	}
	if err := h.showFeedbacks(h.cfg.DefaultChannel, ""); err != nil {
		slog.Error("Failed to post feedbacks", slog.Any("err", err))
	}
}

func (h *Handler) handleInteractions(callback *slack.InteractionCallback) {
	switch callback.Type {
	case slack.InteractionTypeBlockActions:
		if len(callback.ActionCallback.BlockActions) < 1 {
			return
		}
		action := callback.ActionCallback.BlockActions[0]
		channelID := callback.Channel.ID

		switch action.ActionID {
		case "list_action":
			if err := h.showFeedbacks(channelID, action.Value); err != nil {
				slog.Error("showFeedbacks failed", slog.Any("err", err))
			}
		case "history_action":
			if err := h.showResponses(channelID, callback.User.ID, action.Value); err != nil {
				slog.Error("showResponses failed", slog.Any("err", err))
			}
		case "summary_action":
			if err := h.postSummary(channelID, callback.User.ID, action.Value); err != nil {
				slog.Error("postSummary failed", slog.Any("err", err))
			}
		case actionRespond:
			if err := h.openRespondModal(callback.TriggerID, channelID, callback.User.ID, action.Value); err != nil {
				slog.Error("openRespondModal failed", slog.Any("err", err))
			}
		case actionRangeStart, actionRangeEnd:
			if err := h.applyDatePicker(action.ActionID, action.SelectedDate); err != nil {
				h.postEphemeral(channelID, callback.User.ID, fmt.Sprintf(":warning: 期間の指定が不正です: %s", err))
				return
			}
			if err := h.updateFeedbacks(channelID, callback.Message.Timestamp); err != nil {
				slog.Error("updateFeedbacks failed", slog.Any("err", err))
			}
		}

	case slack.InteractionTypeViewSubmission:
		switch callback.View.CallbackID {
		case callbackRespond:
			var values map[string]map[string]slack.BlockAction
			if callback.View.State != nil {
				values = callback.View.State.Values
			}
			if err := h.submitResponse(callback.User.ID, callback.View.PrivateMetadata, values); err != nil {
				slog.Error("submitResponse failed", slog.Any("err", err))
			}
		}

	case slack.InteractionTypeViewClosed:
		if callback.View.CallbackID == callbackRespond {
			h.cancelEditing(callback.User.ID)
		}
	}
}

func (h *Handler) handleCallBack(event *slackevents.EventsAPIEvent) {
	switch event.Type {
	case slackevents.CallbackEvent:
		innerEvent := event.InnerEvent
		switch ev := innerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			// DMでメンションされたとき
			if ev.ChannelType == "im" && strings.Contains(ev.Text, fmt.Sprintf("<@%s>", h.getBotUserID())) {
				h.handleMention(&myEvent{
					Channel:   ev.Channel,
					User:      ev.User,
					Text:      ev.Text,
					TimeStamp: ev.TimeStamp,
				})
			}
		case *slackevents.AppMentionEvent:
			h.handleMention(&myEvent{
				Channel:   ev.Channel,
				User:      ev.User,
				Text:      ev.Text,
				ThreadTS:  ev.ThreadTimeStamp,
				TimeStamp: ev.TimeStamp,
			})
		}
	default:
		slog.Warn("Unsupported EventsAPIEvent type", slog.Any("type", event.Type))
	}
}

type myEvent struct {
	Channel   string `json:"channel"`
	Text      string `json:"text"`
	User      string `json:"user"`
	TimeStamp string `json:"ts"`
	ThreadTS  string `json:"thread_ts"`
}

// メンションを受け取ったときの処理
func (h *Handler) handleMention(event *myEvent) {
	channelID := event.Channel
	userID := event.User

	// ボット自身のメンション (`@bot`) を削除
	messageText := strings.Replace(event.Text, fmt.Sprintf("<@%s>", h.getBotUserID()), "", 1)
	args := strings.Fields(messageText)

	ts := event.TimeStamp
	if event.ThreadTS != "" {
		ts = event.ThreadTS
	}

	cmd := cmdList
	if len(args) > 0 {
		cmd = strings.ToLower(args[0])
		args = args[1:]
	}

	var err error
	switch cmd {
	case cmdList:
		err = h.showFeedbacks(channelID, ts)
	case cmdRange:
		if err := h.setDateRangeFromArgs(args); err != nil {
			h.postEphemeral(channelID, userID, fmt.Sprintf(":warning: %s\n使い方: `range 2025-01-01 2025-01-31` / `range - 2025-01-31` / `range clear`", err))
			return
		}
		err = h.showFeedbacks(channelID, ts)
	case cmdHistory:
		err = h.showResponses(channelID, userID, ts)
	case cmdSummary:
		err = h.postSummary(channelID, userID, ts)
	case cmdReload:
		err = h.reload(channelID, userID, ts)
	default:
		// 知らないコマンドならメニューを表示
		h.showMenu(channelID, userID, ts)
		return
	}
	if err != nil {
		slog.Error("handleMention failed", slog.String("cmd", cmd), slog.Any("err", err))
	}
}

func (h *Handler) showMenu(channelID, userID, ts string) {
	blocks := []slack.Block{
		newSectionBlock("list", "*フィードバックの一覧を見る*", "list_action", "一覧を見る", ts),
		newSectionBlock("hist", "*回答の履歴を見る*", "history_action", "履歴を見る", ts),
		newSectionBlock("summary", "*フィードバックのサマリを作る*", "summary_action", "サマリを作る", ts),
	}

	_, err := h.client.PostEphemeral(
		channelID,
		userID,
		slack.MsgOptionText("メンションされたので、選択肢を表示します。", false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		slog.Error("Failed to post message with button", slog.Any("err", err))
	}
}

func newSectionBlock(blockID, text, actionID, buttonText, value string) *slack.SectionBlock {
	return &slack.SectionBlock{
		Type:    slack.MBTSection,
		BlockID: blockID,
		Text: &slack.TextBlockObject{
			Type: slack.MarkdownType,
			Text: text,
		},
		Accessory: &slack.Accessory{
			ButtonElement: &slack.ButtonBlockElement{
				Type:     slack.METButton,
				ActionID: actionID,
				Value:    value,
				Text: &slack.TextBlockObject{
					Type: "plain_text",
					Text: buttonText,
				},
			},
		},
	}
}

func (h *Handler) postEphemeral(channelID, userID, text string) {
	if _, err := h.client.PostEphemeral(channelID, userID, slack.MsgOptionText(text, false)); err != nil {
		slog.Error("Failed to post ephemeral message", slog.Any("err", err))
	}
}

// 失敗したときだけ手動で再読み込みできる
func (h *Handler) reload(channelID, userID, ts string) error {
	if h.store.State().Phase != model.PhaseError {
		h.postEphemeral(channelID, userID, "ℹ️ 再読み込みは読み込みに失敗したときだけ実行できます。")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.FetchTimeout)
	defer cancel()
	if err := h.store.Reload(ctx, h.loader); err != nil {
		slog.Error("Failed to reload feedbacks", slog.Any("err", err))
	}
	return h.showFeedbacks(channelID, ts)
}

func (h *Handler) postSummary(channelID, userID, ts string) error {
	if h.summarizer == nil {
		h.postEphemeral(channelID, userID, "ℹ️ サマリ機能は無効です。OPENAI_API_KEY か AZURE_OPENAI_KEY を設定してください。")
		return nil
	}
	feedbacks := h.store.View()
	if len(feedbacks) == 0 {
		h.postEphemeral(channelID, userID, "📭 *サマリの対象になるフィードバックはありません*")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), summaryTimeout)
	defer cancel()
	summary, err := h.summarizer.GenerateSummary(ctx, feedbacks)
	if err != nil {
		h.postEphemeral(channelID, userID, "⚠️ *サマリの作成に失敗しました*")
		return fmt.Errorf("GenerateSummary failed: %w", err)
	}

	_, _, err = h.client.PostMessage(
		channelID,
		slack.MsgOptionText(summary, false),
		slack.MsgOptionTS(ts),
	)
	return err
}

func getUserPreferredName(user *slack.User) string {
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	if user.RealName != "" {
		return user.RealName
	}
	return user.Name
}

func (h *Handler) getUserInfo(userID string) (*slack.User, error) {
	cacheKey := "user_" + userID
	if user := h.userInfoCache.Get(cacheKey); user != nil {
		return user.Value(), nil
	}
	user, err := h.client.GetUserInfo(userID)
	if err != nil {
		return nil, err
	}
	h.userInfoCache.Set(cacheKey, user, ttlcache.DefaultTTL)
	return user, nil
}

func (h *Handler) getBotUserID() string {
	if h.botID == "" {
		authResp, err := h.client.AuthTest()
		if err != nil {
			slog.Error("Failed to get bot user ID", slog.Any("err", err))
			return ""
		}
		slog.Info("Bot user ID", slog.Any("id", authResp.UserID))
		h.botID = authResp.UserID
	}
	return h.botID
}

func (h *Handler) formatTime(t time.Time) string {
	return t.In(h.loc).Format("2006-01-02 15:04:05")
}
