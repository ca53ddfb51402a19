package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/pyama86/feedback-control/domain/model"
	"github.com/pyama86/feedback-control/domain/store"
	"github.com/slack-go/slack"
)

const (
	actionRespond    = "respond_button"
	actionRangeStart = "range_start"
	actionRangeEnd   = "range_end"
	callbackRespond  = "respond_modal"

	blockResponseText  = "response_block"
	actionResponseText = "response_text"
	blockStatus        = "status_block"
	actionStatus       = "status_select"

	dateLayout = "2006-01-02"

	noResponseText = "No response yet"
	noTimeText     = "N/A"

	// モーダルに出す過去の回答の件数と、テキストオブジェクトの上限
	historyLimit    = 5
	maxTextObjRunes = 3000
)

var errBadMetadata = errors.New("invalid private metadata")

// 一覧を投稿する。ts が空ならチャンネルに直接投稿する
func (h *Handler) showFeedbacks(channelID, ts string) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText("フィードバック一覧", false),
		slack.MsgOptionBlocks(h.feedbackTableBlocks()...),
	}
	if ts != "" {
		opts = append(opts, slack.MsgOptionTS(ts))
	}
	_, _, err := h.client.PostMessage(channelID, opts...)
	return err
}

// 日付を選び直したときは一覧のメッセージをその場で書き換える
func (h *Handler) updateFeedbacks(channelID, ts string) error {
	_, _, _, err := h.client.UpdateMessage(channelID, ts,
		slack.MsgOptionText("フィードバック一覧", false),
		slack.MsgOptionBlocks(h.feedbackTableBlocks()...),
	)
	return err
}

func (h *Handler) feedbackTableBlocks() []slack.Block {
	state := h.store.State()
	switch state.Phase {
	case model.PhaseLoading:
		return []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", "⏳ *フィードバックを読み込み中です*", false, false), nil, nil),
		}
	case model.PhaseError:
		msg := "⚠️ *フィードバックの読み込みに失敗しました*"
		if state.Err != nil {
			msg += fmt.Sprintf("\n```%s```", state.Err)
		}
		msg += "\n`reload` で再読み込みできます。"
		return []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", msg, false, false), nil, nil),
		}
	}

	rng := h.store.DateRange()
	feedbacks := h.store.View()

	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", "📋 フィードバック一覧", false, false),
		),
		h.dateRangeBlock(rng),
		slack.NewContextBlock("range_context",
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("期間: %s / %d 件", describeRange(rng), len(feedbacks)), false, false),
		),
		slack.NewDividerBlock(),
	}

	if len(feedbacks) == 0 {
		return append(blocks,
			slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", "📭 *該当するフィードバックはありません*", false, false), nil, nil),
		)
	}

	for _, f := range feedbacks {
		blocks = append(blocks, h.feedbackRowBlock(f), slack.NewDividerBlock())
	}
	return blocks
}

func (h *Handler) dateRangeBlock(rng model.DateRange) *slack.ActionBlock {
	start := slack.NewDatePickerBlockElement(actionRangeStart)
	start.Placeholder = slack.NewTextBlockObject("plain_text", "開始日", false, false)
	if !rng.Start.IsZero() {
		start.InitialDate = rng.Start.Format(dateLayout)
	}
	end := slack.NewDatePickerBlockElement(actionRangeEnd)
	end.Placeholder = slack.NewTextBlockObject("plain_text", "終了日", false, false)
	if !rng.End.IsZero() {
		end.InitialDate = rng.End.Format(dateLayout)
	}
	return slack.NewActionBlock("range_block", start, end)
}

func describeRange(rng model.DateRange) string {
	if rng.Unbounded() {
		return "すべて"
	}
	start, end := "-", "-"
	if !rng.Start.IsZero() {
		start = rng.Start.Format(dateLayout)
	}
	if !rng.End.IsZero() {
		end = rng.End.Format(dateLayout)
	}
	return start + " 〜 " + end
}

func (h *Handler) feedbackRowBlock(f model.Feedback) *slack.SectionBlock {
	responseText := noResponseText
	if f.ResponseText != "" {
		responseText = f.ResponseText
	}
	responseTime := noTimeText
	if f.ResponseTime != nil {
		responseTime = h.formatTime(*f.ResponseTime)
	}

	text := fmt.Sprintf("*#%d %s*\n📝 %s\n📅 %s\n🏷 *%s*\n💬 %s\n🕒 %s",
		f.ID,
		f.Name,
		truncate(f.Body, 200),
		h.formatTime(f.CreatedAt),
		f.ResponseStatus,
		truncate(responseText, 200),
		responseTime,
	)

	return &slack.SectionBlock{
		Type:    slack.MBTSection,
		BlockID: fmt.Sprintf("feedback_%d", f.ID),
		Text:    slack.NewTextBlockObject("mrkdwn", text, false, false),
		Accessory: &slack.Accessory{
			ButtonElement: &slack.ButtonBlockElement{
				Type:     slack.METButton,
				ActionID: actionRespond,
				Value:    strconv.Itoa(f.ID),
				Text:     slack.NewTextBlockObject("plain_text", "View/Respond", false, false),
			},
		},
	}
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// 改行は残したまま n 文字以内に収める
func limitRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (h *Handler) openRespondModal(triggerID, channelID, userID, value string) error {
	id, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid feedback id %q: %w", value, err)
	}

	if phase := h.store.State().Phase; phase != model.PhaseReady {
		h.postEphemeral(channelID, userID, "⏳ フィードバックの読み込みが完了していません。")
		return nil
	}

	f, ok := h.store.Get(id)
	if !ok {
		h.postEphemeral(channelID, userID, fmt.Sprintf("⚠️ フィードバック #%d は見つかりませんでした。", id))
		return nil
	}

	cur := model.State{Phase: model.PhaseReady}
	if item := h.editing.Get(userID); item != nil {
		cur = item.Value()
	}
	next, err := cur.Edit(f)
	if err != nil {
		return err
	}

	history, err := h.ds.GetFeedbackResponses(h.getBotUserID(), id)
	if err != nil {
		slog.Error("GetFeedbackResponses failed", slog.Any("err", err))
	}

	if _, err := h.client.OpenView(triggerID, h.respondModalView(channelID, f, history)); err != nil {
		return err
	}
	h.editing.Set(userID, next, ttlcache.DefaultTTL)
	return nil
}

func statusOption(s model.ResponseStatus) *slack.OptionBlockObject {
	return slack.NewOptionBlockObject(s.String(),
		slack.NewTextBlockObject("plain_text", s.String(), false, false), nil)
}

func (h *Handler) respondModalView(channelID string, f model.Feedback, history []model.Response) slack.ModalViewRequest {
	options := make([]*slack.OptionBlockObject, 0, len(model.SubmittableStatuses))
	for _, s := range model.SubmittableStatuses {
		options = append(options, statusOption(s))
	}
	statusSelect := &slack.SelectBlockElement{
		Type:        slack.OptTypeStatic,
		ActionID:    actionStatus,
		Options:     options,
		Placeholder: slack.NewTextBlockObject("plain_text", "選択してください", false, false),
	}
	// 回答済みなら現在の値を初期値にする
	if f.ResponseStatus.Submittable() {
		statusSelect.InitialOption = statusOption(f.ResponseStatus)
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*#%d %s*\n📅 %s\n🏷 *%s*\n\n%s", f.ID, f.Name, h.formatTime(f.CreatedAt), f.ResponseStatus, f.Body), false, false),
			nil, nil,
		),
		slack.NewDividerBlock(),
		&slack.InputBlock{
			Type:    slack.MBTInput,
			BlockID: blockStatus,
			Label:   slack.NewTextBlockObject("plain_text", "🏷 ステータス", false, false),
			Element: statusSelect,
		},
		&slack.InputBlock{
			Type:     slack.MBTInput,
			BlockID:  blockResponseText,
			Optional: true,
			Label:    slack.NewTextBlockObject("plain_text", "💬 回答", false, false),
			Element: &slack.PlainTextInputBlockElement{
				Type:         slack.METPlainTextInput,
				ActionID:     actionResponseText,
				Multiline:    true,
				InitialValue: f.ResponseText,
				Placeholder:  slack.NewTextBlockObject("plain_text", "回答を記入してください", false, false),
			},
		},
	}

	if len(history) > 0 {
		// 古い順に並んでいるので末尾の新しいものだけ出す
		if len(history) > historyLimit {
			history = history[len(history)-historyLimit:]
		}
		lines := make([]string, 0, len(history))
		for _, r := range history {
			lines = append(lines, fmt.Sprintf("%s *%s* %s", h.formatTime(r.RespondedAt), r.Status, truncate(r.Text, 80)))
		}
		text := limitRunes("📜 過去の回答\n"+strings.Join(lines, "\n"), maxTextObjRunes)
		blocks = append(blocks,
			slack.NewDividerBlock(),
			slack.NewContextBlock("history_context",
				slack.NewTextBlockObject("mrkdwn", text, false, false),
			),
		)
	}

	return slack.ModalViewRequest{
		Type:            slack.ViewType("modal"),
		Title:           slack.NewTextBlockObject("plain_text", "フィードバックに回答", false, false),
		Submit:          slack.NewTextBlockObject("plain_text", "送信", false, false),
		Close:           slack.NewTextBlockObject("plain_text", "キャンセル", false, false),
		CallbackID:      callbackRespond,
		Blocks:          slack.Blocks{BlockSet: blocks},
		PrivateMetadata: fmt.Sprintf("%s|%d", channelID, f.ID),
		NotifyOnClose:   true,
	}
}

func parsePrivateMetadata(v string) (string, int, error) {
	channelID, rawID, ok := strings.Cut(v, "|")
	if !ok || channelID == "" {
		return "", 0, fmt.Errorf("%w: %q", errBadMetadata, v)
	}
	id, err := strconv.Atoi(rawID)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", errBadMetadata, v)
	}
	return channelID, id, nil
}

func (h *Handler) submitResponse(userID, metadata string, values map[string]map[string]slack.BlockAction) error {
	channelID, id, err := parsePrivateMetadata(metadata)
	if err != nil {
		return err
	}

	text := strings.TrimSpace(values[blockResponseText][actionResponseText].Value)
	status, err := model.ParseResponseStatus(values[blockStatus][actionStatus].SelectedOption.Value)
	if err != nil {
		h.postEphemeral(channelID, userID, "⚠️ ステータスを選択してください。")
		return err
	}

	if _, ok := h.store.Get(id); !ok {
		h.editing.Delete(userID)
		h.postEphemeral(channelID, userID, fmt.Sprintf("⚠️ フィードバック #%d は見つかりませんでした。", id))
		return nil
	}

	cur := model.State{Phase: model.PhaseReady}
	if item := h.editing.Get(userID); item != nil {
		cur = item.Value()
	}
	if cur.Phase != model.PhaseEditing || cur.Editing == nil || cur.Editing.ID != id {
		// TTL 切れなどで編集状態が消えていても送信は受け付ける
		f, _ := h.store.Get(id)
		if cur, err = (model.State{Phase: model.PhaseReady}).Edit(f); err != nil {
			return err
		}
	}

	// 遷移できることを先に確かめてからストアを更新する
	if _, err := cur.Submitted(); err != nil {
		return err
	}

	if _, err := h.store.SubmitResponse(id, text, status, h.now()); err != nil {
		// 失敗したら編集中のまま残してやり直せるようにする
		h.editing.Set(userID, cur, ttlcache.DefaultTTL)
		if errors.Is(err, store.ErrStaleResponse) {
			h.postEphemeral(channelID, userID, "⚠️ より新しい回答が既に記録されています。")
		} else {
			h.postEphemeral(channelID, userID, "⚠️ 回答の記録に失敗しました。")
		}
		return err
	}

	h.editing.Delete(userID)

	updated, _ := h.store.Get(id)
	if err := h.ds.SaveResponse(model.NewResponse(h.getBotUserID(), userID, updated)); err != nil {
		// 履歴の保存に失敗してもセッション内の回答は有効
		slog.Error("SaveResponse failed", slog.Any("err", err))
	}

	_, _, err = h.client.PostMessage(
		channelID,
		slack.MsgOptionText(fmt.Sprintf("✅ <@%s> が #%d %s に回答しました: *%s*", userID, updated.ID, updated.Name, updated.ResponseStatus), false),
	)
	return err
}

func (h *Handler) cancelEditing(userID string) {
	item := h.editing.Get(userID)
	if item == nil {
		return
	}
	if _, err := item.Value().Cancel(); err != nil {
		slog.Warn("cancel editing", slog.Any("err", err))
	}
	h.editing.Delete(userID)
}

// "" と "-" は指定なし
func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" || v == "-" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("日付は YYYY-MM-DD で指定してください: %q", v)
	}
	return t, nil
}

func (h *Handler) setDateRangeFromArgs(args []string) error {
	if len(args) == 1 && strings.EqualFold(args[0], "clear") {
		h.store.SetDateRange(time.Time{}, time.Time{})
		return nil
	}
	if len(args) != 2 {
		return errors.New("開始日と終了日を指定してください")
	}
	start, err := parseDate(args[0])
	if err != nil {
		return err
	}
	end, err := parseDate(args[1])
	if err != nil {
		return err
	}
	h.store.SetDateRange(start, end)
	return nil
}

func (h *Handler) applyDatePicker(actionID, date string) error {
	t, err := parseDate(date)
	if err != nil {
		return err
	}
	rng := h.store.DateRange()
	switch actionID {
	case actionRangeStart:
		rng.Start = t
	case actionRangeEnd:
		rng.End = t
	}
	h.store.SetDateRange(rng.Start, rng.End)
	return nil
}

func (h *Handler) showResponses(channelID, userID, threadTS string) error {
	responses, err := h.ds.GetLatestResponses(h.getBotUserID())
	if err != nil {
		h.postEphemeral(channelID, userID, "📭 *回答履歴の取得に失敗しました*")
		return err
	}

	if len(responses) == 0 {
		h.postEphemeral(channelID, userID, "📭 *回答履歴はありません*")
		return nil
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", "📜 回答履歴", false, false),
		),
		slack.NewDividerBlock(),
	}

	for _, r := range responses {
		// メンションが飛ばないように名前で表示する
		respondedBy := "不明"
		user, err := h.getUserInfo(r.ResponderID)
		if err == nil {
			respondedBy = getUserPreferredName(user)
		} else {
			slog.Error("GetUserInfo failed", slog.Any("err", err))
		}

		text := fmt.Sprintf("*#%d %s* 🏷 *%s*\n💬 %s\n👤 %s\n📅 %s",
			r.FeedbackID, r.CustomerName, r.Status, truncate(r.Text, 200), respondedBy, h.formatTime(r.RespondedAt))
		blocks = append(blocks,
			slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", text, false, false), nil, nil),
			slack.NewDividerBlock(),
		)
	}

	opts := []slack.MsgOption{
		slack.MsgOptionText("回答履歴", false),
		slack.MsgOptionBlocks(blocks...),
	}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, err = h.client.PostEphemeral(channelID, userID, opts...)
	return err
}
