// Package announce posts the "new event" message to the event's Telegram
// group, pins it, and follows up with an attendance poll. Delivery is
// best-effort throughout; nothing here ever propagates an error back into
// the save flow.
package announce

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"github.com/mbarkhau/stammtischbot/core/logger"
	"github.com/mbarkhau/stammtischbot/internal/model"
)

// Sender is the subset of the bot API the announcer needs.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Pin(msg tele.Editable, opts ...interface{}) error
}

// Announcer delivers event announcements.
type Announcer struct {
	fallbackChatID string
	disabled       bool
}

// New returns an announcer. fallbackChatID is used when an event carries
// no group id of its own; disabled turns Publish into a no-op (test
// sheets should not spam real groups).
func New(fallbackChatID string, disabled bool) *Announcer {
	return &Announcer{fallbackChatID: fallbackChatID, disabled: disabled}
}

var migrationRe = regexp.MustCompile(`New chat id: (-?\d+)`)

// Publish announces the event via the given bot handle. All failures are
// logged and swallowed.
func (a *Announcer) Publish(ctx context.Context, bot Sender, ev model.Event) {
	if a.disabled {
		logger.ANN.LogAttrs(ctx, slog.LevelDebug, "announce.disabled",
			slog.String("name", ev.Name),
		)
		return
	}

	jobID := uuid.NewString()
	target := normalizeTarget(ev.AnnounceTarget())
	fallback := normalizeTarget(a.fallbackChatID)

	// The event's own group first, then the configured fallback chat.
	var targets []string
	if target != "" {
		targets = append(targets, target)
	}
	if fallback != "" && fallback != target {
		targets = append(targets, fallback)
	}
	if len(targets) == 0 {
		logger.ANN.LogAttrs(ctx, slog.LevelWarn, "announce.no_target",
			slog.String("job_id", jobID),
		)
		return
	}

	msg := formatAnnouncement(ev)
	var sent *tele.Message
	var chatID int64
	for _, tgt := range targets {
		if sent, chatID = a.trySend(ctx, bot, jobID, tgt, msg); sent != nil {
			break
		}
	}
	if sent == nil {
		logger.ANN.LogAttrs(ctx, slog.LevelError, "announce.undeliverable",
			slog.String("job_id", jobID),
			slog.String("target", target),
		)
		return
	}

	if err := bot.Pin(sent); err != nil {
		logger.ANN.LogAttrs(ctx, slog.LevelWarn, "announce.pin_failed",
			slog.String("job_id", jobID),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}

	poll := &tele.Poll{
		Type:      tele.PollRegular,
		Question:  "Wer ist dabei?",
		Anonymous: false,
		Options: []tele.PollOption{
			{Text: "Ja"},
			{Text: "Ja + 1"},
			{Text: "Vielleicht"},
			{Text: "Zeige Ergebnis"},
		},
	}
	if _, err := bot.Send(tele.ChatID(chatID), poll); err != nil {
		logger.ANN.LogAttrs(ctx, slog.LevelError, "announce.poll_failed",
			slog.String("job_id", jobID),
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
	}
	logger.ANN.LogAttrs(ctx, slog.LevelInfo, "announce.done",
		slog.String("job_id", jobID),
		slog.Int64("chat_id", chatID),
		slog.String("name", ev.Name),
	)
}

// chatName addresses a chat by public username rather than numeric id.
type chatName string

func (c chatName) Recipient() string { return string(c) }

// trySend walks the chat id candidates and returns the first delivered
// message together with the working chat id. Non-numeric targets are
// treated as public usernames, which the API accepts as chat references.
func (a *Announcer) trySend(ctx context.Context, bot Sender, jobID, target, msg string) (*tele.Message, int64) {
	cands := candidates(target)
	if len(cands) == 0 {
		return a.trySendName(ctx, bot, jobID, target, msg)
	}
	for _, cid := range cands {
		sent, err := bot.Send(tele.ChatID(cid), msg, tele.ModeHTML)
		if err == nil {
			logger.ANN.LogAttrs(ctx, slog.LevelInfo, "announce.sent",
				slog.String("job_id", jobID),
				slog.Int64("chat_id", cid),
			)
			return sent, cid
		}
		logger.ANN.LogAttrs(ctx, slog.LevelWarn, "announce.send_failed",
			slog.String("job_id", jobID),
			slog.Int64("chat_id", cid),
			slog.String("err", err.Error()),
		)
		// A basic group upgraded to a supergroup reports its new id in
		// the error text. Retry once against that id.
		if m := migrationRe.FindStringSubmatch(err.Error()); m != nil {
			newID, convErr := strconv.ParseInt(m[1], 10, 64)
			if convErr != nil {
				continue
			}
			logger.ANN.LogAttrs(ctx, slog.LevelInfo, "announce.migrated",
				slog.String("job_id", jobID),
				slog.Int64("target", newID),
			)
			sent, err = bot.Send(tele.ChatID(newID), msg, tele.ModeHTML)
			if err == nil {
				return sent, newID
			}
			logger.ANN.LogAttrs(ctx, slog.LevelWarn, "announce.send_failed",
				slog.String("job_id", jobID),
				slog.Int64("chat_id", newID),
				slog.String("err", err.Error()),
			)
		}
	}
	return nil, 0
}

func (a *Announcer) trySendName(ctx context.Context, bot Sender, jobID, target, msg string) (*tele.Message, int64) {
	name := target
	if !strings.HasPrefix(name, "@") {
		name = "@" + name
	}
	sent, err := bot.Send(chatName(name), msg, tele.ModeHTML)
	if err != nil {
		logger.ANN.LogAttrs(ctx, slog.LevelWarn, "announce.send_failed",
			slog.String("job_id", jobID),
			slog.String("chat", name),
			slog.String("err", err.Error()),
		)
		return nil, 0
	}
	var chatID int64
	if sent.Chat != nil {
		chatID = sent.Chat.ID
	}
	logger.ANN.LogAttrs(ctx, slog.LevelInfo, "announce.sent",
		slog.String("job_id", jobID),
		slog.String("chat", name),
		slog.Int64("chat_id", chatID),
	)
	return sent, chatID
}

// normalizeTarget strips invite-link prefixes and surrounding whitespace.
func normalizeTarget(target string) string {
	target = strings.TrimSpace(target)
	if strings.Contains(target, "/") {
		parts := strings.Split(target, "/")
		target = parts[len(parts)-1]
	}
	return target
}

// candidates returns the chat ids to try, in order: as given, the
// -100-prefixed supergroup form, the negated basic-group form. Positive
// ids get the variants; negative ids are assumed already correct.
func candidates(target string) []int64 {
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return nil
	}
	out := []int64{id}
	if id > 0 {
		if prefixed, err := strconv.ParseInt(fmt.Sprintf("-100%d", id), 10, 64); err == nil {
			out = append(out, prefixed)
		}
		out = append(out, -id)
	}
	return out
}

func formatAnnouncement(ev model.Event) string {
	name := ev.Name
	if name == "" {
		name = "Stammtisch"
	}
	date := ev.Beginn
	if date == "" {
		date = "Unbekannt"
	}
	uhrzeit := ev.Uhrzeit
	if uhrzeit == "" {
		uhrzeit = "19:00"
	}
	wd := model.WeekdayDE(date)
	return fmt.Sprintf(
		"\U0001F4E2 <b>Neuer Termin: %s</b>\n\n\U0001F4C5 %s %s\n⏰ %s Uhr\n\U0001F4CD %s",
		name, wd, model.DisplayDate(date), uhrzeit, ev.PLZ,
	)
}
