package announce

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"github.com/mbarkhau/stammtischbot/internal/model"
	"github.com/mbarkhau/stammtischbot/internal/testutil"
)

// fakeSender records sends and answers per chat id. Non-numeric
// recipients are username references; nameErr fails them all.
type fakeSender struct {
	failFor map[int64]error
	nameErr error
	sends   []sendCall
	pinned  int
}

// usernameChatID is the chat id the fake reports for username sends.
const usernameChatID = int64(4242)

type sendCall struct {
	chatID int64
	name   string
	what   interface{}
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	rec := to.Recipient()
	id, err := strconv.ParseInt(rec, 10, 64)
	if err != nil {
		if f.nameErr != nil {
			return nil, f.nameErr
		}
		f.sends = append(f.sends, sendCall{chatID: usernameChatID, name: rec, what: what})
		return &tele.Message{ID: len(f.sends), Chat: &tele.Chat{ID: usernameChatID}}, nil
	}
	if ferr := f.failFor[id]; ferr != nil {
		return nil, ferr
	}
	f.sends = append(f.sends, sendCall{chatID: id, what: what})
	return &tele.Message{ID: len(f.sends), Chat: &tele.Chat{ID: id}}, nil
}

func (f *fakeSender) Pin(msg tele.Editable, opts ...interface{}) error {
	f.pinned++
	return nil
}

func (f *fakeSender) textSends() []sendCall {
	var out []sendCall
	for _, s := range f.sends {
		if _, ok := s.what.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func TestCandidates(t *testing.T) {
	testutil.AssertEqual(t, candidates("123456"), []int64{123456, -100123456, -123456})
	testutil.AssertEqual(t, candidates("-100987"), []int64{-100987})
	if got := candidates("nicht-numerisch"); got != nil {
		t.Errorf("candidates = %v", got)
	}
}

func TestNormalizeTarget(t *testing.T) {
	tests := []struct{ in, want string }{
		{" -100123 ", "-100123"},
		{"https://t.me/c/123456", "123456"},
		{"t.me/gruppe", "gruppe"},
		{"123", "123"},
	}
	for _, tt := range tests {
		if got := normalizeTarget(tt.in); got != tt.want {
			t.Errorf("normalizeTarget(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPublishSendsPinsAndPolls(t *testing.T) {
	bot := &fakeSender{}
	a := New("", false)

	ev := model.Event{Name: "Stammtisch", Beginn: "2026-12-25", Uhrzeit: "19:00",
		PLZ: "60594", TelegramGroupID: "-100123"}
	a.Publish(context.Background(), bot, ev)

	texts := bot.textSends()
	if len(texts) != 1 {
		t.Fatalf("%d announcement sends", len(texts))
	}
	msg := texts[0].what.(string)
	if !strings.Contains(msg, "Neuer Termin: Stammtisch") ||
		!strings.Contains(msg, "Fr. 25.12.2026") ||
		!strings.Contains(msg, "60594") {
		t.Errorf("announcement = %q", msg)
	}
	if bot.pinned != 1 {
		t.Errorf("pinned %d times", bot.pinned)
	}

	var polls int
	for _, s := range bot.sends {
		if p, ok := s.what.(*tele.Poll); ok {
			polls++
			if p.Question != "Wer ist dabei?" || len(p.Options) != 4 {
				t.Errorf("poll = %+v", p)
			}
			if p.Anonymous {
				t.Error("poll must not be anonymous")
			}
		}
	}
	if polls != 1 {
		t.Errorf("%d polls sent", polls)
	}
}

func TestPublishTriesChatIDVariants(t *testing.T) {
	bot := &fakeSender{failFor: map[int64]error{
		123456: errors.New("Bad Request: chat not found"),
	}}
	a := New("", false)

	ev := model.Event{Name: "X", Beginn: "2026-12-25", TelegramGroupID: "123456"}
	a.Publish(context.Background(), bot, ev)

	texts := bot.textSends()
	if len(texts) != 1 {
		t.Fatalf("%d sends got through", len(texts))
	}
	if texts[0].chatID != -100123456 {
		t.Errorf("delivered to %d, expected the supergroup variant", texts[0].chatID)
	}
}

func TestPublishFollowsMigrationHint(t *testing.T) {
	migrated := int64(-1009999)
	bot := &fakeSender{failFor: map[int64]error{
		-100123: fmt.Errorf("Bad Request: group chat was upgraded to a supergroup chat. New chat id: %d", migrated),
	}}
	a := New("", false)

	ev := model.Event{Name: "X", Beginn: "2026-12-25", TelegramGroupID: "-100123"}
	a.Publish(context.Background(), bot, ev)

	texts := bot.textSends()
	if len(texts) != 1 {
		t.Fatalf("%d sends got through", len(texts))
	}
	if texts[0].chatID != migrated {
		t.Errorf("delivered to %d, expected migrated id %d", texts[0].chatID, migrated)
	}
}

func TestPublishUsesFallbackTarget(t *testing.T) {
	bot := &fakeSender{}
	a := New("-100777", false)

	a.Publish(context.Background(), bot, model.Event{Name: "X", Beginn: "2026-12-25"})

	texts := bot.textSends()
	if len(texts) != 1 || texts[0].chatID != -100777 {
		t.Fatalf("sends = %+v", texts)
	}
}

func TestPublishSendsToUsernameTarget(t *testing.T) {
	bot := &fakeSender{}
	a := New("", false)

	ev := model.Event{Name: "X", Beginn: "2026-12-25", TelegramGroupID: "t.me/meinegruppe"}
	a.Publish(context.Background(), bot, ev)

	texts := bot.textSends()
	if len(texts) != 1 || texts[0].name != "@meinegruppe" {
		t.Fatalf("sends = %+v, expected one username send", texts)
	}
	// The poll follows to the chat id the delivery reported.
	var polls int
	for _, s := range bot.sends {
		if _, ok := s.what.(*tele.Poll); ok {
			polls++
			if s.chatID != usernameChatID {
				t.Errorf("poll chat = %d, want %d", s.chatID, usernameChatID)
			}
		}
	}
	if polls != 1 {
		t.Errorf("%d polls sent", polls)
	}
}

func TestPublishFallsBackWhenTargetUndeliverable(t *testing.T) {
	bot := &fakeSender{nameErr: errors.New("Bad Request: chat not found")}
	a := New("-100777", false)

	ev := model.Event{Name: "X", Beginn: "2026-12-25", TelegramGroupID: "@kaputt"}
	a.Publish(context.Background(), bot, ev)

	texts := bot.textSends()
	if len(texts) != 1 || texts[0].chatID != -100777 {
		t.Fatalf("sends = %+v, expected delivery to the fallback chat", texts)
	}
}

func TestPublishDisabledAndUndeliverableNeverPanic(t *testing.T) {
	a := New("", true)
	a.Publish(context.Background(), &fakeSender{}, model.Event{Name: "X"})

	bot := &fakeSender{failFor: map[int64]error{
		-100123: errors.New("chat not found"),
	}}
	New("", false).Publish(context.Background(), bot,
		model.Event{Name: "X", TelegramGroupID: "-100123"})
	if len(bot.textSends()) != 0 {
		t.Errorf("undeliverable target produced sends")
	}
}
