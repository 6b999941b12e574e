package bot

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/mbarkhau/stammtischbot/core/config"
	"github.com/mbarkhau/stammtischbot/internal/model"
	"github.com/mbarkhau/stammtischbot/internal/service"
)

// fakeContext implements the handful of tele.Context methods the dialog
// handlers touch. The embedded nil interface panics on anything else,
// which keeps the fake honest.
type fakeContext struct {
	tele.Context

	sender   *tele.User
	chat     *tele.Chat
	text     string
	callback *tele.Callback

	sent  []string
	store map[string]interface{}
}

func (f *fakeContext) Sender() *tele.User       { return f.sender }
func (f *fakeContext) Chat() *tele.Chat         { return f.chat }
func (f *fakeContext) Text() string             { return f.text }
func (f *fakeContext) Callback() *tele.Callback { return f.callback }
func (f *fakeContext) Update() tele.Update      { return tele.Update{ID: 1} }
func (f *fakeContext) Bot() tele.API            { return nil }

func (f *fakeContext) Set(key string, v interface{}) {
	if f.store == nil {
		f.store = make(map[string]interface{})
	}
	f.store[key] = v
}

func (f *fakeContext) Get(key string) interface{} { return f.store[key] }

func (f *fakeContext) Message() *tele.Message {
	if f.callback != nil {
		return nil
	}
	return &tele.Message{Text: f.text, Sender: f.sender, Chat: f.chat}
}

func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	f.sent = append(f.sent, fmt.Sprint(what))
	return nil
}

func (f *fakeContext) Notify(action tele.ChatAction) error {
	return nil
}

func (f *fakeContext) lastSent() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeEvents struct {
	events  []service.IndexedEvent
	created []model.Event
	deleted []int64

	deleteErr error
	audits    []string
}

func (f *fakeEvents) matching(plz map[string]struct{}) []service.IndexedEvent {
	var out []service.IndexedEvent
	for _, ie := range f.events {
		if _, ok := plz[ie.Event.PLZ]; ok {
			out = append(out, ie)
		}
	}
	return out
}

func (f *fakeEvents) ListByPLZ(ctx context.Context, plz map[string]struct{}) ([]service.IndexedEvent, error) {
	return f.matching(plz), nil
}

func (f *fakeEvents) Previous(ctx context.Context, plz map[string]struct{}) (*model.Event, error) {
	m := f.matching(plz)
	if len(m) == 0 {
		return nil, nil
	}
	sort.Slice(m, func(i, j int) bool { return m[i].Event.Beginn > m[j].Event.Beginn })
	ev := m[0].Event
	return &ev, nil
}

func (f *fakeEvents) DeleteCandidates(ctx context.Context, plz map[string]struct{}, max int) ([]service.IndexedEvent, error) {
	m := f.matching(plz)
	if len(m) > max {
		m = m[:max]
	}
	return m, nil
}

func (f *fakeEvents) Create(ctx context.Context, ev model.Event) error {
	f.created = append(f.created, ev)
	return nil
}

func (f *fakeEvents) Delete(ctx context.Context, row int64, expected model.Event) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, row)
	return nil
}

func (f *fakeEvents) Audit(ctx context.Context, line string) {
	f.audits = append(f.audits, line)
}

type fakeContacts struct {
	byID  map[string]model.Contact
	rows  []service.IndexedContact
	modus map[int64]string

	audits []string
}

func (f *fakeContacts) Sync(ctx context.Context) error { return nil }

func (f *fakeContacts) ScheduleResync(cr *cron.Cron, spec string) error { return nil }

func (f *fakeContacts) Get(telegramID string) (model.Contact, bool) {
	c, ok := f.byID[telegramID]
	return c, ok
}

func (f *fakeContacts) All(ctx context.Context) ([]service.IndexedContact, error) {
	return f.rows, nil
}

func (f *fakeContacts) SetBotModus(ctx context.Context, row int64, status string) error {
	if f.modus == nil {
		f.modus = make(map[int64]string)
	}
	f.modus[row] = status
	return nil
}

func (f *fakeContacts) Audit(ctx context.Context, line string) {
	f.audits = append(f.audits, line)
}

func newTestApp(t *testing.T, events *fakeEvents, contacts *fakeContacts) *App {
	t.Helper()
	cfg := &coreconfig.Config{}
	cfg.Telegram.AdminIDs = []int64{999}

	app, err := New(cfg, Deps{Contacts: contacts, Events: events})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Deterministic clock: a Tuesday in August.
	app.now = func() time.Time {
		return time.Date(2026, time.August, 25, 12, 0, 0, 0, app.tz)
	}
	return app
}

func userCtx(text string) *fakeContext {
	return &fakeContext{
		sender: &tele.User{ID: 1001, Username: "testuser", FirstName: "Test", LastName: "User"},
		chat:   &tele.Chat{ID: 1001, Type: tele.ChatPrivate},
		text:   text,
	}
}

// step feeds one text message into the active dialog.
func step(t *testing.T, app *App, text string) *fakeContext {
	t.Helper()
	c := userCtx(text)
	if err := app.fsm.ManagerHandler(c); err != nil {
		t.Fatalf("step %q: %v", text, err)
	}
	return c
}
