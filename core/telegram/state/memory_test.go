package state

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

func TestStateLifecycle(t *testing.T) {
	m := NewManager()
	key := Key{ChatID: 1, UserID: 2}

	if m.InProgress(key) {
		t.Error("fresh key reported in progress")
	}
	if got := m.GetState(key); got != StateIdle {
		t.Errorf("initial state = %q", got)
	}

	m.SetState(key, State("asking"))
	if !m.InProgress(key) {
		t.Error("active dialog not reported in progress")
	}
	if !m.HasState(key) {
		t.Error("HasState false for active dialog")
	}

	m.SetTemp(key, "draft", 42)
	if v, ok := m.GetTemp(key, "draft"); !ok || v.(int) != 42 {
		t.Errorf("temp = %v, %v", v, ok)
	}

	m.Clear(key)
	if m.InProgress(key) {
		t.Error("cleared key still in progress")
	}
	if _, ok := m.GetTemp(key, "draft"); ok {
		t.Error("temp survived Clear")
	}
}

func TestSessionsAreIndependentPerChatAndUser(t *testing.T) {
	m := NewManager()
	a := Key{ChatID: 1, UserID: 2}
	b := Key{ChatID: 1, UserID: 3}
	c := Key{ChatID: 9, UserID: 2}

	m.SetState(a, State("one"))
	if m.InProgress(b) || m.InProgress(c) {
		t.Error("state leaked across keys")
	}
}

func TestManagerHandlerDispatchesByState(t *testing.T) {
	m := NewManager()
	key := Key{ChatID: 5, UserID: 5}

	var got State
	m.RegisterHandler(State("step"), func(c tele.Context) error {
		got = State("step")
		return nil
	})
	m.SetState(key, State("step"))

	c := &stubContext{chat: &tele.Chat{ID: 5}, sender: &tele.User{ID: 5}}
	if err := m.ManagerHandler(c); err != nil {
		t.Fatal(err)
	}
	if got != State("step") {
		t.Error("handler for active state did not run")
	}
}

func TestManagerHandlerClearsOrphanState(t *testing.T) {
	m := NewManager()
	key := Key{ChatID: 5, UserID: 5}
	m.SetState(key, State("ghost"))

	c := &stubContext{chat: &tele.Chat{ID: 5}, sender: &tele.User{ID: 5}}
	if err := m.ManagerHandler(c); err != nil {
		t.Fatal(err)
	}
	if m.InProgress(key) {
		t.Error("orphan state survived dispatch")
	}
}

func TestExpireIdle(t *testing.T) {
	m := NewManager().(*memoryManager)
	now := time.Now()
	m.now = func() time.Time { return now }

	stale := Key{ChatID: 1, UserID: 1}
	fresh := Key{ChatID: 2, UserID: 2}
	m.SetState(stale, State("waiting"))
	m.SetState(fresh, State("waiting"))

	// Age only the stale session.
	m.now = func() time.Time { return now.Add(3 * time.Hour) }
	m.SetState(fresh, State("waiting"))

	if n := m.ExpireIdle(2 * time.Hour); n != 1 {
		t.Fatalf("expired %d sessions, expected 1", n)
	}
	if m.InProgress(stale) {
		t.Error("stale session survived")
	}
	if !m.InProgress(fresh) {
		t.Error("fresh session was expired")
	}
}

func TestDispatchKeepsSessionAlive(t *testing.T) {
	m := NewManager().(*memoryManager)
	now := time.Now()
	m.now = func() time.Time { return now }

	key := Key{ChatID: 5, UserID: 5}
	m.SetState(key, State("waiting"))
	// Handler answers a re-prompt without touching state or temp data.
	m.RegisterHandler(State("waiting"), func(c tele.Context) error { return nil })

	m.now = func() time.Time { return now.Add(3 * time.Hour) }
	c := &stubContext{chat: &tele.Chat{ID: 5}, sender: &tele.User{ID: 5}}
	if err := m.ManagerHandler(c); err != nil {
		t.Fatal(err)
	}

	if n := m.ExpireIdle(2 * time.Hour); n != 0 {
		t.Fatalf("expired %d sessions, the dialog just had traffic", n)
	}
	if !m.InProgress(key) {
		t.Error("active dialog was expired")
	}
}

// stubContext provides just enough of tele.Context for dispatch tests.
type stubContext struct {
	tele.Context

	chat   *tele.Chat
	sender *tele.User
	store  map[string]interface{}
}

func (s *stubContext) Chat() *tele.Chat    { return s.chat }
func (s *stubContext) Sender() *tele.User  { return s.sender }
func (s *stubContext) Update() tele.Update { return tele.Update{ID: 1} }

func (s *stubContext) Set(key string, v interface{}) {
	if s.store == nil {
		s.store = make(map[string]interface{})
	}
	s.store[key] = v
}

func (s *stubContext) Get(key string) interface{} { return s.store[key] }
