package state

import (
	"context"
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/mbarkhau/stammtischbot/core/logger"
	tghelpers "github.com/mbarkhau/stammtischbot/core/telegram/helpers"
)

var _ Manager = (*memoryManager)(nil)

type memoryManager struct {
	mu       sync.RWMutex
	sessions map[Key]*Session
	handlers map[State]tele.HandlerFunc
	now      func() time.Time
}

// NewManager returns an in-memory session manager.
func NewManager() Manager {
	return &memoryManager{
		sessions: make(map[Key]*Session),
		handlers: make(map[State]tele.HandlerFunc),
		now:      time.Now,
	}
}

func (m *memoryManager) Get(key Key) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getLocked(key)
}

func (m *memoryManager) getLocked(key Key) *Session {
	s, ok := m.sessions[key]
	if !ok {
		s = &Session{
			State:    StateIdle,
			TempData: make(map[string]interface{}),
		}
		m.sessions[key] = s
	}
	s.LastActive = m.now()
	return s
}

func (m *memoryManager) SetTemp(key Key, name string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getLocked(key).TempData[name] = value
}

func (m *memoryManager) GetTemp(key Key, name string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key]
	if !ok {
		return nil, false
	}
	v, ok := s.TempData[name]
	return v, ok
}

func (m *memoryManager) ClearTemp(key Key, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		delete(s.TempData, name)
	}
}

func (m *memoryManager) Clear(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

func (m *memoryManager) SetState(key Key, st State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getLocked(key).State = st
}

func (m *memoryManager) GetState(key Key) State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[key]; ok {
		return s.State
	}
	return StateIdle
}

func (m *memoryManager) HasState(key Key) bool {
	return m.GetState(key) != StateIdle
}

func (m *memoryManager) ClearState(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.State = StateIdle
	}
}

func (m *memoryManager) InProgress(key Key) bool {
	return m.HasState(key)
}

func (m *memoryManager) RegisterHandler(st State, h tele.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[st] = h
}

// touchState reads the session state and marks the session active, so a
// user stuck re-answering a prompt is not expired mid-dialog.
func (m *memoryManager) touchState(key Key) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if !ok {
		return StateIdle
	}
	s.LastActive = m.now()
	return s.State
}

// ManagerHandler routes an incoming message to the handler registered for
// the sender's current dialog state. Messages outside any dialog fall
// through untouched.
func (m *memoryManager) ManagerHandler(c tele.Context) error {
	key := KeyFrom(c)
	st := m.touchState(key)
	if st == StateIdle {
		return nil
	}

	m.mu.RLock()
	h, ok := m.handlers[st]
	m.mu.RUnlock()
	ctx := tghelpers.BuildContext(c)
	if !ok {
		logger.TG.LogAttrs(ctx, slog.LevelWarn, "fsm.orphan",
			slog.String("state", string(st)),
			slog.Int64("chat_id", key.ChatID),
			slog.Int64("user_id", key.UserID),
			slog.String("rid", logger.RIDFrom(ctx)),
		)
		m.Clear(key)
		return nil
	}

	logger.TG.LogAttrs(ctx, slog.LevelDebug, "fsm.dispatch",
		slog.String("state", string(st)),
		slog.Int64("chat_id", key.ChatID),
		slog.Int64("user_id", key.UserID),
		slog.String("rid", logger.RIDFrom(ctx)),
	)
	return h(c)
}

func (m *memoryManager) ExpireIdle(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()
	var dropped int
	for key, s := range m.sessions {
		if s.State == StateIdle {
			continue
		}
		if s.LastActive.Before(cutoff) {
			delete(m.sessions, key)
			dropped++
		}
	}
	if dropped > 0 {
		logger.TG.LogAttrs(context.Background(), slog.LevelInfo, "fsm.expire",
			slog.Int("count", dropped),
		)
	}
	return dropped
}
