package state

import (
	"time"

	tele "gopkg.in/telebot.v4"
)

// State identifies a finite-state-machine step used in conversations.
type State string

const (
	// StateIdle indicates there is no active conversation with the user.
	StateIdle State = "idle"
)

// Key identifies a conversation. Each user has at most one active dialog
// per chat.
type Key struct {
	ChatID int64
	UserID int64
}

// KeyFrom derives the session key for the current update.
func KeyFrom(c tele.Context) Key {
	var k Key
	if chat := c.Chat(); chat != nil {
		k.ChatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		k.UserID = user.ID
	}
	return k
}

// Session stores conversation state and temporary data for one dialog.
type Session struct {
	State      State
	TempData   map[string]interface{}
	LastActive time.Time
}

// Manager orchestrates dialog sessions and FSM state transitions.
type Manager interface {
	Get(key Key) *Session
	SetTemp(key Key, name string, value interface{})
	GetTemp(key Key, name string) (interface{}, bool)
	ClearTemp(key Key, name string)
	Clear(key Key)

	// Dialog state
	SetState(key Key, st State)
	GetState(key Key) State
	HasState(key Key) bool
	ClearState(key Key)

	InProgress(key Key) bool

	// RegisterHandler associates a state with the handler invoked by
	// ManagerHandler while a dialog is in that state.
	RegisterHandler(st State, h tele.HandlerFunc)
	ManagerHandler(c tele.Context) error

	// ExpireIdle clears sessions untouched for longer than maxIdle and
	// reports how many were dropped.
	ExpireIdle(maxIdle time.Duration) int
}
