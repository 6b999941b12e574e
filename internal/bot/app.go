// Package bot implements the conversational event management dialogs:
// event creation, event deletion, and the admin user-activation flow.
// Dialog state lives in the FSM session manager, keyed per (chat, user).
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/mbarkhau/stammtischbot/core/config"
	"github.com/mbarkhau/stammtischbot/core/logger"
	tg "github.com/mbarkhau/stammtischbot/core/telegram"
	"github.com/mbarkhau/stammtischbot/core/telegram/commands"
	tghelpers "github.com/mbarkhau/stammtischbot/core/telegram/helpers"
	"github.com/mbarkhau/stammtischbot/core/telegram/keyboard"
	"github.com/mbarkhau/stammtischbot/core/telegram/router"
	"github.com/mbarkhau/stammtischbot/core/telegram/state"
	"github.com/mbarkhau/stammtischbot/internal/announce"
	"github.com/mbarkhau/stammtischbot/internal/chatreg"
	"github.com/mbarkhau/stammtischbot/internal/gitsync"
	"github.com/mbarkhau/stammtischbot/internal/model"
	"github.com/mbarkhau/stammtischbot/internal/service"
)

// Dialog states.
const (
	stCreateAskName     state.State = "create.ask_name"
	stCreateAskDate     state.State = "create.ask_date"
	stCreateConfirmDate state.State = "create.confirm_date"
	stCreateAskTime     state.State = "create.ask_time"
	stCreateAskPLZ      state.State = "create.ask_plz"
	stCreateConfirmSave state.State = "create.confirm_save"
	stDeleteSelect      state.State = "delete.select"
	stDeleteConfirm     state.State = "delete.confirm"
	stUserSelect        state.State = "users.select"
	stUserConfirm       state.State = "users.confirm"
)

// Session temp-data keys.
const (
	tmpNewEvent   = "new_event"
	tmpPrevEvent  = "prev_event"
	tmpCandidates = "delete_candidates"
	tmpSelected   = "selected_event"
	tmpUserCands  = "user_candidates"
	tmpUserSel    = "selected_user"
	tmpTargetMode = "target_status"
)

// Callback keys for inline-button dispatch. Selection is matched by the
// opaque candidate index in the callback payload, never by label text.
const (
	cbDeletePick = "del_pick"
	cbUserPick   = "usr_pick"
)

// EventStore is the slice of the events service the dialogs need.
type EventStore interface {
	ListByPLZ(ctx context.Context, plz map[string]struct{}) ([]service.IndexedEvent, error)
	Previous(ctx context.Context, plz map[string]struct{}) (*model.Event, error)
	DeleteCandidates(ctx context.Context, plz map[string]struct{}, max int) ([]service.IndexedEvent, error)
	Create(ctx context.Context, ev model.Event) error
	Delete(ctx context.Context, row int64, expected model.Event) error
	Audit(ctx context.Context, line string)
}

// ContactDirectory is the slice of the contacts service the bot needs.
type ContactDirectory interface {
	Sync(ctx context.Context) error
	ScheduleResync(cr *cron.Cron, spec string) error
	Get(telegramID string) (model.Contact, bool)
	All(ctx context.Context) ([]service.IndexedContact, error)
	SetBotModus(ctx context.Context, row int64, status string) error
	Audit(ctx context.Context, line string)
}

// Deps bundles the services the bot needs.
type Deps struct {
	Contacts  ContactDirectory
	Events    EventStore
	Announcer *announce.Announcer
	Syncer    *gitsync.Syncer
	Chats     *chatreg.Registry
}

// App is the assembled bot application.
type App struct {
	cfg       *coreconfig.Config
	fsm       state.Manager
	contacts  ContactDirectory
	events    EventStore
	announcer *announce.Announcer
	syncer    *gitsync.Syncer
	chats     *chatreg.Registry

	tz        *time.Location
	now       func() time.Time
	startTime time.Time
	cron      *cron.Cron
}

// New assembles the bot application and registers all dialog state
// handlers.
func New(cfg *coreconfig.Config, deps Deps) (*App, error) {
	tz, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		return nil, fmt.Errorf("bot: load timezone: %w", err)
	}
	a := &App{
		cfg:       cfg,
		fsm:       state.NewManager(),
		contacts:  deps.Contacts,
		events:    deps.Events,
		announcer: deps.Announcer,
		syncer:    deps.Syncer,
		chats:     deps.Chats,
		tz:        tz,
		now:       func() time.Time { return time.Now() },
		cron:      cron.New(),
	}
	a.startTime = a.now().In(tz)

	a.fsm.RegisterHandler(stCreateAskName, a.withCancel(a.createAskName))
	a.fsm.RegisterHandler(stCreateAskDate, a.withCancel(a.createAskDate))
	a.fsm.RegisterHandler(stCreateConfirmDate, a.withCancel(a.createConfirmDate))
	a.fsm.RegisterHandler(stCreateAskTime, a.withCancel(a.createAskTime))
	a.fsm.RegisterHandler(stCreateAskPLZ, a.withCancel(a.createAskPLZ))
	a.fsm.RegisterHandler(stCreateConfirmSave, a.withCancel(a.createConfirmSave))
	a.fsm.RegisterHandler(stDeleteSelect, a.withCancel(a.deleteAwaitButton))
	a.fsm.RegisterHandler(stDeleteConfirm, a.withCancel(a.deleteConfirm))
	a.fsm.RegisterHandler(stUserSelect, a.withCancel(a.userAwaitButton))
	a.fsm.RegisterHandler(stUserConfirm, a.withCancel(a.userConfirm))
	return a, nil
}

// CoreConfig implements the cmd.ConfigCarrier convention on App's config
// holder; see cmd/stammtischbot.
func (a *App) CoreConfig() *coreconfig.Config { return a.cfg }

// TelegramRunOptions builds the bot runtime wiring.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	reg := tg.NewRegistry()
	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Hauptmenü anzeigen",
	})
	if err := reg.RegisterCallback(cbDeletePick, a.deletePickCallback); err != nil {
		return tg.RunOptions{}, err
	}
	if err := reg.RegisterCallback(cbUserPick, a.userPickCallback); err != nil {
		return tg.RunOptions{}, err
	}
	reg.SetTextFallback(a.dispatchText)

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminIDs: a.cfg.Telegram.AdminIDs,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(a.fsm, reg, router.TextOptions{})...)

	mws := tg.DefaultMiddlewares(a.cfg, nil)
	mws = append(mws,
		tg.Middleware{Name: "chatreg", Use: a.chatObserverMiddleware},
		tg.Middleware{Name: "auth", Use: a.authMiddleware},
	)

	return tg.RunOptions{
		Config:      a.cfg,
		Registry:    reg,
		Middlewares: mws,
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt tg.Runtime) error {
	if err := a.contacts.Sync(ctx); err != nil {
		return fmt.Errorf("bot: initial contact sync: %w", err)
	}
	if err := a.contacts.ScheduleResync(a.cron, a.cfg.Sync.ContactsCron); err != nil {
		return err
	}
	idle := time.Duration(a.cfg.Sync.SessionIdleMinutes) * time.Minute
	if idle > 0 {
		if _, err := a.cron.AddFunc("@every 5m", func() {
			a.fsm.ExpireIdle(idle)
		}); err != nil {
			return fmt.Errorf("bot: schedule session expiry: %w", err)
		}
	}
	a.cron.Start()
	return nil
}

func (a *App) onStop(ctx context.Context, rt tg.Runtime) error {
	stopped := a.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(5 * time.Second):
	}
	return nil
}

// chatObserverMiddleware records every chat the bot sees in the local
// registry.
func (a *App) chatObserverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if a.chats != nil {
			if err := a.chats.Observe(c.Chat()); err != nil {
				ctx := tghelpers.BuildContext(c)
				logger.TG.LogAttrs(ctx, slog.LevelWarn, "chatreg.save_failed",
					slog.String("err", err.Error()),
				)
			}
		}
		return next(c)
	}
}

// authMiddleware is the authorization gate in front of every handler.
// Unknown identities are ignored entirely; known-but-inactive contacts
// get the fixed denial message. Group chats are only observed, never
// served.
func (a *App) authMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		if chat := c.Chat(); chat != nil && chat.Type != tele.ChatPrivate {
			return nil
		}

		active, known := a.isUserActive(sender.ID)
		if active {
			return next(c)
		}
		ctx := tghelpers.BuildContext(c)
		if !known {
			logger.TG.LogAttrs(ctx, slog.LevelWarn, "auth.unknown",
				slog.Int64("user_id", sender.ID),
			)
			return nil
		}
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "auth.inactive",
			slog.Int64("user_id", sender.ID),
		)
		if c.Message() != nil {
			return c.Send(msgContactAdmin)
		}
		return nil
	}
}

// isUserActive reports (active, known). Admins are always active, even
// without a contact row.
func (a *App) isUserActive(userID int64) (bool, bool) {
	if a.cfg.Telegram.IsAdmin(userID) {
		return true, true
	}
	contact, ok := a.contacts.Get(strconv.FormatInt(userID, 10))
	if !ok {
		return false, false
	}
	return contact.IsActive(), true
}

// mainKeyboard is the persistent reply keyboard; admins get the user
// management row.
func (a *App) mainKeyboard(userID int64) *tele.ReplyMarkup {
	rows := [][]string{
		{labelBotInfo, labelMyEvents},
		{labelCreateEvent, labelDeleteEvent},
	}
	if a.cfg.Telegram.IsAdmin(userID) {
		rows = append(rows, []string{labelActivateUser, labelDeactivateUser})
	}
	return keyboard.ReplyButtons(rows...)
}

func (a *App) handleStart(c tele.Context) error {
	return c.Send(msgWelcome+msgHowCanIHelp, a.mainKeyboard(c.Sender().ID))
}

// dispatchText routes idle-state text to the main menu actions. Dialog
// states are handled by the FSM manager before this fallback runs.
func (a *App) dispatchText(c tele.Context) error {
	text := strings.TrimSpace(c.Text())
	switch strings.ToLower(text) {
	case "bot info", "botinfo", "info":
		return a.handleInfo(c)
	case "meine termine", "termine":
		_ = c.Notify(tele.Typing)
		return a.listMyEvents(c)
	case "termin erstellen", "erstellen", "neu":
		return a.startCreate(c)
	case "termin löschen", "löschen":
		return a.startDelete(c)
	}
	switch text {
	case labelActivateUser, labelDeactivateUser:
		if !a.cfg.Telegram.IsAdmin(c.Sender().ID) {
			return c.Send(msgAdminsOnly)
		}
		return a.startManageUsers(c, text)
	}
	return c.Send(msgNotUnderstood)
}

func (a *App) handleInfo(c tele.Context) error {
	now := a.now().In(a.tz)
	msg := msgWelcome +
		fmt.Sprintf("Bot gestartet: %s\n", a.startTime.Format("02.01.2006 15:04:05")) +
		fmt.Sprintf("Aktuelle Zeit: %s", now.Format("02.01.2006 15:04:05"))
	return tghelpers.SendText(c, msg)
}

// withCancel wraps a dialog handler with the universal "Abbrechen" exit:
// accepted in every non-idle state, discarding all partial state.
func (a *App) withCancel(h tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if strings.EqualFold(strings.TrimSpace(c.Text()), labelCancel) {
			return a.resetFlow(c, msgCancelled)
		}
		return h(c)
	}
}

// resetFlow clears the session and restores the main keyboard.
func (a *App) resetFlow(c tele.Context, msg string) error {
	a.fsm.Clear(state.KeyFrom(c))
	return c.Send(msg, a.mainKeyboard(c.Sender().ID))
}

// userContact returns the sender's contact row, which may be absent for
// admins that have no kontakte entry.
func (a *App) userContact(c tele.Context) (contact contactView) {
	cc, ok := a.contacts.Get(strconv.FormatInt(c.Sender().ID, 10))
	if !ok {
		return contactView{}
	}
	return contactView{
		Name:    cc.Name,
		Email:   cc.Email,
		PLZList: cc.PLZList(),
		PLZ:     cc.PLZSet(),
	}
}

type contactView struct {
	Name    string
	Email   string
	PLZList []string // registration order, first entry is the profile default
	PLZ     map[string]struct{}
}
