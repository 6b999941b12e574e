package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/mbarkhau/stammtischbot/core/logger"
	"github.com/mbarkhau/stammtischbot/core/telegram/callbacks"
	tghelpers "github.com/mbarkhau/stammtischbot/core/telegram/helpers"
	"github.com/mbarkhau/stammtischbot/core/telegram/keyboard"
	"github.com/mbarkhau/stammtischbot/core/telegram/state"
	"github.com/mbarkhau/stammtischbot/internal/service"
	"github.com/mbarkhau/stammtischbot/internal/sheet"
)

// startManageUsers begins the admin dialog that flips a contact's
// bot_modus column. action is the pressed main-menu label.
func (a *App) startManageUsers(c tele.Context, action string) error {
	ctx := tghelpers.BuildContext(c)
	key := state.KeyFrom(c)

	target := statusActive
	verb := "aktivieren"
	if action == labelDeactivateUser {
		target = statusDeactivated
		verb = "deaktivieren"
	}

	all, err := a.contacts.All(ctx)
	if err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelError, "users.lookup_failed",
			slog.String("err", err.Error()),
		)
		return c.Send(msgUserUpdateFailed)
	}

	var cands []service.IndexedContact
	for _, ic := range all {
		active := strings.EqualFold(ic.Contact.BotModus, statusActive)
		if target == statusActive && !active {
			cands = append(cands, ic)
		} else if target == statusDeactivated && active {
			cands = append(cands, ic)
		}
	}
	if len(cands) == 0 {
		return c.Send(fmt.Sprintf("Keine Nutzer gefunden, die %s werden können.", verb+"t"))
	}

	a.fsm.Clear(key)
	a.fsm.SetTemp(key, tmpTargetMode, target)
	a.fsm.SetTemp(key, tmpUserCands, cands)
	a.fsm.SetState(key, stUserSelect)

	rows := make([][]keyboard.InlineBtn, 0, len(cands))
	for i, cand := range cands {
		rows = append(rows, []keyboard.InlineBtn{{
			Text:   cand.Contact.Label(),
			Unique: cbUserPick,
			Data:   strconv.Itoa(i),
		}})
	}
	msg := fmt.Sprintf("Welchen Nutzer möchten Sie %s?", verb)
	if err := c.Send(msg, keyboard.InlineButtonsRows(rows...)); err != nil {
		return err
	}
	return c.Send(msgPickUserButtons, cancelKeyboard())
}

func (a *App) userAwaitButton(c tele.Context) error {
	return c.Send(msgPickUserButtons, cancelKeyboard())
}

func (a *App) userPickCallback(c tele.Context) error {
	key := state.KeyFrom(c)
	if a.fsm.GetState(key) != stUserSelect {
		return nil
	}
	v, ok := a.fsm.GetTemp(key, tmpUserCands)
	if !ok {
		return nil
	}
	cands, _ := v.([]service.IndexedContact)

	idx, err := callbacks.PayloadInt64(c)
	if err != nil || idx < 0 || int(idx) >= len(cands) {
		return c.Send(msgPickUserButtons, cancelKeyboard())
	}
	selected := cands[idx]

	target, _ := a.targetMode(key)
	a.fsm.SetTemp(key, tmpUserSel, selected)
	a.fsm.SetState(key, stUserConfirm)

	verb := "aktivieren"
	if target == statusDeactivated {
		verb = "deaktivieren"
	}
	msg := fmt.Sprintf("Möchten Sie diesen Nutzer wirklich %s?\n\n", verb) +
		fmt.Sprintf("\U0001F464 Name: %s\n", selected.Contact.Name) +
		fmt.Sprintf("\U0001F194 Telegram ID: %s\n", selected.Contact.TelegramID) +
		fmt.Sprintf("\U0001F3F7 Username: %s\n", selected.Contact.Username)
	return c.Send(msg, yesCancelKeyboard())
}

func (a *App) targetMode(key state.Key) (string, bool) {
	v, ok := a.fsm.GetTemp(key, tmpTargetMode)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

func (a *App) userConfirm(c tele.Context) error {
	if !isYes(c.Text()) {
		return c.Send(msgConfirmOrAbortS, yesCancelKeyboard())
	}
	ctx := tghelpers.BuildContext(c)
	key := state.KeyFrom(c)

	v, ok := a.fsm.GetTemp(key, tmpUserSel)
	if !ok {
		return a.resetFlow(c, msgCancelled)
	}
	selected, _ := v.(service.IndexedContact)
	target, _ := a.targetMode(key)

	err := a.contacts.SetBotModus(ctx, selected.Row, target)
	if err != nil {
		event := "users.update_failed"
		msg := msgUserUpdateFailed
		if errors.Is(err, sheet.ErrColumnMissing) {
			event = "users.column_missing"
			msg = msgModusColMissing
		}
		logger.TG.LogAttrs(ctx, slog.LevelError, event,
			slog.String("err", err.Error()),
		)
		return a.resetFlow(c, msg)
	}

	sender := c.Sender()
	a.contacts.Audit(ctx, fmt.Sprintf("Admin @%s (%d) set status of %s (%s) to %s",
		sender.Username, sender.ID,
		selected.Contact.Name, selected.Contact.TelegramID, target))

	// Newly activated users get a direct welcome so they know the bot is
	// ready for them.
	if target == statusActive && c.Bot() != nil {
		if id, err := strconv.ParseInt(selected.Contact.TelegramID, 10, 64); err == nil {
			if _, err := c.Bot().Send(tele.ChatID(id), msgWelcome+msgAccountActivated); err != nil {
				logger.TG.LogAttrs(ctx, slog.LevelWarn, "users.notify_failed",
					slog.Int64("target_id", id),
					slog.String("err", err.Error()),
				)
			}
		}
	}

	verb := "aktiviert"
	if target == statusDeactivated {
		verb = "deaktiviert"
	}
	return a.resetFlow(c, fmt.Sprintf("✅ Nutzer wurde erfolgreich %s.", verb))
}
