package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/mbarkhau/stammtischbot/core/logger"
	"github.com/mbarkhau/stammtischbot/core/telegram/callbacks"
	tghelpers "github.com/mbarkhau/stammtischbot/core/telegram/helpers"
	"github.com/mbarkhau/stammtischbot/core/telegram/keyboard"
	"github.com/mbarkhau/stammtischbot/core/telegram/state"
	"github.com/mbarkhau/stammtischbot/internal/model"
	"github.com/mbarkhau/stammtischbot/internal/service"
)

// maxDeleteCandidates caps the inline button list for deletion.
const maxDeleteCandidates = 4

// startDelete begins the deletion dialog: the most recent events for the
// user's PLZ are offered as inline buttons carrying the candidate index.
func (a *App) startDelete(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	key := state.KeyFrom(c)
	contact := a.userContact(c)
	if len(contact.PLZ) == 0 {
		return c.Send(msgNoPLZInProfile)
	}

	_ = c.Send(msgSearching)
	cands, err := a.events.DeleteCandidates(ctx, contact.PLZ, maxDeleteCandidates)
	if err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelError, "delete.lookup_failed",
			slog.String("err", err.Error()),
		)
		return c.Send(msgDeleteFailed)
	}
	if len(cands) == 0 {
		return c.Send(msgNoEventsToDelete)
	}

	a.fsm.Clear(key)
	a.fsm.SetTemp(key, tmpCandidates, cands)
	a.fsm.SetState(key, stDeleteSelect)

	rows := make([][]keyboard.InlineBtn, 0, len(cands))
	for i, cand := range cands {
		rows = append(rows, []keyboard.InlineBtn{{
			Text:   deleteLabel(cand.Event),
			Unique: cbDeletePick,
			Data:   strconv.Itoa(i),
		}})
	}
	if err := c.Send(msgPickDelete, keyboard.InlineButtonsRows(rows...)); err != nil {
		return err
	}
	return c.Send(msgPickViaButtons, cancelKeyboard())
}

func deleteLabel(ev model.Event) string {
	label := model.DisplayDate(ev.Beginn)
	if wd := model.WeekdayDE(ev.Beginn); wd != "" {
		label = wd + " " + label
	}
	if ev.Uhrzeit != "" {
		label += " " + ev.Uhrzeit
	}
	return fmt.Sprintf("%s - %s", label, ev.PLZ)
}

// deleteAwaitButton handles stray text while a button press is expected.
func (a *App) deleteAwaitButton(c tele.Context) error {
	return c.Send(msgPickViaButtons, cancelKeyboard())
}

// deletePickCallback resolves the pressed button back to a candidate via
// its index payload and asks for final confirmation.
func (a *App) deletePickCallback(c tele.Context) error {
	key := state.KeyFrom(c)
	if a.fsm.GetState(key) != stDeleteSelect {
		return nil
	}
	v, ok := a.fsm.GetTemp(key, tmpCandidates)
	if !ok {
		return nil
	}
	cands, _ := v.([]service.IndexedEvent)

	idx, err := callbacks.PayloadInt64(c)
	if err != nil || idx < 0 || int(idx) >= len(cands) {
		return c.Send(msgPickViaButtons, cancelKeyboard())
	}
	selected := cands[idx]

	a.fsm.SetTemp(key, tmpSelected, selected)
	a.fsm.SetState(key, stDeleteConfirm)

	msg := "Diesen Termin wirklich unwiderruflich löschen?\n\n" +
		fmt.Sprintf("\U0001F4CD %s\n", selected.Event.Name) +
		fmt.Sprintf("\U0001F4C5 %s %s\n", selected.Event.Beginn, selected.Event.Uhrzeit) +
		fmt.Sprintf("\U0001F4EE PLZ: %s\n", selected.Event.PLZ)
	return c.Send(msg, yesCancelKeyboard())
}

func (a *App) deleteConfirm(c tele.Context) error {
	if !isYes(c.Text()) {
		return c.Send(msgConfirmOrAbort, yesCancelKeyboard())
	}
	ctx := tghelpers.BuildContext(c)
	key := state.KeyFrom(c)
	v, ok := a.fsm.GetTemp(key, tmpSelected)
	if !ok {
		return a.resetFlow(c, msgCancelled)
	}
	selected, _ := v.(service.IndexedEvent)

	_ = c.Send(msgDeleting)

	err := a.events.Delete(ctx, selected.Row, selected.Event)
	if errors.Is(err, service.ErrRowChanged) {
		return a.resetFlow(c, msgDeleteConflict)
	}
	if err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelError, "delete.failed",
			slog.String("err", err.Error()),
		)
		return a.resetFlow(c, msgDeleteFailed)
	}

	sender := c.Sender()
	a.events.Audit(ctx, fmt.Sprintf("User @%s (%d) deleted event: %s on %s at %s",
		sender.Username, sender.ID,
		selected.Event.Name, selected.Event.Beginn, selected.Event.Uhrzeit))

	if a.syncer != nil {
		a.syncer.Go(fmt.Sprintf("delete event for %s", selected.Event.PLZ))
	}
	msg := msgDeleteOK
	if a.syncer != nil {
		msg += msgWebsiteSoon
	}
	return a.resetFlow(c, msg)
}
