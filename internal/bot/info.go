package bot

import (
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/mbarkhau/stammtischbot/core/logger"
	tghelpers "github.com/mbarkhau/stammtischbot/core/telegram/helpers"
	"github.com/mbarkhau/stammtischbot/internal/model"
)

// listMyEvents shows all upcoming entries for the PLZ values in the
// user's contact profile.
func (a *App) listMyEvents(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	contact := a.userContact(c)
	if len(contact.PLZ) == 0 {
		return c.Send(msgNoPLZInProfile)
	}

	events, err := a.events.ListByPLZ(ctx, contact.PLZ)
	if err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelError, "info.list_failed",
			slog.String("err", err.Error()),
		)
		return c.Send(msgSaveFailed)
	}

	label := strings.Join(contact.PLZList, ", ")

	if len(events) == 0 {
		return c.Send(fmt.Sprintf("Keine Termine für PLZ %v gefunden.", label))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Termine für PLZ %v:\n\n", label)
	for _, ie := range events {
		ev := ie.Event
		fmt.Fprintf(&b, "\U0001F4C5 %s %s %s\n",
			model.WeekdayDE(ev.Beginn), model.DisplayDate(ev.Beginn), ev.Uhrzeit)
		fmt.Fprintf(&b, "\U0001F4CD %s\n\n", ev.Name)
	}
	return c.Send(b.String())
}
