package bot

import (
	"fmt"
	"log/slog"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/mbarkhau/stammtischbot/core/logger"
	tghelpers "github.com/mbarkhau/stammtischbot/core/telegram/helpers"
	"github.com/mbarkhau/stammtischbot/core/telegram/keyboard"
	"github.com/mbarkhau/stammtischbot/core/telegram/state"
	"github.com/mbarkhau/stammtischbot/internal/model"
)

const (
	tmpSuggestedTime = "suggested_time"
	tmpSuggestedPLZ  = "suggested_plz"
)

// carryExclude lists the columns never copied forward from a previous
// event to a new one.
var carryExclude = map[string]struct{}{
	"name": {}, "beginn": {}, "ende": {}, "uhrzeit": {}, "plz": {},
	"kontakt": {}, "e-mail": {}, "kw": {}, "wochentag": {},
}

func yesCancelKeyboard() *tele.ReplyMarkup {
	return keyboard.ReplyButtons([]string{labelYes, labelCancel})
}

func cancelKeyboard() *tele.ReplyMarkup {
	return keyboard.ReplyButtons([]string{labelCancel})
}

func isYes(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), labelYes)
}

// startCreate begins the event creation dialog. When the user created an
// event before, its name is offered for reuse.
func (a *App) startCreate(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	key := state.KeyFrom(c)
	contact := a.userContact(c)

	a.fsm.Clear(key)
	a.fsm.SetTemp(key, tmpNewEvent, model.Event{})

	if len(contact.PLZ) > 0 {
		prev, err := a.events.Previous(ctx, contact.PLZ)
		if err != nil {
			logger.TG.LogAttrs(ctx, slog.LevelWarn, "create.prev_lookup_failed",
				slog.String("err", err.Error()),
			)
		} else if prev != nil {
			a.fsm.SetTemp(key, tmpPrevEvent, *prev)
			a.fsm.SetState(key, stCreateAskName)
			msg := fmt.Sprintf("Soll der Stammtisch weiterhin %q heißen?", prev.Name)
			return c.Send(msg, yesCancelKeyboard())
		}
	}

	a.fsm.SetState(key, stCreateAskName)
	return c.Send(msgAskName, cancelKeyboard())
}

func (a *App) prevEvent(key state.Key) *model.Event {
	v, ok := a.fsm.GetTemp(key, tmpPrevEvent)
	if !ok {
		return nil
	}
	ev, ok := v.(model.Event)
	if !ok {
		return nil
	}
	return &ev
}

func (a *App) draftEvent(key state.Key) model.Event {
	v, ok := a.fsm.GetTemp(key, tmpNewEvent)
	if !ok {
		return model.Event{}
	}
	ev, _ := v.(model.Event)
	return ev
}

func (a *App) createAskName(c tele.Context) error {
	key := state.KeyFrom(c)
	ev := a.draftEvent(key)

	text := strings.TrimSpace(c.Text())
	if prev := a.prevEvent(key); prev != nil && isYes(text) {
		ev.Name = prev.Name
	} else {
		ev.Name = text
	}
	if ev.Name == "" {
		return c.Send(msgAskName, cancelKeyboard())
	}
	a.fsm.SetTemp(key, tmpNewEvent, ev)
	a.fsm.SetState(key, stCreateAskDate)
	msg := fmt.Sprintf("Setze Name auf: %s\n\n", ev.Name) + msgAskDate
	return c.Send(msg, cancelKeyboard())
}

func (a *App) createAskDate(c tele.Context) error {
	key := state.KeyFrom(c)
	now := a.now().In(a.tz)

	date, err := parseEventDate(c.Text(), now)
	switch err {
	case nil:
	case errDateInvalid:
		return c.Send(msgDateInvalid, cancelKeyboard())
	default:
		return c.Send(msgDateUnparsed, cancelKeyboard())
	}

	ev := a.draftEvent(key)
	ev.Beginn = date.Format("2006-01-02")
	// Single-day events, the website data model carries both columns.
	ev.Ende = ev.Beginn
	a.fsm.SetTemp(key, tmpNewEvent, ev)
	a.fsm.SetState(key, stCreateConfirmDate)

	msg := fmt.Sprintf("Der %s %s wurde erkannt. Korrekt?",
		model.WeekdayDE(ev.Beginn), model.DisplayDate(ev.Beginn))
	return c.Send(msg, yesCancelKeyboard())
}

func (a *App) createConfirmDate(c tele.Context) error {
	key := state.KeyFrom(c)
	if !isYes(c.Text()) {
		a.fsm.SetState(key, stCreateAskDate)
		return c.Send(msgDateAgain, cancelKeyboard())
	}

	suggested := "19:00"
	if prev := a.prevEvent(key); prev != nil && prev.Uhrzeit != "" {
		suggested = prev.Uhrzeit
	}
	a.fsm.SetTemp(key, tmpSuggestedTime, suggested)
	a.fsm.SetState(key, stCreateAskTime)

	msg := fmt.Sprintf("Um welche Uhrzeit ist der Stammtisch? Weiterhin um %s Uhr?", suggested)
	return c.Send(msg, yesCancelKeyboard())
}

func (a *App) createAskTime(c tele.Context) error {
	key := state.KeyFrom(c)
	ev := a.draftEvent(key)

	if isYes(c.Text()) {
		if v, ok := a.fsm.GetTemp(key, tmpSuggestedTime); ok {
			ev.Uhrzeit, _ = v.(string)
		}
	}
	if ev.Uhrzeit == "" {
		ev.Uhrzeit = parseEventTime(c.Text())
	}
	a.fsm.SetTemp(key, tmpNewEvent, ev)
	a.fsm.SetState(key, stCreateAskPLZ)

	suggested := ""
	if prev := a.prevEvent(key); prev != nil && prev.PLZ != "" {
		suggested = prev.PLZ
	} else if contact := a.userContact(c); len(contact.PLZList) > 0 {
		suggested = contact.PLZList[0]
	}
	if suggested == "" {
		return c.Send(msgAskPLZ, cancelKeyboard())
	}
	a.fsm.SetTemp(key, tmpSuggestedPLZ, suggested)
	msg := fmt.Sprintf("Unter welcher PLZ findet das Treffen statt? Weiterhin unter %s?", suggested)
	return c.Send(msg, yesCancelKeyboard())
}

func (a *App) createAskPLZ(c tele.Context) error {
	key := state.KeyFrom(c)
	ev := a.draftEvent(key)

	plz := ""
	if isYes(c.Text()) {
		if v, ok := a.fsm.GetTemp(key, tmpSuggestedPLZ); ok {
			plz, _ = v.(string)
		}
	}
	if plz == "" {
		plz = parsePLZ(c.Text())
	}
	if plz == "" {
		return c.Send(msgPLZInvalid, cancelKeyboard())
	}
	ev.PLZ = plz

	contact := a.userContact(c)
	ev.Kontakt = contact.Name
	if ev.Kontakt == "" {
		sender := c.Sender()
		ev.Kontakt = strings.TrimSpace(sender.FirstName + " " + sender.LastName)
	}
	ev.Email = contact.Email

	// Recurring events keep their organizer details when name and PLZ
	// still match the previous entry.
	if prev := a.prevEvent(key); prev != nil && prev.Name == ev.Name && prev.PLZ == ev.PLZ {
		ev.Orga = prev.Orga
		ev.OrgaWebseite = prev.OrgaWebseite
		ev.Telegram = prev.Telegram
		ev.TelegramGroupID = prev.TelegramGroupID
		for k, v := range prev.Extra {
			if _, skip := carryExclude[k]; skip {
				continue
			}
			if ev.Extra == nil {
				ev.Extra = model.Record{}
			}
			ev.Extra[k] = v
		}
	}

	a.fsm.SetTemp(key, tmpNewEvent, ev)
	a.fsm.SetState(key, stCreateConfirmSave)
	return c.Send(createSummary(ev), yesCancelKeyboard())
}

func createSummary(ev model.Event) string {
	var b strings.Builder
	b.WriteString("Erfassten Angaben für den neuen Termin:\n\n")
	fmt.Fprintf(&b, "\U0001F4CD Name: %s\n", ev.Name)
	fmt.Fprintf(&b, "\U0001F4C5 Datum: %s\n", ev.Beginn)
	fmt.Fprintf(&b, "⏰ Zeit: %s\n", ev.Uhrzeit)
	fmt.Fprintf(&b, "\U0001F4EE PLZ: %s\n", ev.PLZ)
	if ev.Orga != "" {
		fmt.Fprintf(&b, "\U0001F3E2 Orga: %s\n", ev.Orga)
	}
	if ev.OrgaWebseite != "" {
		fmt.Fprintf(&b, "\U0001F310 Webseite: %s\n", ev.OrgaWebseite)
	}
	if ev.Telegram != "" {
		fmt.Fprintf(&b, "\U0001F4AC Telegram: %s\n", ev.Telegram)
	}
	b.WriteString("\nAlles so richtig?\n")
	return b.String()
}

func (a *App) createConfirmSave(c tele.Context) error {
	if !isYes(c.Text()) {
		return c.Send(msgConfirmOrAbort, yesCancelKeyboard())
	}
	ctx := tghelpers.BuildContext(c)
	key := state.KeyFrom(c)
	ev := a.draftEvent(key)

	_ = c.Send(msgSaving)

	sender := c.Sender()
	a.events.Audit(ctx, fmt.Sprintf("User @%s (%d) created event: %s on %s at %s",
		sender.Username, sender.ID, ev.Name, ev.Beginn, ev.Uhrzeit))

	if err := a.events.Create(ctx, ev); err != nil {
		logger.TG.LogAttrs(ctx, slog.LevelError, "create.save_failed",
			slog.String("err", err.Error()),
		)
		return a.resetFlow(c, msgSaveFailed)
	}

	if a.syncer != nil {
		a.syncer.Go(fmt.Sprintf("new event for %s", ev.PLZ))
	}
	if a.announcer != nil {
		go a.announcer.Publish(ctx, c.Bot(), ev)
	}

	msg := msgSaveOK
	if a.syncer != nil {
		msg += msgWebsiteSoon
	}
	msg += "\n\n" + msgAnythingElse
	return a.resetFlow(c, msg)
}
