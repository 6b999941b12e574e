package bot

// All user-facing strings. The bot speaks German; diagnostics go to the
// process log and the audit sheet in English.
const (
	msgWelcome = "Beep, boop \U0001F916\n\n" +
		"Hallo, ich bin der freiheitliche-stammtische.de Bot!\n" +
		"Ich verwalte Termine auf https://freiheitliche-stammtische.de\n\n"

	msgHowCanIHelp   = "Wie kann ich Ihnen helfen?"
	msgNotUnderstood = "Ich habe dich nicht verstanden.\nNutze /start."
	msgContactAdmin  = "Melde dich bei @ManuelB um dein Konto zu aktivieren"
	msgAdminsOnly    = "Diese Funktion ist nur für Administratoren verfügbar."
	msgCancelled     = "Vorgang abgebrochen."
	msgAnythingElse  = "Was kann ich sonst für dich tun?"

	msgNoPLZInProfile = "In deinem Kontakt-Profil ist keine PLZ hinterlegt."
	msgSearching      = "\U0001F50D Suche Termine..."

	msgAskName        = "Wie soll der Stammtisch heißen?"
	msgAskDate        = "An welchem Tag ist der Stammtisch? (z.B. '31.12')"
	msgDateInvalid    = "Das scheint kein gültiges Datum zu sein. Bitte erneut versuchen (z.B. '31.12')."
	msgDateUnparsed   = "Ich konnte das Datum nicht erkennen. Bitte sende es im Format 'TT.MM'."
	msgDateAgain      = "Bitte gib das Datum erneut ein (z.B. '31.12')."
	msgAskPLZ         = "Unter welcher PLZ findet das Treffen statt?"
	msgPLZInvalid     = "Bitte gib eine gültige 5-stellige PLZ an."
	msgConfirmOrAbort = "Bitte bestätige mit 'Ja' oder nutze 'Abbrechen'."

	msgSaving      = "Speichere in GSheet..."
	msgSaveOK      = "✅ Termin wurde erfolgreich gespeichert!"
	msgSaveFailed  = "❌ Fehler beim Speichern. Bitte versuche es später erneut."
	msgWebsiteSoon = "\nDie Änderungen werden in 1-2 Minuten auf der Webseite sichtbar sein."

	msgNoEventsToDelete = "Ich konnte keine Termine für deine PLZ finden."
	msgPickDelete       = "Welchen Termin möchten Sie löschen?"
	msgPickViaButtons   = "Bitte wähle einen der Termine über die Buttons aus."
	msgDeleting         = "Lösche in GSheet..."
	msgDeleteOK         = "✅ Termin wurde gelöscht."
	msgDeleteFailed     = "❌ Fehler beim Löschen. Bitte versuche es später erneut."
	msgDeleteConflict   = "❌ Der Termin wurde zwischenzeitlich geändert. Bitte starte den Vorgang erneut."

	msgPickUserButtons  = "Bitte wählen Sie einen Nutzer über die Buttons aus."
	msgConfirmOrAbortS  = "Bitte bestätigen Sie mit 'Ja' oder nutzen Sie 'Abbrechen'."
	msgModusColMissing  = "❌ Fehler: Spalte 'Bot modus' nicht gefunden."
	msgUserUpdateFailed = "❌ Fehler beim Aktualisieren. Bitte versuche es später erneut."
	msgAccountActivated = "Ihr Konto wurde aktiviert und Sie können jetzt Termine für Ihren Stammtisch verwalten.\n\n" +
		"Um Befehle zu initiieren, schreibe: /start"

	labelCancel         = "Abbrechen"
	labelYes            = "Ja"
	labelBotInfo        = "Bot Info"
	labelMyEvents       = "Meine Termine"
	labelCreateEvent    = "Termin Erstellen"
	labelDeleteEvent    = "Termin Löschen"
	labelActivateUser   = "Nutzer Aktivieren"
	labelDeactivateUser = "Nutzer Deaktivieren"

	statusActive      = "Aktiv"
	statusDeactivated = "Deaktiviert"
)
