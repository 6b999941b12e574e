// Package state provides a lightweight FSM/session manager for Telegram
// bots. Sessions are tracked per (chat, user) pair and held only in
// process memory; a restart drops all open dialogs.
package state
