package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestResolveIncomingFromMessage(t *testing.T) {
	b := &Bot{callbacks: newCallbackStore()}
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 11},
			Chat: &tgbotapi.Chat{ID: 22},
			Text: "hello there",
		},
	}

	userID, chatID, text, ok := b.resolveIncoming(update)
	if !ok {
		t.Fatal("expected ok for a plain message")
	}
	if userID != 11 || chatID != 22 || text != "hello there" {
		t.Fatalf("got (%d, %d, %q), want (11, 22, %q)", userID, chatID, text, "hello there")
	}
}

func TestResolveIncomingRewritesExitCommand(t *testing.T) {
	b := &Bot{callbacks: newCallbackStore()}
	update := tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: 1},
			Chat: &tgbotapi.Chat{ID: 1},
			Text: "/cancel",
		},
	}

	_, _, text, ok := b.resolveIncoming(update)
	if !ok || text != "cancel" {
		t.Fatalf("got (%q, %v), want (\"cancel\", true)", text, ok)
	}
}

func TestResolveIncomingFromCallbackQueryResolvesMapping(t *testing.T) {
	b := &Bot{callbacks: newCallbackStore()}
	b.callbacks.set(22, map[string]string{"tok-1": "yes"})

	update := tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			From:    &tgbotapi.User{ID: 11},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 22}},
			Data:    "tok-1",
		},
	}

	userID, chatID, text, ok := b.resolveIncoming(update)
	if !ok {
		t.Fatal("expected ok when callback data is in the store")
	}
	if userID != 11 || chatID != 22 || text != "yes" {
		t.Fatalf("got (%d, %d, %q), want (11, 22, \"yes\")", userID, chatID, text)
	}
}

func TestResolveIncomingFromUnknownCallbackDataIsRejected(t *testing.T) {
	b := &Bot{callbacks: newCallbackStore()}
	update := tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			From:    &tgbotapi.User{ID: 11},
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 22}},
			Data:    "forged-data",
		},
	}

	_, _, _, ok := b.resolveIncoming(update)
	if ok {
		t.Fatal("callback data absent from the store must never resolve to text")
	}
}
