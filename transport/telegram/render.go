package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jmorenobl/soni/state"
)

// renderOutbound turns one turn's outbound messages into Telegram send
// calls. A confirm prompt (the turn's resulting conversation_state is
// CONFIRMING) gets a yes/no inline keyboard grafted on after its text,
// adapted from the teacher's Prompt-Process keyboard attachment
// (core/prompt_composer.go) — the DRC itself stays button-agnostic per
// §4.9 (confirm replies are understood by the NLU like any other
// message), the keyboard is pure transport sugar mapped back to plain
// text via callbackStore.
func (b *Bot) renderOutbound(chatID int64, msgs []state.OutboundMessage, stateTag state.ConversationState) []tgbotapi.Chattable {
	out := make([]tgbotapi.Chattable, 0, len(msgs))
	for i, m := range msgs {
		msg := tgbotapi.NewMessage(chatID, m.Text)
		isLast := i == len(msgs)-1
		if isLast && stateTag == state.StateConfirming {
			kb := NewInlineKeyboard().
				Button("Yes", "yes").
				Button("No", "no")
			markup, mapping := kb.Build()
			b.callbacks.set(chatID, mapping)
			msg.ReplyMarkup = markup
		} else if isLast {
			b.callbacks.clear(chatID)
		}
		out = append(out, msg)
	}
	return out
}
