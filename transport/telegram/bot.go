// Package telegram adapts the Dialogue Runtime Core to Telegram (§6.3's
// "transport is a thin collaborator"). It is grounded on the teacher's
// Bot/Context/processUpdate pipeline (core/bot.go, core/context.go) but
// carries none of the teacher's own flow/state logic: every update is
// reduced to a user id and a plain-text message and handed straight to
// runtime.Engine.ProcessTurn, whose reply is rendered back as one or more
// Telegram messages. The bot never inspects dialogue state, flow stacks,
// or slots — that is exactly what §6.3 asks a host to avoid doing.
package telegram

import (
	"context"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jmorenobl/soni/runtime"
	"github.com/jmorenobl/soni/telemetry"
)

// ExitCommands are literal message texts the bot rewrites to the plain
// word "cancel" before handing the update to the engine. The rewritten
// text still goes through the configured NLU provider: the rule-based
// provider's cancel vocabulary recognizes it, and other providers
// classify it like any other message. Anything not in this list goes to
// ProcessTurn verbatim.
var ExitCommands = []string{"/cancel", "/exit"}

// Bot polls Telegram and drives one loaded document's runtime.Engine.
type Bot struct {
	api       *tgbotapi.BotAPI
	engine    *runtime.Engine
	callbacks *callbackStore
}

// New wraps an already-configured Telegram Bot API client and engine. The
// caller owns engine construction (document load, registries, NLU
// provider, checkpointer) — see cmd/soni for the full wiring — so this
// package stays free of any of that policy.
func New(api *tgbotapi.BotAPI, engine *runtime.Engine) *Bot {
	return &Bot{api: api, engine: engine, callbacks: newCallbackStore()}
}

// NewFromToken is a convenience constructor mirroring the teacher's
// NewBot(token), for callers that don't already hold a *tgbotapi.BotAPI.
func NewFromToken(token string, engine *runtime.Engine) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return New(api, engine), nil
}

// Start begins long-polling for updates, mirroring the teacher's
// Bot.Start (core/bot.go): a 60s-timeout GetUpdatesChan, one goroutine
// per update so a slow turn never blocks the next user's.
func (b *Bot) Start() error {
	telemetry.Log.WithField("account", b.api.Self.UserName).Info("telegram transport authorized")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		go b.processUpdate(update)
	}
	return nil
}

// processUpdate reduces one Telegram update to (userID, text), runs it
// through the engine, and renders the reply. Grounded on
// core/bot.go's processUpdate, minus everything that delegated to the
// teacher's in-package FlowManager/StateManager — that responsibility
// now belongs entirely to runtime.Engine.
func (b *Bot) processUpdate(update tgbotapi.Update) {
	start := time.Now()
	userID, chatID, text, ok := b.resolveIncoming(update)
	if !ok {
		return
	}

	if update.CallbackQuery != nil {
		ack := tgbotapi.NewCallback(update.CallbackQuery.ID, "")
		if _, err := b.api.Request(ack); err != nil {
			telemetry.Log.WithError(err).Warn("failed to ack callback query")
		}
	}

	sessionID := strconv.FormatInt(userID, 10)
	entry := telemetry.NewEntry(sessionID).WithField("update_type", updateKind(update))

	result, err := b.engine.ProcessTurn(context.Background(), sessionID, text)
	if err != nil {
		entry.WithError(err).WithField("duration", time.Since(start)).Error("process_turn failed")
		b.send(chatID, tgbotapi.NewMessage(chatID, "Something went wrong. Please try again."))
		return
	}
	entry.WithFields(map[string]any{
		"duration":   time.Since(start),
		"state":      result.StateTag,
		"n_messages": len(result.Messages),
	}).Debug("process_turn completed")

	for _, msg := range b.renderOutbound(chatID, result.Messages, result.StateTag) {
		b.send(chatID, msg)
	}
}

// updateKind classifies an update for logging the way the teacher's
// LoggingMiddleware does (core/middleware.go), trimmed to what a
// transport-agnostic engine call site can still observe.
func updateKind(update tgbotapi.Update) string {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		return "command:" + update.Message.Command()
	case update.Message != nil:
		return "text"
	case update.CallbackQuery != nil:
		return "callback"
	default:
		return "unknown"
	}
}

// resolveIncoming extracts the (userID, chatID, text) triple ProcessTurn
// needs, adapted from core/context.go's extractUserID/extractChatID. A
// callback query's text is resolved through callbackStore rather than
// sent as the raw (untrusted, UUID-shaped) callback_data.
func (b *Bot) resolveIncoming(update tgbotapi.Update) (userID, chatID int64, text string, ok bool) {
	switch {
	case update.Message != nil:
		msg := update.Message
		text = msg.Text
		for _, exit := range ExitCommands {
			if text == exit {
				text = "cancel"
				break
			}
		}
		return msg.From.ID, msg.Chat.ID, text, true

	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		chat := cq.Message.Chat.ID
		resolved, found := b.callbacks.resolve(chat, cq.Data)
		if !found {
			telemetry.Log.WithField("chat_id", chat).Warn("unresolvable callback data; ignoring")
			return 0, 0, "", false
		}
		return cq.From.ID, chat, resolved, true

	default:
		return 0, 0, "", false
	}
}

func (b *Bot) send(chatID int64, msg tgbotapi.Chattable) {
	if _, err := b.api.Send(msg); err != nil {
		telemetry.Log.WithError(err).WithField("chat_id", chatID).Error("failed to send telegram message")
	}
}
