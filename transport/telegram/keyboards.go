package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
)

// ReplyKeyboard mirrors the teacher's reply-keyboard abstraction
// (core/keyboards.go), carried over unchanged: a grid of plain-text
// buttons that send their label back as an ordinary message.
type ReplyKeyboard struct {
	Keyboard              [][]string
	ResizeKeyboard        bool
	OneTimeKeyboard       bool
	InputFieldPlaceholder string
}

// BuildReplyKeyboard lays buttons out buttonsPerRow to a row, matching
// the teacher's BuildReplyKeyboard.
func BuildReplyKeyboard(buttons []string, buttonsPerRow int) *ReplyKeyboard {
	if buttonsPerRow <= 0 {
		buttonsPerRow = 1
	}
	kb := &ReplyKeyboard{}
	for i := 0; i < len(buttons); i += buttonsPerRow {
		end := i + buttonsPerRow
		if end > len(buttons) {
			end = len(buttons)
		}
		kb.Keyboard = append(kb.Keyboard, append([]string{}, buttons[i:end]...))
	}
	return kb
}

func (kb *ReplyKeyboard) Resize() *ReplyKeyboard  { kb.ResizeKeyboard = true; return kb }
func (kb *ReplyKeyboard) OneTime() *ReplyKeyboard { kb.OneTimeKeyboard = true; return kb }

// ToTgbotapi converts the reply keyboard to telegram-bot-api format.
func (kb *ReplyKeyboard) ToTgbotapi() tgbotapi.ReplyKeyboardMarkup {
	var keyboard [][]tgbotapi.KeyboardButton
	for _, row := range kb.Keyboard {
		var tgRow []tgbotapi.KeyboardButton
		for _, label := range row {
			tgRow = append(tgRow, tgbotapi.NewKeyboardButton(label))
		}
		keyboard = append(keyboard, tgRow)
	}
	return tgbotapi.ReplyKeyboardMarkup{
		Keyboard:              keyboard,
		ResizeKeyboard:        kb.ResizeKeyboard,
		OneTimeKeyboard:       kb.OneTimeKeyboard,
		InputFieldPlaceholder: kb.InputFieldPlaceholder,
	}
}

// InlineKeyboardBuilder adapts the teacher's PromptKeyboardBuilder
// (core/prompt_keyboard_builder.go): buttons never carry the candidate
// value as raw callback_data (Telegram truncates at 64 bytes, and the
// value is arbitrary `any` coming out of the dialogue state, not a
// string). Instead each button gets a fresh UUID and the builder records
// uuid -> value; the caller hands the mapping to a callbackStore keyed by
// chat so an incoming CallbackQuery can be resolved back to the original
// value without the bot having to trust client-supplied data.
type InlineKeyboardBuilder struct {
	rows    [][]tgbotapi.InlineKeyboardButton
	current []tgbotapi.InlineKeyboardButton
	mapping map[string]string
}

func NewInlineKeyboard() *InlineKeyboardBuilder {
	return &InlineKeyboardBuilder{mapping: make(map[string]string)}
}

// Button adds a button whose press resumes the turn as if the user had
// typed replyText.
func (b *InlineKeyboardBuilder) Button(label, replyText string) *InlineKeyboardBuilder {
	id := uuid.New().String()
	b.mapping[id] = replyText
	b.current = append(b.current, tgbotapi.NewInlineKeyboardButtonData(label, id))
	return b
}

func (b *InlineKeyboardBuilder) Row() *InlineKeyboardBuilder {
	if len(b.current) > 0 {
		b.rows = append(b.rows, b.current)
		b.current = nil
	}
	return b
}

func (b *InlineKeyboardBuilder) Build() (tgbotapi.InlineKeyboardMarkup, map[string]string) {
	b.Row()
	return tgbotapi.NewInlineKeyboardMarkup(b.rows...), b.mapping
}

func (b *InlineKeyboardBuilder) empty() bool {
	return len(b.rows) == 0 && len(b.current) == 0
}
