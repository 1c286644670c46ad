package telegram

import (
	telebot "gopkg.in/telebot.v3"
)

// InlineButton is a button definition used by InlineKeyboard. A button with
// URL opens a link; otherwise Unique and Data form its callback payload.
type InlineButton struct {
	Text   string
	URL    string
	Unique string
	Data   string
}

// InlineKeyboard accumulates rows before rendering telebot markup.
type InlineKeyboard struct {
	rows [][]InlineButton
}

// NewInlineKeyboard creates an empty keyboard.
func NewInlineKeyboard() *InlineKeyboard {
	return &InlineKeyboard{}
}

// AddRow appends a row. Empty rows are ignored.
func (k *InlineKeyboard) AddRow(buttons ...InlineButton) *InlineKeyboard {
	if len(buttons) == 0 {
		return k
	}

	row := make([]InlineButton, len(buttons))
	copy(row, buttons)
	k.rows = append(k.rows, row)
	return k
}

// Markup renders the keyboard. It returns nil when no rows were added.
func (k *InlineKeyboard) Markup() *telebot.ReplyMarkup {
	if len(k.rows) == 0 {
		return nil
	}

	inline := make([][]telebot.InlineButton, len(k.rows))
	for i, row := range k.rows {
		inline[i] = make([]telebot.InlineButton, len(row))
		for j, btn := range row {
			b := telebot.InlineButton{Text: btn.Text, URL: btn.URL}
			if btn.URL == "" {
				b.Unique = btn.Unique
				b.Data = btn.Data
			}
			inline[i][j] = b
		}
	}

	return &telebot.ReplyMarkup{InlineKeyboard: inline}
}
