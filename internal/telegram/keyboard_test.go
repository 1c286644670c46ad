package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineKeyboardMarkup(t *testing.T) {
	markup := NewInlineKeyboard().
		AddRow(InlineButton{Text: "Open", URL: "https://app.example", Unique: "ignored"}).
		AddRow().
		AddRow(InlineButton{Text: "Status", Unique: "status", Data: "1"}, InlineButton{Text: "Help", Unique: "help"}).
		Markup()

	require.NotNil(t, markup)
	require.Len(t, markup.InlineKeyboard, 2)

	open := markup.InlineKeyboard[0][0]
	assert.Equal(t, "https://app.example", open.URL)
	assert.Empty(t, open.Unique)

	row := markup.InlineKeyboard[1]
	require.Len(t, row, 2)
	assert.Equal(t, "status", row[0].Unique)
	assert.Equal(t, "1", row[0].Data)
	assert.Equal(t, "help", row[1].Unique)
}

func TestInlineKeyboardEmpty(t *testing.T) {
	assert.Nil(t, NewInlineKeyboard().Markup())
}
