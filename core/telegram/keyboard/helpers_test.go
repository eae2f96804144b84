package keyboard

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineButtonsRows(t *testing.T) {
	m := InlineButtonsRows(
		[]InlineBtn{{Text: "Aprobar", Unique: "approve", Data: "7"}, {Text: "Rechazar", Unique: "reject", Data: "7"}},
		nil,
		[]InlineBtn{{Text: "Billetera", Unique: "wallet"}},
	)
	require.NotNil(t, m)
	require.Len(t, m.InlineKeyboard, 2)
	assert.Len(t, m.InlineKeyboard[0], 2)
	assert.Equal(t, "Aprobar", m.InlineKeyboard[0][0].Text)
	assert.Equal(t, "approve", m.InlineKeyboard[0][0].Unique)
	assert.Equal(t, "7", m.InlineKeyboard[0][0].Data)
	assert.Equal(t, "wallet", m.InlineKeyboard[1][0].Unique)
}

func TestInlineButtonsRowsEmpty(t *testing.T) {
	assert.Nil(t, InlineButtonsRows())
	assert.Nil(t, InlineButtonsRows(nil, []InlineBtn{}))
	assert.Nil(t, InlineButtonsRows([]InlineBtn{{Text: "x", Unique: "x", Data: strings.Repeat("9", 80)}}))
}

func TestInlineButtonsRowsLinks(t *testing.T) {
	m := InlineButtonsRows([]InlineBtn{{Text: "Ayuda", URL: "https://t.me/soporte"}})
	require.NotNil(t, m)
	assert.Equal(t, "https://t.me/soporte", m.InlineKeyboard[0][0].URL)
}
