package discord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dixielabs/modmail/internal/config"
)

func TestSplitCommand(t *testing.T) {
	g := &Gateway{cfg: config.DiscordConfig{CommandPrefix: "!"}}

	cases := []struct {
		content string
		command string
		args    string
	}{
		{"!close", "close", ""},
		{"!close 01:30", "close", "01:30"},
		{"!R thanks for waiting", "r", "thanks for waiting"},
		{"!warn  <@123>  spamming ", "warn", "<@123>  spamming"},
		{"no prefix here", "", ""},
		{"!", "", ""},
	}
	for _, tc := range cases {
		command, args := g.splitCommand(tc.content)
		assert.Equal(t, tc.command, command, tc.content)
		assert.Equal(t, tc.args, args, tc.content)
	}
}

func TestParseMention(t *testing.T) {
	assert.Equal(t, "123456789", parseMention("<@123456789>"))
	assert.Equal(t, "123456789", parseMention("<@!123456789>"))
	assert.Equal(t, "", parseMention("123456789"))
	assert.Equal(t, "", parseMention("<@abc>"))
}

func TestParseDelay(t *testing.T) {
	delay, err := parseDelay("01:30")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, delay)

	delay, err = parseDelay("0:05")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, delay)

	delay, err = parseDelay("24:00")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, delay)

	for _, bad := range []string{"", "90", "1:60", "-1:00", "aa:bb", "00:00"} {
		_, err := parseDelay(bad)
		assert.Error(t, err, bad)
	}
}
