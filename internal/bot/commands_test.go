package bot

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/user/discord-jinglebox/internal/playback"
	"github.com/user/discord-jinglebox/internal/store"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		content string
		name    string
		args    string
		ok      bool
	}{
		{content: "!play never gonna give you up", name: "play", args: "never gonna give you up", ok: true},
		{content: "  !PLAY   https://youtu.be/x  ", name: "play", args: "https://youtu.be/x", ok: true},
		{content: "!hii", name: "hii", ok: true},
		{content: "!leave", name: "leave", ok: true},
		{content: "!", ok: false},
		{content: "play something", ok: false},
		{content: "?play something", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			name, args, ok := parseCommand("!", tt.content)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestCommandNames(t *testing.T) {
	assert.Equal(t, playback.CmdPlay, commandNames["play"])
	assert.Equal(t, playback.CmdJoin, commandNames["hii"])
	assert.Equal(t, playback.CmdJoin, commandNames["join"])
	assert.Equal(t, playback.CmdLeave, commandNames["leave"])
	_, ok := commandNames["help"]
	assert.False(t, ok)
}

func TestHelpTextUsesPrefix(t *testing.T) {
	text := helpText("?")
	for _, cmd := range []string{"play", "join", "pause", "resume", "stop", "leave"} {
		assert.Contains(t, text, "`?"+cmd)
	}
	assert.False(t, strings.HasSuffix(text, "\n"))
}

func TestVoiceChannelOf(t *testing.T) {
	guild := &discordgo.Guild{
		ID: "g1",
		VoiceStates: []*discordgo.VoiceState{
			{UserID: "u1", ChannelID: "v1"},
			{UserID: "u2", ChannelID: "v2"},
		},
	}

	assert.Equal(t, "v2", voiceChannelOf(guild, "u2"))
	assert.Empty(t, voiceChannelOf(guild, "u3"))
	assert.Empty(t, voiceChannelOf(nil, "u1"))
}

func TestReplyText(t *testing.T) {
	assert.Equal(t, "⏸️ Paused the audio.", replyText("⏸️ Paused the audio.", nil))
	assert.Equal(t,
		"🚫 You are not connected to a voice channel. Please join one and try again.",
		replyText("", playback.ErrNotInVoiceChannel))
	assert.Equal(t, "⚠️ An error occurred: boom", replyText("", errors.New("boom")))
}

func TestHistoryText(t *testing.T) {
	assert.Equal(t, "📭 Nothing has been played in this session yet.", historyText(nil))

	at := time.Date(2024, 5, 1, 20, 15, 0, 0, time.UTC)
	entries := []store.PlayEntry{
		{Title: "First", StartedAt: at},
		{Title: "Second", StartedAt: at.Add(3 * time.Minute)},
	}
	assert.Equal(t, "📜 **Recently played**\n1. **Second** (20:18)\n2. **First** (20:15)", historyText(entries))
}

func TestHistoryTextIsCapped(t *testing.T) {
	var entries []store.PlayEntry
	for i := 0; i < historyLimit+3; i++ {
		entries = append(entries, store.PlayEntry{Title: fmt.Sprintf("Song %d", i)})
	}

	text := historyText(entries)
	assert.Contains(t, text, fmt.Sprintf("1. **Song %d**", historyLimit+2))
	assert.NotContains(t, text, "**Song 2**")
	assert.True(t, strings.HasSuffix(text, "...and 3 more"))
}
