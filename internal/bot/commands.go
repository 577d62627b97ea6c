package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/user/discord-jinglebox/internal/playback"
	"github.com/user/discord-jinglebox/internal/store"
)

const historyLimit = 10

var commandNames = map[string]playback.Command{
	"play":   playback.CmdPlay,
	"p":      playback.CmdPlay,
	"join":   playback.CmdJoin,
	"hii":    playback.CmdJoin,
	"pause":  playback.CmdPause,
	"resume": playback.CmdResume,
	"stop":   playback.CmdStop,
	"leave":  playback.CmdLeave,
}

// parseCommand splits "<prefix><name> <args>" into a lower-cased name and its
// arguments. ok is false for anything not addressed to the bot.
func parseCommand(prefix, content string) (name, args string, ok bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, prefix) {
		return "", "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(content, prefix))
	if rest == "" {
		return "", "", false
	}
	name, args, _ = strings.Cut(rest, " ")
	return strings.ToLower(name), strings.TrimSpace(args), true
}

func helpText(prefix string) string {
	var b strings.Builder
	b.WriteString("🎵 **Commands**\n")
	for _, line := range [][2]string{
		{"play <url or search>", "join your channel (with the intro) and play a song"},
		{"join", "join your channel and play the intro"},
		{"pause", "pause the current song"},
		{"resume", "resume a paused song"},
		{"stop", "stop the current song"},
		{"leave", "play the outro and leave"},
		{"history", "list what this session played"},
	} {
		b.WriteString("`" + prefix + line[0] + "` " + line[1] + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// historyText lists the most recent plays, newest first.
func historyText(entries []store.PlayEntry) string {
	if len(entries) == 0 {
		return "📭 Nothing has been played in this session yet."
	}
	var b strings.Builder
	b.WriteString("📜 **Recently played**")
	shown := 0
	for i := len(entries) - 1; i >= 0 && shown < historyLimit; i-- {
		e := entries[i]
		shown++
		fmt.Fprintf(&b, "\n%d. **%s** (%s)", shown, e.Title, e.StartedAt.Format("15:04"))
	}
	if rest := len(entries) - shown; rest > 0 {
		fmt.Fprintf(&b, "\n...and %d more", rest)
	}
	return b.String()
}

// voiceChannelOf returns the voice channel userID is connected to in guild, or "".
func voiceChannelOf(guild *discordgo.Guild, userID string) string {
	if guild == nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

// replyText renders the outcome of a command for the text channel.
func replyText(msg string, err error) string {
	if err != nil {
		return playback.UserMessage(err)
	}
	return msg
}
