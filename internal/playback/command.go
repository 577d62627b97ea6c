package playback

// Command is a user control command routed in by the Command Gateway.
type Command string

const (
	CmdJoinAndPlay Command = "join_and_play"
	CmdPlay        Command = "play"
	CmdJoin        Command = "join"
	CmdPause       Command = "pause"
	CmdResume      Command = "resume"
	CmdStop        Command = "stop"
	CmdLeave       Command = "leave"
)

// VoiceState is the command issuer's voice presence. Empty ChannelID means none.
type VoiceState struct {
	ChannelID   string
	ChannelName string
}

// Request is one command as handed over by the Command Gateway.
type Request struct {
	GuildID       string
	TextChannelID string
	UserID        string
	Voice         VoiceState
	Command       Command
	Args          string
}

// ChannelKey identifies a voice channel, and therefore a Session.
type ChannelKey struct {
	GuildID   string
	ChannelID string
}

func (k ChannelKey) String() string { return k.GuildID + "/" + k.ChannelID }

type result struct {
	msg string
	err error
}

// command is a Request accepted into a Session's event stream.
type command struct {
	kind    Command
	arg     string
	textID  string
	replyCh chan result
	// async commands were acknowledged on arrival; their outcome goes to the Notifier
	async bool
}

func (c command) reply(msg string, err error) {
	if c.replyCh == nil {
		return
	}
	// buffered with capacity 1 and answered exactly once
	c.replyCh <- result{msg: msg, err: err}
}
