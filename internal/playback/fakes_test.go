package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/user/discord-jinglebox/internal/media"
	"github.com/user/discord-jinglebox/internal/store"
)

var testClips = Clips{
	Intro: Source{Name: "Start.mp3", Location: "Start.mp3"},
	Outro: Source{Name: "End.mp3", Location: "End.mp3"},
}

// fakeConn is an Engine that only finishes playbacks when told to, and
// always delivers completions from a separate goroutine.
type fakeConn struct {
	mutex       sync.Mutex
	seq         int
	live        map[Handle]func(Handle, error)
	started     []Source
	ops         []string
	maxLive     int
	startErr    map[string]error
	pauseErr    error
	disconnects int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		live:     make(map[Handle]func(Handle, error)),
		startErr: make(map[string]error),
	}
}

func (c *fakeConn) Start(ctx context.Context, src Source, onComplete func(Handle, error)) (Handle, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.ops = append(c.ops, "start:"+src.Name)
	if err := c.startErr[src.Location]; err != nil {
		return "", err
	}
	c.seq++
	h := Handle(fmt.Sprintf("h%d", c.seq))
	c.live[h] = onComplete
	c.started = append(c.started, src)
	if len(c.live) > c.maxLive {
		c.maxLive = len(c.live)
	}
	return h, nil
}

func (c *fakeConn) Pause(h Handle) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.ops = append(c.ops, "pause")
	return c.pauseErr
}

func (c *fakeConn) Resume(h Handle) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.ops = append(c.ops, "resume")
	return nil
}

func (c *fakeConn) Stop(ctx context.Context, h Handle) error {
	c.mutex.Lock()
	c.ops = append(c.ops, "stop")
	cb, ok := c.live[h]
	delete(c.live, h)
	c.mutex.Unlock()
	if ok {
		go cb(h, nil)
	}
	return nil
}

func (c *fakeConn) Disconnect(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.disconnects++
	return nil
}

// finish completes the single live playback from a foreign goroutine.
func (c *fakeConn) finish(t *testing.T, err error) {
	t.Helper()
	c.mutex.Lock()
	require.Len(t, c.live, 1, "expected exactly one live playback")
	var h Handle
	var cb func(Handle, error)
	for h, cb = range c.live {
	}
	delete(c.live, h)
	c.mutex.Unlock()
	go cb(h, err)
}

func (c *fakeConn) startedNames() []string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	names := make([]string, 0, len(c.started))
	for _, s := range c.started {
		names = append(names, s.Name)
	}
	return names
}

func (c *fakeConn) opCount(op string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	n := 0
	for _, o := range c.ops {
		if o == op {
			n++
		}
	}
	return n
}

func (c *fakeConn) disconnectCount() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.disconnects
}

func (c *fakeConn) peakLive() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.maxLive
}

type fakeConnector struct {
	mutex sync.Mutex
	conns map[ChannelKey]*fakeConn
	calls int
	err   error
	gate  chan struct{}
}

func newFakeConnector() *fakeConnector {
	return &fakeConnector{conns: make(map[ChannelKey]*fakeConn)}
}

func (f *fakeConnector) Connect(ctx context.Context, key ChannelKey) (Conn, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	c := newFakeConn()
	f.conns[key] = c
	return c, nil
}

func (f *fakeConnector) conn(key ChannelKey) *fakeConn {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.conns[key]
}

func (f *fakeConnector) callCount() int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls
}

type resolveReply struct {
	media media.Media
	err   error
}

type resolveCall struct {
	request string
	replyCh chan resolveReply
}

func (c *resolveCall) respond(m media.Media, err error) {
	c.replyCh <- resolveReply{media: m, err: err}
}

// fakeResolver answers from its table, or hands every call to the test when manual.
type fakeResolver struct {
	manual bool
	table  map[string]media.Media
	calls  chan *resolveCall
}

func newFakeResolver(manual bool) *fakeResolver {
	return &fakeResolver{
		manual: manual,
		table: map[string]media.Media{
			"trackA": {Title: "Track A", URL: "u1"},
			"trackB": {Title: "Track B", URL: "u2"},
		},
		calls: make(chan *resolveCall, 8),
	}
}

func (r *fakeResolver) Resolve(ctx context.Context, request string) (media.Media, error) {
	if !r.manual {
		if m, ok := r.table[request]; ok {
			return m, nil
		}
		return media.Media{}, &media.ResolutionError{Request: request, Reason: media.ReasonNoMatch, Cause: "no matching media found"}
	}
	call := &resolveCall{request: request, replyCh: make(chan resolveReply, 1)}
	r.calls <- call
	select {
	case reply := <-call.replyCh:
		return reply.media, reply.err
	case <-ctx.Done():
		return media.Media{}, ctx.Err()
	}
}

func (r *fakeResolver) next(t *testing.T) *resolveCall {
	t.Helper()
	select {
	case c := <-r.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resolve call")
		return nil
	}
}

type fakeNotifier struct {
	mutex    sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(ctx context.Context, textChannelID, msg string) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.messages = append(n.messages, msg)
}

func (n *fakeNotifier) all() []string {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return append([]string(nil), n.messages...)
}

type fakePlayLog struct {
	mutex   sync.Mutex
	entries []store.PlayEntry
}

func (p *fakePlayLog) AppendPlay(sessionID string, entry store.PlayEntry) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.entries = append(p.entries, entry)
	return nil
}

func (p *fakePlayLog) titles() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	var out []string
	for _, e := range p.entries {
		out = append(out, e.Title)
	}
	return out
}

type harness struct {
	t         *testing.T
	manager   *Manager
	connector *fakeConnector
	resolver  *fakeResolver
	notifier  *fakeNotifier
	playlog   *fakePlayLog
	key       ChannelKey
}

func newHarness(t *testing.T, manualResolve bool) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		connector: newFakeConnector(),
		resolver:  newFakeResolver(manualResolve),
		notifier:  &fakeNotifier{},
		playlog:   &fakePlayLog{},
		key:       ChannelKey{GuildID: "g1", ChannelID: "v1"},
	}
	h.manager = NewManager(Options{
		Connector: h.connector,
		Resolver:  h.resolver,
		Notifier:  h.notifier,
		PlayLog:   h.playlog,
		Clips:     testClips,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.manager.Shutdown(ctx)
	})
	return h
}

func (h *harness) do(cmd Command, args string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.manager.Handle(ctx, Request{
		GuildID:       h.key.GuildID,
		TextChannelID: "text1",
		UserID:        "u1",
		Voice:         VoiceState{ChannelID: h.key.ChannelID, ChannelName: "General"},
		Command:       cmd,
		Args:          args,
	})
}

func (h *harness) session() *Session {
	h.t.Helper()
	s, ok := h.manager.Registry().Get(h.key)
	require.True(h.t, ok, "no session registered")
	return s
}

func (h *harness) conn() *fakeConn {
	return h.connector.conn(h.key)
}

func (h *harness) waitState(s *Session, want State) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return s.Snapshot().State == want
	}, 2*time.Second, 5*time.Millisecond, "state never became %s (now %s)", want, s.Snapshot().State)
}

func (h *harness) waitEnded(s *Session) {
	h.t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		h.t.Fatalf("session did not end (state %s)", s.Snapshot().State)
	}
	_, ok := h.manager.Registry().Get(h.key)
	require.False(h.t, ok, "session still registered")
}

func (h *harness) waitNotified(msg string) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		for _, m := range h.notifier.all() {
			if m == msg {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "never notified %q (got %q)", msg, h.notifier.all())
}

// playing drives a fresh channel to PLAYING_MEDIA with trackA.
func (h *harness) playing() *Session {
	h.t.Helper()
	_, err := h.do(CmdPlay, "trackA")
	require.NoError(h.t, err)
	s := h.session()
	h.waitState(s, StatePlayingIntro)
	h.conn().finish(h.t, nil)
	h.waitState(s, StatePlayingMedia)
	return s
}

var errBoom = errors.New("boom")
