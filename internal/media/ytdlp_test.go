package media

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarget(t *testing.T) {
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", Target("https://www.youtube.com/watch?v=abc"))
	assert.Equal(t, "ytsearch1:never gonna give you up", Target("never gonna give you up"))
	assert.Equal(t, "ytsearch1:ftp://example.com/a.mp3", Target("ftp://example.com/a.mp3"))
	assert.Equal(t, "ytsearch1:https:", Target("https:"))
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name    string
		request string
		stdout  string
		want    Media
		reason  Reason
	}{
		{
			name:    "single entry",
			request: "song",
			stdout:  "Song Title\thttps://cdn.example.com/a.webm\n",
			want:    Media{Title: "Song Title", URL: "https://cdn.example.com/a.webm"},
		},
		{
			name:    "first usable entry wins",
			request: "https://www.youtube.com/playlist?list=PL1",
			stdout:  "Deleted video\tNA\nFirst\thttps://cdn.example.com/1\nSecond\thttps://cdn.example.com/2\n",
			want:    Media{Title: "First", URL: "https://cdn.example.com/1"},
		},
		{
			name:    "missing title falls back to url",
			request: "song",
			stdout:  "NA\thttps://cdn.example.com/a\r\n",
			want:    Media{Title: "https://cdn.example.com/a", URL: "https://cdn.example.com/a"},
		},
		{
			name:    "empty playlist",
			request: "https://www.youtube.com/playlist?list=PL2",
			stdout:  "",
			reason:  ReasonEmptyPlaylist,
		},
		{
			name:    "no match",
			request: "zzzz",
			stdout:  "\n",
			reason:  ReasonNoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOutput(tt.request, tt.stdout)
			if tt.reason != "" {
				var re *ResolutionError
				require.ErrorAs(t, err, &re)
				assert.Equal(t, tt.reason, re.Reason)
				assert.Equal(t, tt.request, re.Request)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify(t *testing.T) {
	exit := errors.New("exit status 1")
	tests := []struct {
		stderr string
		err    error
		want   Reason
		cause  string
	}{
		{stderr: "ERROR: [youtube] abc: Video unavailable", err: exit, want: ReasonNoMatch},
		{stderr: "ERROR: Unable to download webpage: HTTP Error 404: Not Found", err: exit, want: ReasonNoMatch},
		{stderr: "ERROR: Unsupported URL: https://example.com", err: exit, want: ReasonInvalid},
		{stderr: "ERROR: Unable to download webpage: <urlopen error timed out>", err: exit, want: ReasonNetwork, cause: "network failure"},
		{stderr: "ERROR: something odd\nmore detail", err: exit, want: ReasonNetwork, cause: "ERROR: something odd"},
		{stderr: "", err: context.Canceled, want: ReasonNetwork, cause: "lookup cancelled"},
	}

	for _, tt := range tests {
		t.Run(tt.stderr, func(t *testing.T) {
			err := classify("req", tt.stderr, tt.err)
			var re *ResolutionError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.want, re.Reason)
			assert.ErrorIs(t, err, tt.err)
			if tt.cause != "" {
				assert.Equal(t, tt.cause, re.Cause)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	var targets []string
	y := NewYTDLPWithRunner(0, 1, func(ctx context.Context, target string) (string, string, error) {
		targets = append(targets, target)
		return "Track A\thttps://cdn.example.com/a\n", "", nil
	})

	m, err := y.Resolve(context.Background(), "  lofi beats  ")
	require.NoError(t, err)
	assert.Equal(t, Media{Title: "Track A", URL: "https://cdn.example.com/a"}, m)
	assert.Equal(t, []string{"ytsearch1:lofi beats"}, targets)
}

func TestResolveEmptyRequest(t *testing.T) {
	y := NewYTDLPWithRunner(0, 1, func(ctx context.Context, target string) (string, string, error) {
		t.Fatal("runner called for empty request")
		return "", "", nil
	})

	_, err := y.Resolve(context.Background(), "   ")
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ReasonInvalid, re.Reason)
}

func TestResolveRunnerFailure(t *testing.T) {
	y := NewYTDLPWithRunner(0, 1, func(ctx context.Context, target string) (string, string, error) {
		return "", "ERROR: [youtube] xyz: Video unavailable\n", errors.New("exit status 1")
	})

	_, err := y.Resolve(context.Background(), "https://www.youtube.com/watch?v=xyz")
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ReasonNoMatch, re.Reason)
	assert.Contains(t, err.Error(), "watch?v=xyz")
}

func TestResolveRateLimitHonoursContext(t *testing.T) {
	calls := 0
	y := NewYTDLPWithRunner(0.001, 1, func(ctx context.Context, target string) (string, string, error) {
		calls++
		return "A\thttps://cdn.example.com/a\n", "", nil
	})

	_, err := y.Resolve(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = y.Resolve(ctx, "second")
	var re *ResolutionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ReasonNetwork, re.Reason)
	assert.Equal(t, 1, calls)
}
