package media

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// printTemplate makes yt-dlp emit one "title<TAB>url" line per extracted entry.
const printTemplate = "%(title)s\t%(url)s"

// RunFunc executes yt-dlp with the resolver's flags and returns its stdout and stderr.
type RunFunc func(ctx context.Context, target string) (stdout, stderr string, err error)

// YTDLP resolves requests with yt-dlp. Playlists resolve to their first entry.
type YTDLP struct {
	limiter *rate.Limiter
	run     RunFunc
}

// NewYTDLP creates a resolver that runs at most perSecond lookups per second.
func NewYTDLP(perSecond float64, burst int) *YTDLP {
	return NewYTDLPWithRunner(perSecond, burst, runYTDLP)
}

func NewYTDLPWithRunner(perSecond float64, burst int, run RunFunc) *YTDLP {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &YTDLP{
		limiter: rate.NewLimiter(limit, burst),
		run:     run,
	}
}

func runYTDLP(ctx context.Context, target string) (string, string, error) {
	res, err := ytdlp.New().
		Format("bestaudio/best").
		Print(printTemplate).
		PlaylistItems("1").
		NoWarnings().
		IgnoreConfig().
		Run(ctx, target)
	if res == nil {
		return "", "", err
	}
	return res.Stdout, res.Stderr, err
}

// Resolve returns a playable URL and title for request.
func (y *YTDLP) Resolve(ctx context.Context, request string) (Media, error) {
	request = strings.TrimSpace(request)
	if request == "" {
		return Media{}, &ResolutionError{Request: request, Reason: ReasonInvalid, Cause: "empty request"}
	}

	if err := y.limiter.Wait(ctx); err != nil {
		return Media{}, &ResolutionError{Request: request, Reason: ReasonNetwork, Cause: "lookup cancelled", Err: err}
	}

	target := Target(request)
	log.Debug().Str("request", request).Str("target", target).Msg("Running yt-dlp")

	stdout, stderr, err := y.run(ctx, target)
	if err != nil {
		return Media{}, classify(request, stderr, err)
	}

	m, err := parseOutput(request, stdout)
	if err != nil {
		return Media{}, err
	}
	log.Info().Str("request", request).Str("title", m.Title).Msg("Resolved media")
	return m, nil
}

// Target maps a request to the yt-dlp argument: URLs as-is, anything else as a search.
func Target(request string) string {
	if u, err := url.Parse(request); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return request
	}
	return "ytsearch1:" + request
}

func parseOutput(request, stdout string) (Media, error) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(strings.TrimRight(line, "\r"), "\t")
		if len(parts) < 2 {
			continue
		}
		title, link := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if link == "" || link == "NA" {
			continue
		}
		if title == "" || title == "NA" {
			title = link
		}
		return Media{Title: title, URL: link}, nil
	}

	if isPlaylist(request) {
		return Media{}, &ResolutionError{Request: request, Reason: ReasonEmptyPlaylist, Cause: "the playlist has no entries"}
	}
	return Media{}, &ResolutionError{Request: request, Reason: ReasonNoMatch, Cause: "no matching media found"}
}

func isPlaylist(request string) bool {
	u, err := url.Parse(request)
	if err != nil {
		return false
	}
	return u.Query().Has("list") || strings.Contains(u.Path, "/playlist") || strings.Contains(u.Path, "/sets/")
}

func classify(request, stderr string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ResolutionError{Request: request, Reason: ReasonNetwork, Cause: "lookup cancelled", Err: err}
	}

	msg := strings.ToLower(stderr)
	switch {
	case strings.Contains(msg, "video unavailable"),
		strings.Contains(msg, "404"),
		strings.Contains(msg, "no video formats"):
		return &ResolutionError{Request: request, Reason: ReasonNoMatch, Cause: "no matching media found", Err: err}
	case strings.Contains(msg, "unsupported url"),
		strings.Contains(msg, "is not a valid url"):
		return &ResolutionError{Request: request, Reason: ReasonInvalid, Cause: "unsupported URL", Err: err}
	case strings.Contains(msg, "unable to download"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "name resolution"),
		strings.Contains(msg, "connection"):
		return &ResolutionError{Request: request, Reason: ReasonNetwork, Cause: "network failure", Err: err}
	}
	return &ResolutionError{Request: request, Reason: ReasonNetwork, Cause: firstLine(stderr), Err: err}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "yt-dlp failed"
	}
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
