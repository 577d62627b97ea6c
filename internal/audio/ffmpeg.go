package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/user/discord-jinglebox/internal/playback"
)

// FFmpeg decodes local clips and remote streams to PCM through an ffmpeg subprocess.
type FFmpeg struct {
	Path   string
	Volume float64
}

func (f FFmpeg) Open(ctx context.Context, src playback.Source) (io.ReadCloser, func(), error) {
	if !isRemote(src.Location) {
		if _, err := os.Stat(src.Location); err != nil {
			return nil, nil, fmt.Errorf("audio asset %q: %w", src.Location, err)
		}
	}

	path := f.Path
	if path == "" {
		path = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, path, f.Args(src.Location)...)

	reader, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe error: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, fmt.Errorf("command start error: %w", err)
	}

	cleanup := func() {
		_ = cmd.Process.Kill()
		if err := cmd.Wait(); err != nil {
			log.Debug().Err(err).Str("source", src.Name).Msg("ffmpeg exited")
		}
	}

	return reader, cleanup, nil
}

// Args builds the ffmpeg command line for location.
func (f FFmpeg) Args(location string) []string {
	var args []string
	if isRemote(location) {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	args = append(args, "-i", location, "-vn")
	if f.Volume > 0 && f.Volume != 1 {
		args = append(args, "-filter:a", "volume="+strconv.FormatFloat(f.Volume, 'f', 2, 64))
	}
	return append(args,
		"-f", "s16le",
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-loglevel", "warning",
		"pipe:1",
	)
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}
