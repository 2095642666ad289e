package transcribe

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/samber/oops"
)

// FFmpegStream transcodes audio read from input into 16 kHz mono s16le PCM.
type FFmpegStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
	mu     sync.Mutex
}

func NewFFmpegStream(ctx context.Context, ffmpegPath string, input io.Reader) (*FFmpegStream, error) {
	args := []string{
		"-loglevel", "warning",
		"-i", "pipe:0",
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		"-f", "s16le",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	cmd.Stdin = input
	slog.Debug("Running ffmpeg", "cmd", ffmpegPath+" "+strings.Join(args, " "))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, oops.In("transcribe").Wrapf(err, "failed to create stdout pipe")
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, oops.In("transcribe").Wrapf(err, "failed to create stderr pipe")
	}

	return &FFmpegStream{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

func (f *FFmpegStream) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.cmd.Start(); err != nil {
		return oops.In("transcribe").Wrapf(err, "failed to start ffmpeg")
	}

	go f.logStderr()

	return nil
}

func (f *FFmpegStream) GetAudioStream() io.ReadCloser {
	return f.stdout
}

// Wait must only be called after the audio stream has been read to EOF.
func (f *FFmpegStream) Wait() error {
	return f.cmd.Wait()
}

func (f *FFmpegStream) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cmd.Process != nil && f.cmd.ProcessState == nil {
		return f.cmd.Process.Kill()
	}
	return nil
}

func (f *FFmpegStream) logStderr() {
	scanner := bufio.NewScanner(f.stderr)
	for scanner.Scan() {
		slog.Debug("ffmpeg", "stderr", scanner.Text())
	}
}
