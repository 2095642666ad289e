package transcribe

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"barberbot/app/client/speechkit"
	"barberbot/app/config"

	"github.com/samber/do"
	"github.com/samber/oops"
	"golang.org/x/sync/errgroup"
)

const (
	bufferSize = 4096
	maxAudio   = 20 * 1024 * 1024
)

type Session interface {
	SendConfig(format speechkit.AudioFormat) error
	Send(chunk []byte) error
	CloseSend() error
	Recv() ([]string, error)
	Close() error
}

type Recognizer interface {
	Start(ctx context.Context) (Session, error)
}

type speechKitRecognizer struct {
	client *speechkit.YandexSpeechKit
}

func (r speechKitRecognizer) Start(ctx context.Context) (Session, error) {
	handle, err := r.client.Start(ctx)
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// Service turns voice notes into text.
type Service struct {
	recognizer Recognizer
	ffmpegPath string
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		speechKitRecognizer{client: do.MustInvoke[*speechkit.YandexSpeechKit](di)},
		cfg.SpeechKit.FFmpegPath,
	), nil
}

func NewService(recognizer Recognizer, ffmpegPath string) *Service {
	return &Service{
		recognizer: recognizer,
		ffmpegPath: ffmpegPath,
	}
}

// Transcribe recognizes audio. Opus in an ogg container is streamed as is,
// anything else goes through ffmpeg first.
func (s *Service) Transcribe(ctx context.Context, audio []byte, mimetype string) (string, error) {
	if len(audio) == 0 {
		return "", oops.In("transcribe").Errorf("empty audio")
	}
	if len(audio) > maxAudio {
		return "", oops.In("transcribe").With("size", len(audio)).Errorf("audio is too large")
	}

	start := time.Now()

	var (
		text string
		err  error
	)
	if isOggOpus(mimetype) {
		text, err = s.recognize(ctx, bytes.NewReader(audio), speechkit.FormatOggOpus)
	} else {
		text, err = s.recognizeTranscoded(ctx, audio)
	}
	if err != nil {
		return "", oops.In("transcribe").With("mimetype", mimetype).Wrap(err)
	}

	slog.Debug("Transcribed audio",
		"mimetype", mimetype,
		"bytes", len(audio),
		"duration", time.Since(start),
	)

	return text, nil
}

func isOggOpus(mimetype string) bool {
	mimetype = strings.ToLower(mimetype)
	return strings.Contains(mimetype, "ogg") || strings.Contains(mimetype, "opus")
}

func (s *Service) recognizeTranscoded(ctx context.Context, audio []byte) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ffmpeg, err := NewFFmpegStream(ctx, s.ffmpegPath, bytes.NewReader(audio))
	if err != nil {
		return "", err
	}

	if err = ffmpeg.Start(); err != nil {
		return "", err
	}
	defer ffmpeg.Stop()

	text, err := s.recognize(ctx, ffmpeg.GetAudioStream(), speechkit.FormatPCM16k)
	if err != nil {
		return "", err
	}

	if err = ffmpeg.Wait(); err != nil {
		return "", oops.In("transcribe").Wrapf(err, "ffmpeg failed")
	}

	return text, nil
}

func (s *Service) recognize(ctx context.Context, audioSrc io.Reader, format speechkit.AudioFormat) (string, error) {
	session, err := s.recognizer.Start(ctx)
	if err != nil {
		return "", oops.Wrapf(err, "failed to start recognition")
	}
	defer session.Close()

	var phrases []string

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.streamAudio(ctx, audioSrc, session, format)
	})

	g.Go(func() error {
		var err error
		phrases, err = s.receivePhrases(ctx, session)
		return err
	})

	if err = g.Wait(); err != nil {
		return "", err
	}

	return strings.Join(phrases, " "), nil
}

func (s *Service) streamAudio(ctx context.Context, audioSrc io.Reader, session Session, format speechkit.AudioFormat) error {
	if err := session.SendConfig(format); err != nil {
		return oops.Wrapf(err, "failed to send audio config")
	}

	buffer := make([]byte, bufferSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := audioSrc.Read(buffer)
		if n > 0 {
			if sendErr := session.Send(buffer[:n]); sendErr != nil {
				return oops.Wrapf(sendErr, "failed to send audio")
			}
		}

		if errors.Is(err, io.EOF) {
			return session.CloseSend()
		}
		if err != nil {
			return oops.Wrapf(err, "failed to read audio")
		}
	}
}

func (s *Service) receivePhrases(ctx context.Context, session Session) ([]string, error) {
	var phrases []string

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		sentences, err := session.Recv()
		if errors.Is(err, io.EOF) {
			return phrases, nil
		}
		if err != nil {
			return nil, oops.Wrapf(err, "failed to receive phrases")
		}

		phrases = append(phrases, sentences...)
	}
}
