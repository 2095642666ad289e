package speechkit

import (
	"context"
	"fmt"
	"strings"

	"github.com/yandex-cloud/go-genproto/yandex/cloud/ai/stt/v3"
)

type AudioFormat int

const (
	// FormatOggOpus is the container WhatsApp voice notes are recorded in.
	FormatOggOpus AudioFormat = iota
	// FormatPCM16k is signed 16 bit little endian mono PCM at 16 kHz.
	FormatPCM16k
)

func (f AudioFormat) String() string {
	switch f {
	case FormatOggOpus:
		return "ogg_opus"
	case FormatPCM16k:
		return "pcm_16k"
	}
	return "unknown"
}

type Handle struct {
	client   stt.Recognizer_RecognizeStreamingClient
	cancel   context.CancelFunc
	language string
}

func (h *Handle) Send(content []byte) error {
	var req stt.StreamingRequest
	req.SetChunk(&stt.AudioChunk{
		Data: content,
	})

	return h.client.Send(&req)
}

func (h *Handle) SendConfig(format AudioFormat) error {
	var audioFormatOpts stt.AudioFormatOptions
	switch format {
	case FormatOggOpus:
		audioFormatOpts.SetContainerAudio(&stt.ContainerAudio{
			ContainerAudioType: stt.ContainerAudio_OGG_OPUS,
		})
	default:
		audioFormatOpts.SetRawAudio(&stt.RawAudio{
			AudioEncoding:     stt.RawAudio_LINEAR16_PCM,
			SampleRateHertz:   16000,
			AudioChannelCount: 1,
		})
	}

	var eouClassifier stt.EouClassifierOptions
	eouClassifier.SetDefaultClassifier(&stt.DefaultEouClassifier{
		Type:                       stt.DefaultEouClassifier_DEFAULT,
		MaxPauseBetweenWordsHintMs: 1000,
	})

	var req stt.StreamingRequest
	req.SetSessionOptions(&stt.StreamingOptions{
		RecognitionModel: &stt.RecognitionModelOptions{
			Model:       "general",
			AudioFormat: &audioFormatOpts,
			LanguageRestriction: &stt.LanguageRestrictionOptions{
				RestrictionType: stt.LanguageRestrictionOptions_WHITELIST,
				LanguageCode:    []string{h.language},
			},
		},
		EouClassifier: &eouClassifier,
	})

	return h.client.Send(&req)
}

// CloseSend tells the server no more audio follows.
func (h *Handle) CloseSend() error {
	return h.client.CloseSend()
}

// Recv returns the final phrases of the next response, or nil for partial
// results. io.EOF is returned once the server has finished.
func (h *Handle) Recv() ([]string, error) {
	res, err := h.client.Recv()
	if err != nil {
		return nil, fmt.Errorf("failed to receive stt: %w", err)
	}

	finalEvent := res.GetFinal()
	if finalEvent == nil {
		return nil, nil
	}

	result := make([]string, 0, len(finalEvent.Alternatives))
	for _, alt := range finalEvent.Alternatives {
		text := strings.TrimSpace(alt.Text)
		if text == "" {
			continue
		}

		result = append(result, text)
		// alternatives are ranked, the first one is enough
		break
	}

	return result, nil
}

func (h *Handle) Close() error {
	h.cancel()
	return nil
}
