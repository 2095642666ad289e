package speechkit

import (
	"context"
	"encoding/json"
	"os"

	"barberbot/app/config"

	"github.com/samber/do"
	"github.com/samber/oops"
	ycsdk "github.com/yandex-cloud/go-sdk"
	"github.com/yandex-cloud/go-sdk/iamkey"
)

type YandexSpeechKit struct {
	sdk      *ycsdk.SDK
	language string
}

func NewClient(di *do.Injector) (*YandexSpeechKit, error) {
	ctx := do.MustInvoke[context.Context](di)
	cfg := do.MustInvoke[*config.Config](di)

	keyBytes, err := os.ReadFile(cfg.SpeechKit.KeyFile)
	if err != nil {
		return nil, oops.In("speechkit").Wrapf(err, "could not read service account key")
	}

	var key iamkey.Key
	if err = json.Unmarshal(keyBytes, &key); err != nil {
		return nil, oops.In("speechkit").Wrapf(err, "could not parse service account key")
	}

	creds, err := ycsdk.ServiceAccountKey(&key)
	if err != nil {
		return nil, oops.In("speechkit").Wrapf(err, "could not create service account credentials")
	}

	sdk, err := ycsdk.Build(ctx, ycsdk.Config{
		Credentials: creds,
	})
	if err != nil {
		return nil, oops.In("speechkit").Wrapf(err, "failed to create Yandex SDK")
	}

	return &YandexSpeechKit{
		sdk:      sdk,
		language: cfg.SpeechKit.Language,
	}, nil
}

// Start opens a streaming recognition session. Close the handle when done.
func (y *YandexSpeechKit) Start(ctx context.Context) (*Handle, error) {
	ctx, cancel := context.WithCancel(ctx)

	client, err := y.sdk.AI().STTV3().Recognizer().RecognizeStreaming(ctx)
	if err != nil {
		cancel()
		return nil, oops.In("speechkit").Wrapf(err, "failed to create recognizer stream")
	}

	return &Handle{
		client:   client,
		cancel:   cancel,
		language: y.language,
	}, nil
}

func (y *YandexSpeechKit) Shutdown() error {
	return y.sdk.Shutdown(context.Background())
}
