package cmd

import (
	"context"

	"barberbot/app/api"
	"barberbot/app/client/evolution"
	"barberbot/app/client/llm"
	"barberbot/app/client/speechkit"
	"barberbot/app/config"
	"barberbot/app/service/agent"
	"barberbot/app/service/buffer"
	"barberbot/app/service/dispatch"
	"barberbot/app/service/engine"
	"barberbot/app/service/history"
	"barberbot/app/service/ingress"
	"barberbot/app/service/memory"
	"barberbot/app/service/queue"
	"barberbot/app/service/reaper"
	"barberbot/app/service/tools"
	"barberbot/app/service/transcribe"

	"github.com/samber/do"
)

func newInjector(ctx context.Context, cfg *config.Config) *do.Injector {
	di := do.New()

	do.ProvideValue(di, ctx)
	do.ProvideValue(di, cfg)

	do.Provide(di, evolution.NewClient)
	do.Provide(di, llm.New)
	do.Provide(di, memory.New)
	do.Provide(di, tools.New)
	do.Provide(di, agent.New)
	do.Provide(di, history.New)
	do.Provide(di, dispatch.New)
	do.Provide(di, queue.New)
	do.Provide(di, buffer.New)
	do.Provide(di, engine.New)
	do.Provide(di, reaper.New)
	do.Provide(di, ingress.New)
	do.Provide(di, api.New)

	if cfg.SpeechKit.Enabled {
		do.Provide(di, speechkit.NewClient)
		do.Provide(di, transcribe.New)
	}

	return di
}
