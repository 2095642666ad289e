package reaper

import (
	"context"
	"log/slog"
	"time"

	"barberbot/app/config"
	"barberbot/app/service/buffer"

	"github.com/robfig/cron/v3"
	"github.com/samber/do"
	"github.com/samber/oops"
)

const stopTimeout = 10 * time.Second

type Sweeper interface {
	Sweep(now time.Time) int
	Now() time.Time
}

// Service periodically drops conversation buffers that went quiet.
type Service struct {
	sweeper  Sweeper
	interval time.Duration
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(do.MustInvoke[*buffer.Store](di), cfg.Debounce.ReapInterval), nil
}

func NewService(sweeper Sweeper, interval time.Duration) *Service {
	return &Service{
		sweeper:  sweeper,
		interval: interval,
	}
}

// Run sweeps on a fixed schedule until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(cron.NewParser(cron.Descriptor)))

	if _, err := c.AddFunc("@every "+s.interval.String(), func() { s.SweepOnce() }); err != nil {
		return oops.In("reaper").With("interval", s.interval).Wrapf(err, "schedule sweep")
	}

	c.Start()
	slog.Info("Buffer reaper started", "interval", s.interval)

	<-ctx.Done()

	select {
	case <-c.Stop().Done():
	case <-time.After(stopTimeout):
		slog.Warn("Buffer reaper stop timed out")
	}

	return nil
}

// SweepOnce removes stale buffers and returns how many were removed.
func (s *Service) SweepOnce() int {
	removed := s.sweeper.Sweep(s.sweeper.Now())
	if removed > 0 {
		slog.Debug("Reaped idle conversation buffers", "removed", removed)
	}
	return removed
}
