// Package scheduler runs the proactive refresh sweep: a periodic pass
// over stored tokens that refreshes everything nearing expiry before any
// inbound request has to. Each cycle also sweeps expired OAuth handshake
// states.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"oauth-bridge/internal/common/logging"
	"oauth-bridge/internal/oauth"
	"oauth-bridge/internal/providers"
	"oauth-bridge/internal/store"
)

// SweepInterval is the fixed period between refresh sweeps.
const SweepInterval = 5 * time.Minute

// Scheduler owns the background refresh timer. Cycles never overlap: a
// tick that fires while a sweep is still running is a no-op.
type Scheduler struct {
	store    store.Store
	registry *providers.Registry
	manager  *oauth.Manager
	logger   logging.Logger

	cron    *cron.Cron
	running sync.Mutex
}

// New creates a scheduler. Call Start to begin sweeping.
func New(st store.Store, registry *providers.Registry, manager *oauth.Manager, logger logging.Logger) *Scheduler {
	return &Scheduler{
		store:    st,
		registry: registry,
		manager:  manager,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start runs one sweep immediately and then every SweepInterval.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("@every 5m", func() { s.Sweep(context.Background()) }); err != nil {
		return err
	}
	go s.Sweep(context.Background())
	s.cron.Start()
	s.logger.Info("refresh scheduler started",
		logging.Field{Key: "interval", Value: SweepInterval.String()})
	return nil
}

// Stop halts the timer and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	// wait for an in-flight sweep to drain
	s.running.Lock()
	s.running.Unlock()
	s.logger.Info("refresh scheduler stopped")
}

// Sweep refreshes every token nearing expiry. Per-record failures are
// logged and skipped; they never abort the cycle. Returns false when a
// sweep was already in flight and this call did nothing.
func (s *Scheduler) Sweep(ctx context.Context) bool {
	if !s.running.TryLock() {
		s.logger.Warn("refresh sweep still in flight, skipping tick")
		return false
	}
	defer s.running.Unlock()

	records, err := s.store.GetTokensNeedingRefresh(ctx, oauth.SweepBuffer)
	if err != nil {
		s.logger.Error("refresh sweep could not query store", err)
		return true
	}

	refreshed := 0
	for i := range records {
		rec := &records[i]
		prov, ok := s.registry.Get(rec.Provider)
		if !ok {
			// keep the record; the provider may be reconfigured later
			s.logger.Warn("skipping token for unregistered provider",
				logging.Field{Key: "provider", Value: rec.Provider},
				logging.Field{Key: "account", Value: rec.Account})
			continue
		}
		if _, err := s.manager.Refresh(ctx, prov, rec); err != nil {
			s.logger.Warn("proactive refresh failed",
				logging.Field{Key: "provider", Value: rec.Provider},
				logging.Field{Key: "account", Value: rec.Account},
				logging.Err(err))
			continue
		}
		refreshed++
	}

	if err := s.store.CleanOAuthStates(ctx); err != nil {
		s.logger.Warn("oauth state cleanup failed", logging.Err(err))
	}

	if len(records) > 0 {
		s.logger.Info("refresh sweep complete",
			logging.Field{Key: "candidates", Value: len(records)},
			logging.Field{Key: "refreshed", Value: refreshed})
	}
	return true
}
