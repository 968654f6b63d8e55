package server

import (
	"context"

	"github.com/gauntletlabs/gauntlet/ledgerd/pkg/metrics"
)

// runStaleTierMonitor periodically scans for tiers holding a jackpot past the
// recovery window and surfaces them on a gauge. A stale tier means the
// off-chain decision pipeline has stalled and an operator should look before
// anyone reaches for the recovery path.
func (s *Server) runStaleTierMonitor(ctx context.Context) {
	ticker := s.clock.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			tiers, err := s.store.StaleTiers(ctx)
			if err != nil {
				s.log.Error("server: stale tier scan failed", "error", err)
				continue
			}
			metrics.StaleTiers.Set(float64(len(tiers)))
			if len(tiers) > 0 {
				s.log.Warn("server: tiers past recovery window with unsettled jackpots", "tiers", tiers)
			}
		}
	}
}
