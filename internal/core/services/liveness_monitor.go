package services

import (
	"context"
	"sync"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"

	"go.uber.org/zap"
)

// LivenessMonitor periodically evicts sessions whose clients stopped
// sending heartbeats. Eviction goes through the coordinator's teardown so
// the registry removal stays the single arbiter for the departure notice.
type LivenessMonitor struct {
	registry ports.SessionRegistry
	relay    ports.RelayService
	timeout  time.Duration
	interval time.Duration
	logger   *zap.SugaredLogger

	stopOnce sync.Once
	stop     chan struct{}
}

func NewLivenessMonitor(
	registry ports.SessionRegistry,
	relay ports.RelayService,
	timeout time.Duration,
	interval time.Duration,
	logger *zap.SugaredLogger,
) *LivenessMonitor {
	return &LivenessMonitor{
		registry: registry,
		relay:    relay,
		timeout:  timeout,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start launches the sweep loop. It returns immediately; the loop runs
// until Stop is called or the context is cancelled.
func (m *LivenessMonitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()
}

// Sweep tears down every session whose last heartbeat is older than the
// client timeout. Cost is proportional to the local session count.
func (m *LivenessMonitor) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-m.timeout)
	stale := m.registry.Stale(ctx, cutoff)

	for _, sess := range stale {
		m.logger.Infow("evicting unresponsive session",
			"session_id", sess.ID,
			"room_id", sess.RoomID,
			"last_heartbeat", sess.LastHeartbeat(),
		)
		m.relay.Teardown(ctx, sess.ID, domain.DepartEvicted)
	}

	return len(stale)
}

// Stop halts the sweep loop.
func (m *LivenessMonitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
}
