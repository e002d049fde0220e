package monitoring

import (
	"context"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/pkg/batch"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"
)

// DiagnosticEvent is one entry in the advisory event stream other tooling
// can tail on the bus. Losing a batch is acceptable, blocking the relay
// is not.
type DiagnosticEvent struct {
	Event     string    `cbor:"event"`
	SessionID string    `cbor:"session_id"`
	Identity  string    `cbor:"identity"`
	RoomID    string    `cbor:"room_id"`
	Transport string    `cbor:"transport"`
	Reason    string    `cbor:"reason,omitempty"`
	At        time.Time `cbor:"at"`
}

// DiagnosticsEmitter batches session lifecycle events and publishes them
// to the bus diagnostics subject.
type DiagnosticsEmitter struct {
	bus     ports.Bus
	batcher *batch.Batcher[DiagnosticEvent]
	logger  *zap.SugaredLogger
}

func NewDiagnosticsEmitter(bus ports.Bus, batchSize int, interval time.Duration, logger *zap.SugaredLogger) *DiagnosticsEmitter {
	e := &DiagnosticsEmitter{
		bus:    bus,
		logger: logger,
	}
	e.batcher = batch.NewBatcher(batchSize, interval, batch.ProcessorFunc[DiagnosticEvent](e.publish))
	return e
}

func (e *DiagnosticsEmitter) SessionAdmitted(sess *domain.Session) {
	e.batcher.Add(DiagnosticEvent{
		Event:     "session_admitted",
		SessionID: string(sess.ID),
		Identity:  sess.Identity,
		RoomID:    string(sess.RoomID),
		Transport: string(sess.Transport),
		At:        time.Now(),
	})
}

func (e *DiagnosticsEmitter) SessionClosed(sess *domain.Session, reason string) {
	e.batcher.Add(DiagnosticEvent{
		Event:     "session_closed",
		SessionID: string(sess.ID),
		Identity:  sess.Identity,
		RoomID:    string(sess.RoomID),
		Transport: string(sess.Transport),
		Reason:    reason,
		At:        time.Now(),
	})
}

func (e *DiagnosticsEmitter) publish(ctx context.Context, events []DiagnosticEvent) error {
	raw, err := cbor.Marshal(events)
	if err != nil {
		return err
	}

	if err := e.bus.Events(ctx, raw); err != nil {
		e.logger.Debugw("diagnostics publish failed", "events", len(events), "error", err)
	}
	return nil
}

// Flush pushes any buffered events out immediately.
func (e *DiagnosticsEmitter) Flush(ctx context.Context) error {
	return e.batcher.Flush(ctx)
}

func (e *DiagnosticsEmitter) Stop() {
	e.batcher.Stop()
}

var _ ports.EventEmitter = (*DiagnosticsEmitter)(nil)
