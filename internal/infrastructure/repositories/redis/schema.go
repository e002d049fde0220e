package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// envelopeVersion is the bus envelope encoding this build speaks.
// Each instance stamps it into the shared keyspace on startup and
// refuses to join a fleet that already publishes a newer encoding.
const (
	envelopeVersionKey = "callrelay:bus:envelope_version"
	envelopeVersion    = 1
)

// EnsureEnvelopeVersion reconciles the shared envelope version marker.
// The first instance up claims the key, later instances verify their
// own encoding against it.
func EnsureEnvelopeVersion(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	claimed, err := client.SetNX(ctx, envelopeVersionKey, envelopeVersion, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to claim envelope version: %w", err)
	}
	if claimed {
		logger.Infow("Claimed bus envelope version", "version", envelopeVersion)
		return nil
	}

	fleet, err := client.Get(ctx, envelopeVersionKey).Int()
	if err != nil {
		return fmt.Errorf("failed to read envelope version: %w", err)
	}

	switch {
	case fleet > envelopeVersion:
		return fmt.Errorf("fleet publishes envelope version %d, this build speaks %d", fleet, envelopeVersion)
	case fleet < envelopeVersion:
		// Bump the marker so instances still on the old encoding
		// surface the skew on their next restart.
		if err := client.Set(ctx, envelopeVersionKey, envelopeVersion, 0).Err(); err != nil {
			return fmt.Errorf("failed to bump envelope version: %w", err)
		}
		logger.Warnw("Bumped bus envelope version", "from", fleet, "to", envelopeVersion)
	default:
		logger.Debugw("Bus envelope version verified", "version", envelopeVersion)
	}

	return nil
}
