package projections

import (
	"context"

	"github.com/weegigs/wee-ledger-go/stores/boltdb"
	"github.com/weegigs/wee-ledger-go/we"
)

const (
	LagWarning  = 1_000
	LagCritical = 10_000
)

type Lag struct {
	Name       string              `json:"projection_name"`
	Version    uint32              `json:"projection_version"`
	Latest     we.Sequence         `json:"latest_sequence"`
	Checkpoint we.Sequence         `json:"checkpoint"`
	Distance   uint64              `json:"lag"`
	State      State               `json:"state"`
	Status     boltdb.HealthStatus `json:"status"`
}

// Lag reports how far the projection trails the log. Events read past the checkpoint and
// rejected by the strategy do not count as lag.
func (w *Worker) Lag(ctx context.Context) (Lag, error) {
	latest, err := w.store.LatestSequence(ctx)
	if err != nil {
		return Lag{}, err
	}

	checkpoint, err := w.db.Position(ctx, w.name, w.version)
	if err != nil {
		return Lag{}, err
	}

	lag := Lag{
		Name:       w.name,
		Version:    w.version,
		Latest:     latest,
		Checkpoint: checkpoint,
		State:      w.State(),
		Status:     boltdb.Healthy,
	}

	seen := max(checkpoint, we.Sequence(w.scanned.Load()))
	if latest > seen {
		lag.Distance = uint64(latest - seen)
	}

	switch {
	case lag.Distance > LagCritical:
		lag.Status = boltdb.Critical
	case lag.Distance > LagWarning:
		lag.Status = boltdb.Warning
	}

	if lag.Status != boltdb.Healthy {
		w.log.Warn().
			Str("projection", w.name).
			Uint32("version", w.version).
			Uint64("lag", lag.Distance).
			Str("status", string(lag.Status)).
			Msg("projection is lagging")
	}

	return lag, nil
}
