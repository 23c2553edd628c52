package boltdb

import (
	"context"

	"go.etcd.io/bbolt"
)

type HealthStatus string

const (
	Healthy  HealthStatus = "healthy"
	Warning  HealthStatus = "warning"
	Critical HealthStatus = "critical"
)

const (
	resizeThreshold   = 75.0
	warningThreshold  = 80.0
	criticalThreshold = 90.0
)

// StorageMetrics describes how full the storage file is relative to its configured capacity.
type StorageMetrics struct {
	Path         string         `json:"path"`
	Durability   string         `json:"durability"`
	FileSize     int64          `json:"file_size"`
	Capacity     int64          `json:"capacity"`
	UsagePercent float64        `json:"usage_percent"`
	PageSize     int            `json:"page_size"`
	FreePages    int            `json:"free_pages"`
	PendingPages int            `json:"pending_pages"`
	OpenReadTx   int            `json:"open_read_tx"`
	ReadTxTotal  int            `json:"read_tx_total"`
	Entries      map[string]int `json:"entries"`
	Status       HealthStatus   `json:"status"`
	NeedsResize  bool           `json:"needs_resize"`
}

func (m StorageMetrics) IsWarning() bool {
	return m.UsagePercent >= warningThreshold
}

func (m StorageMetrics) IsCritical() bool {
	return m.UsagePercent >= criticalThreshold
}

func (e *Environment) Metrics(ctx context.Context) (StorageMetrics, error) {
	var (
		stats    bbolt.Stats
		pageSize int
	)
	err := e.pool.Do(ctx, func() error {
		stats = e.db.Stats()
		pageSize = e.db.Info().PageSize
		return nil
	})
	if err != nil {
		return StorageMetrics{}, classify("metrics", err)
	}

	metrics := StorageMetrics{
		Path:         e.path,
		Durability:   e.durability.String(),
		Capacity:     e.capacity,
		PageSize:     pageSize,
		FreePages:    stats.FreePageN,
		PendingPages: stats.PendingPageN,
		OpenReadTx:   stats.OpenTxN,
		ReadTxTotal:  stats.TxN,
		Entries:      map[string]int{},
	}

	err = e.View(ctx, "metrics", func(tx *bbolt.Tx) error {
		metrics.FileSize = tx.Size()
		return tx.ForEach(func(name []byte, b *bbolt.Bucket) error {
			metrics.Entries[string(name)] = b.Stats().KeyN
			return nil
		})
	})
	if err != nil {
		return StorageMetrics{}, err
	}

	if metrics.Capacity > 0 {
		metrics.UsagePercent = float64(metrics.FileSize) / float64(metrics.Capacity) * 100
	}

	switch {
	case metrics.IsCritical():
		metrics.Status = Critical
	case metrics.IsWarning():
		metrics.Status = Warning
	default:
		metrics.Status = Healthy
	}
	metrics.NeedsResize = metrics.UsagePercent >= resizeThreshold

	if metrics.Status != Healthy {
		e.log.Warn().
			Str("status", string(metrics.Status)).
			Float64("usage_percent", metrics.UsagePercent).
			Int64("file_size", metrics.FileSize).
			Msg("storage usage is high")
	}

	return metrics, nil
}
