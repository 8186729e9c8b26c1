package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/veta-logistics/veta/internal/jobs"
	"github.com/veta-logistics/veta/internal/kardex"
)

// LedgerReader is the slice of the kardex repository the scan needs.
type LedgerReader interface {
	StockTotals(ctx context.Context) ([]kardex.StockTotal, error)
	ProductLedger(ctx context.Context, productID int64) ([]kardex.Movement, error)
}

// Drift describes one product whose replayed ledger disagrees with the
// aggregate, or whose running balance dipped below zero at some point.
type Drift struct {
	ProductID    int64
	Aggregate    int64
	Replayed     int64
	WentNegative bool
}

// KardexIntegrityJob replays the stock ledger product by product and compares
// the result against the SQL aggregate. It only reports; it never writes
// compensating movements.
type KardexIntegrityJob struct {
	Reader  LedgerReader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics

	// Parallelism bounds the per-product fan-out. Zero means 4.
	Parallelism int
}

// NewKardexIntegrityJob initialises the ledger scan handler.
func NewKardexIntegrityJob(reader LedgerReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *KardexIntegrityJob {
	return &KardexIntegrityJob{Reader: reader, Logger: logger, Metrics: metrics}
}

// Handle executes the scan as an Asynq task handler.
func (j *KardexIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Reader == nil {
		return errors.New("kardex integrity: handler not configured")
	}
	var payload KardexIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskKardexIntegrity)
	drifts, err := j.Scan(ctx)
	if err != nil {
		return tracker.End(err)
	}
	j.Metrics.AddDrift(len(drifts))
	return tracker.End(nil)
}

// Scan checks every product and returns the ones that drifted.
func (j *KardexIntegrityJob) Scan(ctx context.Context) ([]Drift, error) {
	start := time.Now()
	totals, err := j.Reader.StockTotals(ctx)
	if err != nil {
		return nil, err
	}

	limit := j.Parallelism
	if limit <= 0 {
		limit = 4
	}

	var (
		mu     sync.Mutex
		drifts []Drift
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, total := range totals {
		g.Go(func() error {
			drift, found, err := j.checkProduct(ctx, total)
			if err != nil {
				return err
			}
			if found {
				mu.Lock()
				drifts = append(drifts, drift)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger := j.logger()
	for _, d := range drifts {
		logger.Warn("kardex drift detected",
			slog.Int64("id_producto", d.ProductID),
			slog.Int64("stock_agregado", d.Aggregate),
			slog.Int64("stock_replay", d.Replayed),
			slog.Bool("saldo_negativo", d.WentNegative))
	}
	logger.Info("kardex integrity scan finished",
		slog.Int("productos", len(totals)),
		slog.Int("drift", len(drifts)),
		slog.Duration("duracion", time.Since(start)))
	return drifts, nil
}

func (j *KardexIntegrityJob) checkProduct(ctx context.Context, total kardex.StockTotal) (Drift, bool, error) {
	movements, err := j.Reader.ProductLedger(ctx, total.ProductID)
	if err != nil {
		return Drift{}, false, err
	}
	var (
		balance      int64
		wentNegative bool
	)
	for _, m := range movements {
		balance += m.Quantity
		if balance < 0 {
			wentNegative = true
		}
	}
	if balance == total.Stock && !wentNegative {
		return Drift{}, false, nil
	}
	return Drift{
		ProductID:    total.ProductID,
		Aggregate:    total.Stock,
		Replayed:     balance,
		WentNegative: wentNegative,
	}, true, nil
}

func (j *KardexIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
