package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veta-logistics/veta/internal/kardex"
)

type fakeLedger struct {
	totals  []kardex.StockTotal
	ledgers map[int64][]kardex.Movement
}

func (f *fakeLedger) StockTotals(ctx context.Context) ([]kardex.StockTotal, error) {
	return f.totals, nil
}

func (f *fakeLedger) ProductLedger(ctx context.Context, productID int64) ([]kardex.Movement, error) {
	return f.ledgers[productID], nil
}

func TestKardexIntegrityScanCleanLedger(t *testing.T) {
	reader := &fakeLedger{
		totals: []kardex.StockTotal{{ProductID: 1, Stock: 25}},
		ledgers: map[int64][]kardex.Movement{
			1: {
				{ProductID: 1, Kind: kardex.MovementEntrada, Quantity: 40},
				{ProductID: 1, Kind: kardex.MovementSalida, Quantity: -15},
			},
		},
	}
	job := NewKardexIntegrityJob(reader, nil, nil)

	drifts, err := job.Scan(context.Background())
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func TestKardexIntegrityScanReportsAggregateMismatch(t *testing.T) {
	reader := &fakeLedger{
		totals: []kardex.StockTotal{{ProductID: 7, Stock: 30}},
		ledgers: map[int64][]kardex.Movement{
			7: {
				{ProductID: 7, Kind: kardex.MovementEntrada, Quantity: 20},
			},
		},
	}
	job := NewKardexIntegrityJob(reader, nil, nil)

	drifts, err := job.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, int64(7), drifts[0].ProductID)
	require.Equal(t, int64(30), drifts[0].Aggregate)
	require.Equal(t, int64(20), drifts[0].Replayed)
	require.False(t, drifts[0].WentNegative)
}

func TestKardexIntegrityScanReportsNegativeDip(t *testing.T) {
	reader := &fakeLedger{
		totals: []kardex.StockTotal{{ProductID: 3, Stock: 10}},
		ledgers: map[int64][]kardex.Movement{
			3: {
				{ProductID: 3, Kind: kardex.MovementSalida, Quantity: -30},
				{ProductID: 3, Kind: kardex.MovementEntrada, Quantity: 40},
			},
		},
	}
	job := NewKardexIntegrityJob(reader, nil, nil)

	drifts, err := job.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.True(t, drifts[0].WentNegative)
	require.Equal(t, int64(10), drifts[0].Replayed)
}

func TestKardexIntegrityScanManyProducts(t *testing.T) {
	reader := &fakeLedger{ledgers: map[int64][]kardex.Movement{}}
	for id := int64(1); id <= 50; id++ {
		reader.totals = append(reader.totals, kardex.StockTotal{ProductID: id, Stock: 5})
		reader.ledgers[id] = []kardex.Movement{{ProductID: id, Kind: kardex.MovementEntrada, Quantity: 5}}
	}
	// One bad apple in the middle.
	reader.totals[24].Stock = 99

	job := NewKardexIntegrityJob(reader, nil, nil)
	job.Parallelism = 8

	drifts, err := job.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	require.Equal(t, int64(25), drifts[0].ProductID)
}
