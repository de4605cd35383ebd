package warehouse

import (
	"context"
	"fmt"
	"log"
	"time"

	"salesetl/pkg/table"
)

// LoadError wraps a storage failure during a load operation, naming the
// destination table.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load into %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Mode controls behavior when the destination table already holds data.
type Mode string

const (
	// Fail aborts when the destination table already exists.
	Fail Mode = "fail"
	// Replace clears the destination table before loading.
	Replace Mode = "replace"
	// Append adds rows to whatever is already there. Default.
	Append Mode = "append"
)

// Load statuses reported in Stats.
const (
	StatusSuccess   = "success"
	StatusSkipped   = "skipped"
	StatusNoNewData = "no_new_data"
)

// DefaultBatchSize caps the rows per insert round-trip.
const DefaultBatchSize = 1000

// Stats summarizes one load operation.
type Stats struct {
	Status     string
	RowsLoaded int64
	Batches    int64
}

// Loader writes tables into the warehouse through a Repository, batching
// writes and logging progress per flushed batch. Batches already committed
// are not rolled back when a later batch fails.
type Loader struct {
	repo      Repository
	batchSize int
}

// NewLoader wraps repo. batchSize <= 0 selects the default.
func NewLoader(repo Repository, batchSize int) *Loader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Loader{repo: repo, batchSize: batchSize}
}

// Append loads t into the named table. Empty input is a no-op reported as
// skipped. Mode decides what happens when the table preexists: Fail errors,
// Replace clears it first, Append adds rows.
func (l *Loader) Append(ctx context.Context, dest string, t *table.Table, mode Mode) (Stats, error) {
	if mode == "" {
		mode = Append
	}
	if t.NumRows() == 0 {
		log.Printf("loader: %s: empty input, skipped", dest)
		return Stats{Status: StatusSkipped}, nil
	}

	exists, err := l.repo.TableExists(ctx, dest)
	if err != nil {
		return Stats{}, &LoadError{Table: dest, Err: err}
	}
	if exists {
		switch mode {
		case Fail:
			return Stats{}, &LoadError{Table: dest, Err: fmt.Errorf("table already exists and mode is %q", Fail)}
		case Replace:
			if err := l.repo.DeleteAll(ctx, dest); err != nil {
				return Stats{}, &LoadError{Table: dest, Err: err}
			}
			log.Printf("loader: %s: cleared for replace", dest)
		}
	}

	n, batches, err := l.batched(ctx, dest, t, func(cols []string, rows [][]any) (int64, error) {
		return l.repo.InsertRows(ctx, dest, cols, rows)
	})
	if err != nil {
		return Stats{RowsLoaded: n, Batches: batches}, &LoadError{Table: dest, Err: err}
	}
	return Stats{Status: StatusSuccess, RowsLoaded: n, Batches: batches}, nil
}

// Upsert loads t, updating updateCols on key conflicts. A nil updateCols
// means every non-key column.
func (l *Loader) Upsert(ctx context.Context, dest string, t *table.Table, keyCols, updateCols []string) (Stats, error) {
	if t.NumRows() == 0 {
		log.Printf("loader: %s: empty input, skipped", dest)
		return Stats{Status: StatusSkipped}, nil
	}
	if updateCols == nil {
		keys := map[string]bool{}
		for _, k := range keyCols {
			keys[k] = true
		}
		for _, c := range t.Columns() {
			if !keys[c] {
				updateCols = append(updateCols, c)
			}
		}
	}

	n, batches, err := l.batched(ctx, dest, t, func(cols []string, rows [][]any) (int64, error) {
		return l.repo.Upsert(ctx, dest, cols, keyCols, updateCols, rows)
	})
	if err != nil {
		return Stats{RowsLoaded: n, Batches: batches}, &LoadError{Table: dest, Err: err}
	}
	return Stats{Status: StatusSuccess, RowsLoaded: n, Batches: batches}, nil
}

// IncrementalLoad appends only the rows whose watermark column is strictly
// greater than the high watermark. A nil since queries the destination's
// current maximum. When the watermark column is absent from t, the whole
// table is loaded with a warning. Zero qualifying rows reports no_new_data.
func (l *Loader) IncrementalLoad(ctx context.Context, dest string, t *table.Table, watermarkCol string, since *time.Time) (Stats, error) {
	if !t.HasColumn(watermarkCol) {
		log.Printf("loader: %s: watermark column %s absent, loading all rows", dest, watermarkCol)
		return l.Append(ctx, dest, t, Append)
	}

	watermark := time.Time{}
	if since != nil {
		watermark = *since
	} else {
		max, ok, err := l.repo.MaxTimestamp(ctx, dest, watermarkCol)
		if err != nil {
			return Stats{}, &LoadError{Table: dest, Err: err}
		}
		if ok {
			watermark = max
		}
	}

	var keep []int
	for i := 0; i < t.NumRows(); i++ {
		ts, ok := t.At(i, watermarkCol).Time()
		if !ok {
			continue
		}
		if ts.After(watermark) {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		log.Printf("loader: %s: no rows beyond watermark %s", dest, watermark.Format(time.RFC3339))
		return Stats{Status: StatusNoNewData}, nil
	}

	fresh := t.Select(keep)
	stats, err := l.Append(ctx, dest, fresh, Append)
	if err != nil {
		return stats, err
	}
	log.Printf("loader: %s: incremental load %d of %d rows", dest, fresh.NumRows(), t.NumRows())
	return stats, nil
}

// LoadDimension upserts t keyed by its primary key column, updating all
// non-key columns on conflict.
func (l *Loader) LoadDimension(ctx context.Context, dest string, t *table.Table, pk string) (Stats, error) {
	return l.Upsert(ctx, dest, t, []string{pk}, nil)
}

// LoadFact appends t. Foreign keys must already be resolved upstream; this
// layer performs no reference validation.
func (l *Loader) LoadFact(ctx context.Context, dest string, t *table.Table) (Stats, error) {
	return l.Append(ctx, dest, t, Append)
}

// batched slices t into row batches and invokes write per batch, logging a
// progress line with running totals and instantaneous rows/sec per flush. It
// returns the rows written and the batches flushed.
func (l *Loader) batched(ctx context.Context, dest string, t *table.Table, write func(cols []string, rows [][]any) (int64, error)) (int64, int64, error) {
	cols := t.Columns()
	var (
		total     int64
		batches   int64
		start     = time.Now()
		lastFlush = start
	)

	rows := make([][]any, 0, l.batchSize)
	flush := func() error {
		if len(rows) == 0 {
			return nil
		}
		n, err := write(cols, rows)
		total += n
		rows = rows[:0]
		if err != nil {
			log.Printf("loader: %s: batch failed inserted=%d total=%d err=%v", dest, n, total, err)
			return err
		}
		batches++
		now := time.Now()
		sinceLast := now.Sub(lastFlush)
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(n) / sinceLast.Seconds()
		}
		log.Printf("loader: %s batch #%d: rps=%.0f inserted=%d total=%d elapsed=%s",
			dest, batches, rps, n, total, now.Sub(start).Truncate(time.Millisecond))
		lastFlush = now
		return nil
	}

	for i := 0; i < t.NumRows(); i++ {
		if err := ctx.Err(); err != nil {
			return total, batches, err
		}
		row := make([]any, len(cols))
		for c, name := range cols {
			row[c] = t.At(i, name).Any()
		}
		rows = append(rows, row)
		if len(rows) >= l.batchSize {
			if err := flush(); err != nil {
				return total, batches, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, batches, err
	}
	return total, batches, nil
}
