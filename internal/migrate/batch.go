package migrate

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/BartekS5/LDM/internal/store"
)

// chunkRecords splits records into fixed-size batches.
func chunkRecords(recs []Record, size int) [][]Record {
	if len(recs) == 0 {
		return nil
	}
	if size <= 0 {
		size = 1
	}
	batches := make([][]Record, 0, (len(recs)+size-1)/size)
	for i := 0; i < len(recs); i += size {
		end := min(i+size, len(recs))
		batches = append(batches, recs[i:end])
	}
	return batches
}

// runBatches executes the model's batches in waves bounded by the
// concurrency limit. Waves run sequentially and each wave is awaited in
// full before the next starts, so cross-wave ordering is guaranteed while
// ordering within a wave is not.
func (m *Migrator) runBatches(ctx context.Context, recs []Record) (BatchResult, error) {
	total := newBatchResult()
	batches := chunkRecords(recs, m.cfg.BatchSize)

	limit := m.cfg.ConcurrencyLimit
	if limit <= 0 {
		limit = 1
	}

	for start := 0; start < len(batches); start += limit {
		end := min(start+limit, len(batches))
		wave := batches[start:end]
		results := make([]BatchResult, len(wave))

		g, gctx := errgroup.WithContext(ctx)
		for i, batch := range wave {
			i, batch := i, batch
			g.Go(func() error {
				res, err := m.runBatch(gctx, batch)
				results[i] = res
				return err
			})
		}
		err := g.Wait()
		for _, res := range results {
			total.merge(res)
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// runBatch processes one batch, with its own unique tracker and, when
// configured, its own transaction: an unknown write error anywhere in the
// batch rolls back every write attempted in it. That all-or-nothing scope
// is deliberate; smaller batch sizes shrink the blast radius. The failure
// is logged and the run continues with the next batch.
func (m *Migrator) runBatch(ctx context.Context, batch []Record) (BatchResult, error) {
	res := newBatchResult()
	tracker := newUniqueTracker()

	process := func(tx store.Store) error {
		for _, rec := range batch {
			err := m.processRecord(ctx, tx, rec, tracker, &res)
			if err == nil {
				res.Processed++
				continue
			}
			if sk, ok := IsSkip(err); ok {
				res.Skipped++
				m.log.WithField("recordID", sk.id).Info(sk.Error())
				continue
			}
			return err
		}
		return nil
	}

	var err error
	if m.cfg.UseTransactions {
		err = m.st.Transact(ctx, process)
	} else {
		err = process(m.st)
	}
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	m.log.WithError(err).Error("batch aborted")
	if m.cfg.UseTransactions {
		// Rolled back: the whole batch's progress is lost.
		lost := newBatchResult()
		lost.Skipped = len(batch)
		return lost, nil
	}
	res.Skipped = len(batch) - res.Processed
	return res, nil
}
