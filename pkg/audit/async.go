package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AsyncOptions configures the batching behavior of the AsyncWriter.
type AsyncOptions struct {
	// BufferSize is the number of records queued in memory before new
	// records are dropped. Default 1000.
	BufferSize int
	// BatchSize is the target records per storage write. Default 100.
	BatchSize int
	// BatchTimeout bounds how long a partial batch waits before flushing.
	// Default 250ms.
	BatchTimeout time.Duration
	// StorageTimeout bounds each StoreBatch call. Default 5s.
	StorageTimeout time.Duration
	// Logger receives flush failures and drop warnings.
	Logger *slog.Logger
}

// AsyncWriter batches audit records to a Store off the hot path. Record
// never blocks: if the buffer is full the record is dropped, counted, and
// logged. Delivery must not slow down because the audit store is struggling.
type AsyncWriter struct {
	store   Store
	records chan Record
	done    chan struct{}
	wg      sync.WaitGroup
	opts    AsyncOptions

	closed  atomic.Bool
	dropped atomic.Int64
}

// NewAsyncWriter creates an async writer and starts its flush goroutine.
func NewAsyncWriter(store Store, opts AsyncOptions) (*AsyncWriter, error) {
	if store == nil {
		return nil, ErrStoreNil
	}

	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = 250 * time.Millisecond
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	aw := &AsyncWriter{
		store:   store,
		records: make(chan Record, opts.BufferSize),
		done:    make(chan struct{}),
		opts:    opts,
	}

	aw.wg.Add(1)
	go aw.flushLoop()

	return aw, nil
}

// Record queues one record for asynchronous persistence. Invalid records are
// rejected; a full buffer drops the record rather than blocking the caller.
func (aw *AsyncWriter) Record(rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if aw.closed.Load() {
		return ErrWriterClosed
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	select {
	case aw.records <- rec:
		return nil
	default:
		if aw.dropped.Add(1)%100 == 1 {
			aw.opts.Logger.Warn("audit buffer full, dropping records",
				slog.Int64("dropped_total", aw.dropped.Load()))
		}
		return nil
	}
}

// Dropped returns how many records were discarded because the buffer was
// full. Exposed for metrics.
func (aw *AsyncWriter) Dropped() int64 {
	return aw.dropped.Load()
}

func (aw *AsyncWriter) flushLoop() {
	defer aw.wg.Done()

	batch := make([]Record, 0, aw.opts.BatchSize)
	ticker := time.NewTicker(aw.opts.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		// Storage gets its own context so a slow flush cannot outlive its
		// timeout, and shutdown cannot cancel an in-progress write.
		ctx, cancel := context.WithTimeout(context.Background(), aw.opts.StorageTimeout)
		defer cancel()

		if err := aw.store.StoreBatch(ctx, batch); err != nil {
			aw.opts.Logger.Error("failed to store audit batch",
				slog.Int("batch_size", len(batch)),
				slog.String("error", err.Error()))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec := <-aw.records:
			batch = append(batch, rec)
			if len(batch) >= aw.opts.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-aw.done:
			// Drain whatever is buffered before exiting.
			for {
				select {
				case rec := <-aw.records:
					batch = append(batch, rec)
					if len(batch) >= aw.opts.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

// Close stops accepting records, flushes the buffer, and waits for the flush
// goroutine up to the context deadline.
func (aw *AsyncWriter) Close(ctx context.Context) error {
	if aw.closed.Swap(true) {
		return nil
	}
	close(aw.done)

	finished := make(chan struct{})
	go func() {
		aw.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
