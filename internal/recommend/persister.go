package recommend

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Persister stores the candidates of a turn as a side effect. It must not
// block the turn on storage and never reports failures to the caller.
type Persister interface {
	Persist(ctx context.Context, b Batch)
}

type Inserter interface {
	Insert(ctx context.Context, rec *Record) error
}

// BatchWriter resolves track ids and inserts every candidate of a batch,
// concurrently and independently of each other.
type BatchWriter struct {
	store       Inserter
	resolver    TrackResolver
	concurrency int
	log         logrus.FieldLogger
}

func NewBatchWriter(store Inserter, resolver TrackResolver, concurrency int, log logrus.FieldLogger) *BatchWriter {
	if resolver == nil {
		resolver = NoopResolver{}
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BatchWriter{store: store, resolver: resolver, concurrency: concurrency, log: log}
}

// Write attempts every candidate before returning and logs a summary.
func (w *BatchWriter) Write(ctx context.Context, b Batch) (saved, failed int) {
	start := time.Now()
	log := w.log.WithFields(logrus.Fields{"turn_id": b.TurnID, "user_id": b.UserID})

	var nSaved, nFailed atomic.Int64
	var g errgroup.Group
	g.SetLimit(w.concurrency)

	for _, c := range b.Candidates {
		g.Go(func() error {
			trackID, err := w.resolver.ResolveTrackID(ctx, c.Track.Artist, c.Track.Name)
			if err != nil {
				log.WithError(err).WithField("track", c.Track.Name).Debug("track id not resolved")
				trackID = ""
			}
			if err := w.store.Insert(ctx, NewRecord(b.UserID, c, trackID)); err != nil {
				nFailed.Add(1)
				log.WithError(err).WithField("track", c.Track.Name).Warn("recommendation insert failed")
				return nil
			}
			nSaved.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	saved, failed = int(nSaved.Load()), int(nFailed.Load())
	log.WithFields(logrus.Fields{
		"saved":   saved,
		"failed":  failed,
		"cost_ms": time.Since(start).Milliseconds(),
	}).Info("recommendation batch persisted")
	return saved, failed
}

// AsyncPersister runs BatchWriter on a fixed worker pool fed by a buffered
// queue. A full queue drops the batch with a warning.
type AsyncPersister struct {
	writer *BatchWriter
	log    logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	jobs   chan Batch
	wg     sync.WaitGroup
}

func NewAsyncPersister(writer *BatchWriter, workers, buffer int, log logrus.FieldLogger) *AsyncPersister {
	if workers <= 0 {
		workers = 2
	}
	if buffer <= 0 {
		buffer = workers * 2
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &AsyncPersister{
		writer: writer,
		log:    log,
		jobs:   make(chan Batch, buffer),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer p.wg.Done()
			for b := range p.jobs {
				// batches outlive the request that produced them
				p.writer.Write(context.Background(), b)
			}
		}(i)
	}
	return p
}

func (p *AsyncPersister) Persist(ctx context.Context, b Batch) {
	if len(b.Candidates) == 0 {
		return
	}
	if err := ctx.Err(); err != nil {
		p.log.WithField("turn_id", b.TurnID).Debug("turn cancelled, batch not persisted")
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.WithField("turn_id", b.TurnID).Warn("persister closed, batch dropped")
		return
	}
	select {
	case p.jobs <- b:
	default:
		p.log.WithFields(logrus.Fields{
			"turn_id":    b.TurnID,
			"candidates": len(b.Candidates),
		}).Warn("persist queue full, batch dropped")
	}
}

// Close stops accepting batches and waits for queued ones to be written.
func (p *AsyncPersister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
}
