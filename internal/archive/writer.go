package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// DB is the subset of pgxpool.Pool the writer needs.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Row is one observed feed message.
type Row struct {
	ReceivedAt time.Time
	PeerUUID   string
	PeerName   string
	Symbol     string
	Kind       string // "tick" or "vol"
	Value      float64
}

// Config holds batch writer settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     1000,
		FlushInterval: time.Second,
	}
}

// Metrics counts writer activity.
type Metrics struct {
	Inserts int64
	Flushes int64
	Errors  int64
	Dropped int64
}

// Writer accumulates feed rows and flushes them to the feed_messages table.
type Writer struct {
	cfg    Config
	db     DB
	logger *slog.Logger

	batchMu sync.Mutex
	batch   []Row
	metrics Metrics

	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a feed archive writer.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		logger: logger,
		batch:  make([]Row, 0, cfg.BatchSize),
	}
}

// Start begins the periodic flush loop.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains the writer.
func (w *Writer) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}
	w.wg.Wait()

	// Drain outside the writer context, which is already canceled; rows
	// recorded before Stop must still land.
	w.flush(context.Background())

	w.logger.Info("archive writer stopped")
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// Record adds a row to the current batch.
func (w *Writer) Record(row Row) {
	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]Row, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.metrics.Dropped += int64(len(batch))
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed feed messages",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (w *Writer) batchInsert(ctx context.Context, rows []Row) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO feed_messages (received_at, peer_uuid, peer_name, symbol, kind, value)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, r.ReceivedAt, r.PeerUUID, r.PeerName, r.Symbol, r.Kind, r.Value)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
