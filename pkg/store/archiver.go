package store

import (
	"database/sql"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/intellicloud/netsentry/pkg/models"
)

const (
	batchSize     = 50
	batchInterval = 2 * time.Second
	queueSize     = 10000
)

// Archiver batch-writes flow events to PostgreSQL in the background.
// Writes are fire-and-forget: a full queue drops events rather than
// blocking the ingest path.
type Archiver struct {
	db    *sql.DB
	log   *logrus.Logger
	queue chan models.FlowEvent
	done  chan struct{}
	wg    sync.WaitGroup

	mu      sync.Mutex
	running bool

	// Stats; eventsDropped is touched by concurrent ingest handlers.
	eventsWritten  uint64
	eventsDropped  uint64
	batchesWritten uint64
}

// NewArchiver creates an archiver on an existing connection pool.
func NewArchiver(db *sql.DB, log *logrus.Logger) *Archiver {
	return &Archiver{
		db:    db,
		log:   log,
		queue: make(chan models.FlowEvent, queueSize),
		done:  make(chan struct{}),
	}
}

// Start begins the background writer goroutine.
func (a *Archiver) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()

	a.wg.Add(1)
	go a.writerLoop()
	a.log.Info("Flow archiver started")
}

// Stop shuts the writer down, flushing queued events first.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	close(a.done)
	a.wg.Wait()
	a.log.WithFields(logrus.Fields{
		"written": a.eventsWritten,
		"dropped": atomic.LoadUint64(&a.eventsDropped),
		"batches": a.batchesWritten,
	}).Info("Flow archiver stopped")
}

// Write queues an event for batch writing. Events arriving while the
// archiver is stopped, or once the queue is full, are dropped.
func (a *Archiver) Write(ev models.FlowEvent) {
	a.mu.Lock()
	running := a.running
	a.mu.Unlock()
	if !running {
		atomic.AddUint64(&a.eventsDropped, 1)
		return
	}

	select {
	case a.queue <- ev:
	default:
		if dropped := atomic.AddUint64(&a.eventsDropped, 1); dropped%1000 == 0 {
			a.log.WithField("dropped", dropped).Warn("Archive queue full, dropping events")
		}
	}
}

func (a *Archiver) writerLoop() {
	defer a.wg.Done()

	batch := make([]models.FlowEvent, 0, batchSize)
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-a.queue:
			batch = append(batch, ev)
			if len(batch) >= batchSize {
				a.writeBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				a.writeBatch(batch)
				batch = batch[:0]
			}

		case <-a.done:
			// The queue stays open so a Write racing Stop can
			// never hit a closed channel; drain what is buffered
			// and flush.
			for {
				select {
				case ev := <-a.queue:
					batch = append(batch, ev)
					if len(batch) >= batchSize {
						a.writeBatch(batch)
						batch = batch[:0]
					}
				default:
					if len(batch) > 0 {
						a.writeBatch(batch)
					}
					return
				}
			}
		}
	}
}

func (a *Archiver) writeBatch(batch []models.FlowEvent) {
	if a.db == nil {
		return
	}
	tx, err := a.db.Begin()
	if err != nil {
		a.log.WithError(err).Error("Failed to begin archive transaction")
		return
	}
	defer tx.Rollback()

	written := 0
	for _, ev := range batch {
		if a.writeEvent(tx, ev) {
			written++
		}
	}

	if err := tx.Commit(); err != nil {
		a.log.WithError(err).Error("Failed to commit archive batch")
		return
	}

	a.eventsWritten += uint64(written)
	a.batchesWritten++
}

func (a *Archiver) writeEvent(tx *sql.Tx, ev models.FlowEvent) bool {
	payload, err := json.Marshal(ev)
	if err != nil {
		payload = []byte("{}")
	}

	_, err = tx.Exec(`
		INSERT INTO flow_events (
			event_id, observed_at, src, dst, proto,
			direction, severity, details
		) VALUES ($1, to_timestamp($2), $3, $4, $5, $6, $7, $8)
	`,
		ev.ID,
		ev.Timestamp,
		ev.Src,
		ev.Dst,
		ev.Proto,
		ev.Direction,
		ev.Severity,
		payload,
	)
	if err != nil {
		a.log.WithError(err).Error("Failed to insert flow event")
		return false
	}
	return true
}
