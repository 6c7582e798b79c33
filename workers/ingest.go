package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jinzhu/gorm"

	"github.com/rakage/Chat-Bridge-sub000/engine"
	"github.com/rakage/Chat-Bridge-sub000/models"
)

// IngestOptions tune the queue drain loop.
type IngestOptions struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int           // total tries before an entry is dead-lettered
	RetryBase    time.Duration // backoff base, doubled per attempt
}

// IngestWorker drains due InboundEvent rows and runs them through the
// processor. Claims use an optimistic status transition so multiple workers
// (or a restarted process racing its predecessor) never double-process a row.
type IngestWorker struct {
	db        *gorm.DB
	processor *engine.Processor
	log       *slog.Logger
	opts      IngestOptions
}

func NewIngestWorker(db *gorm.DB, processor *engine.Processor, logger *slog.Logger, opts IngestOptions) *IngestWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 2 * time.Second
	}
	return &IngestWorker{db: db, processor: processor, log: logger, opts: opts}
}

// Start runs the drain loop until ctx is cancelled.
func (w *IngestWorker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(w.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.processDue(ctx)
			}
		}
	}()
}

func (w *IngestWorker) processDue(ctx context.Context) {
	now := time.Now()

	var events []models.InboundEvent
	if err := w.db.
		Where("status = ?", models.INBOUND_STATUS_PENDING).
		Where("scheduled_at IS NOT NULL AND scheduled_at <= ?", now).
		Order("scheduled_at asc, id asc").
		Limit(w.opts.BatchSize).
		Find(&events).Error; err != nil {
		w.log.Error("ingest worker: query error", "error", err)
		return
	}

	for _, ev := range events {
		// Optimistic claim: only process if we win the status transition.
		res := w.db.Model(&models.InboundEvent{}).
			Where("id = ? AND status = ?", ev.ID, models.INBOUND_STATUS_PENDING).
			Update("status", models.INBOUND_STATUS_PROCESSING)
		if res.Error != nil || res.RowsAffected == 0 {
			continue
		}

		go w.handle(ctx, ev.ID)
	}
}

func (w *IngestWorker) handle(ctx context.Context, eventID int64) {
	var ev models.InboundEvent
	if err := w.db.First(&ev, eventID).Error; err != nil {
		return
	}
	if ev.Status != models.INBOUND_STATUS_PROCESSING {
		return
	}

	var entry engine.Entry
	if err := json.Unmarshal([]byte(ev.Payload), &entry); err != nil {
		// Unparseable rows can never succeed; straight to the dead letter.
		w.bury(ev, "payload unmarshal: "+err.Error())
		return
	}

	if err := w.processor.ProcessEntry(ctx, entry); err != nil {
		w.retryOrBury(ev, err)
		return
	}

	t := time.Now()
	_ = w.db.Model(&models.InboundEvent{}).Where("id = ?", ev.ID).Updates(map[string]any{
		"status":       models.INBOUND_STATUS_DONE,
		"processed_at": &t,
		"last_error":   "",
	}).Error
}

// retryOrBury pushes the row back to pending with exponential backoff, or
// dead-letters it once the attempt budget is spent. A failed event is never
// silently dropped.
func (w *IngestWorker) retryOrBury(ev models.InboundEvent, cause error) {
	attempts := ev.Attempts + 1
	if attempts >= w.opts.MaxAttempts {
		w.bury(ev, cause.Error())
		return
	}

	backoff := w.opts.RetryBase << uint(attempts-1)
	next := time.Now().Add(backoff)
	if err := w.db.Model(&models.InboundEvent{}).Where("id = ?", ev.ID).Updates(map[string]any{
		"status":       models.INBOUND_STATUS_PENDING,
		"attempts":     attempts,
		"scheduled_at": &next,
		"last_error":   cause.Error(),
	}).Error; err != nil {
		w.log.Error("ingest worker: requeue failed", "event_id", ev.ID, "error", err)
		return
	}
	w.log.Warn("ingest worker: requeued entry",
		"event_id", ev.ID, "attempts", attempts, "next", next, "cause", cause)
}

func (w *IngestWorker) bury(ev models.InboundEvent, reason string) {
	dl := models.DeadLetter{
		InboundEventID: ev.ID,
		Platform:       ev.Platform,
		RoutingKey:     ev.RoutingKey,
		Payload:        ev.Payload,
		Reason:         reason,
		Attempts:       ev.Attempts + 1,
	}
	if err := w.db.Create(&dl).Error; err != nil {
		// Keep the row pending rather than lose it: the next drain retries
		// and tries the dead letter again.
		w.log.Error("ingest worker: dead letter write failed", "event_id", ev.ID, "error", err)
		next := time.Now().Add(w.opts.RetryBase)
		_ = w.db.Model(&models.InboundEvent{}).Where("id = ?", ev.ID).Updates(map[string]any{
			"status":       models.INBOUND_STATUS_PENDING,
			"scheduled_at": &next,
		}).Error
		return
	}

	_ = w.db.Model(&models.InboundEvent{}).Where("id = ?", ev.ID).Updates(map[string]any{
		"status":     models.INBOUND_STATUS_DEAD,
		"attempts":   ev.Attempts + 1,
		"last_error": reason,
	}).Error
	w.log.Error("ingest worker: entry dead-lettered",
		"event_id", ev.ID, "routing_key", ev.RoutingKey, "reason", reason)
}
