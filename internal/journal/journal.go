package journal

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"tickcore/internal/bus"
	"tickcore/internal/obs"
	"tickcore/internal/schema"
)

const (
	defaultQueueSize = 1024
	drainTimeout     = 3 * time.Second
	writeTimeout     = time.Second
)

// Record is one journaled lifecycle event. Ticks are never journaled.
type Record struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Seq       uint64    `gorm:"index"`
	Type      string    `gorm:"size:32;index"`
	Key       string    `gorm:"size:256"`
	Message   string    `gorm:"type:text"`
	Payload   string    `gorm:"type:text"`
	EventTime time.Time `gorm:"index"`
	CreatedAt time.Time
}

// TableName implements gorm's tabler.
func (Record) TableName() string {
	return "tickcore_journal"
}

// FromEvent maps an event to a record. Tick events are skipped.
func FromEvent(ev schema.Event) (Record, bool) {
	if ev.Type == schema.EventTick {
		return Record{}, false
	}
	rec := Record{
		Seq:       ev.Seq,
		Type:      string(ev.Type),
		Key:       ev.Key,
		Message:   ev.Message,
		EventTime: time.Unix(0, ev.TsNano).UTC(),
	}

	var payload any
	switch ev.Type {
	case schema.EventStatus:
		payload = ev.Connected
	case schema.EventFailoverSuggestion:
		payload = ev.Failover
	case schema.EventHaltTriggered:
		payload = ev.Halt
	case schema.EventUnifiedMargin:
		payload = ev.Margin
	}
	if payload != nil {
		if b, err := sonic.Marshal(payload); err == nil {
			rec.Payload = string(b)
		}
	}
	return rec, true
}

// Journal persists lifecycle events asynchronously.
type Journal struct {
	db      *gorm.DB
	queue   *bus.Queue[Record]
	metrics *obs.Metrics
	write   func(context.Context, Record) error
}

// New creates a journal writing into db.
func New(db *gorm.DB, metrics *obs.Metrics) *Journal {
	j := &Journal{
		db:      db,
		queue:   bus.NewQueue[Record](defaultQueueSize),
		metrics: metrics,
	}
	j.write = j.insert
	return j
}

// Record queues ev for persistence without blocking.
func (j *Journal) Record(ev schema.Event) {
	rec, ok := FromEvent(ev)
	if !ok {
		return
	}
	if err := j.queue.TryPublish(rec); err != nil {
		j.metrics.IncQueueDrop()
	}
}

// Run writes queued records until ctx is done, then closes the queue and
// writes what is left for up to drainTimeout.
func (j *Journal) Run(ctx context.Context) {
	j.queue.Run(ctx, func(rec Record) {
		j.persist(ctx, rec)
	})
	j.queue.Close()

	deadline := time.Now().Add(drainTimeout)
	var drained, dropped int
	for rec := range j.queue.C() {
		if time.Now().After(deadline) {
			dropped++
			continue
		}
		j.persist(ctx, rec)
		drained++
	}
	if drained != 0 || dropped != 0 {
		logs.Infof("journal shutdown, drained: %d, dropped: %d", drained, dropped)
	}
}

// persist writes rec with its own deadline so shutdown does not cancel it.
func (j *Journal) persist(ctx context.Context, rec Record) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := j.write(wctx, rec); err != nil {
		logs.Errorf("journal %s event, err: %+v", rec.Type, err)
	}
}

func (j *Journal) insert(ctx context.Context, rec Record) error {
	if err := j.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return errors.Wrapf(err, "insert seq %d", rec.Seq)
	}
	return nil
}

// Close releases the database pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql db")
	}
	return sqlDB.Close()
}
