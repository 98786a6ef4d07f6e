package ingestion

import (
	"container/list"
	"fmt"
	"time"

	"MarketLedger/internal/observability"
)

// StoredKeyChecker is the durable second tier of duplicate detection,
// backed by the event log's idempotency_key index. Satisfied by
// persistence.PostgresIdempotencyChecker.
type StoredKeyChecker interface {
	IsDuplicate(idempotencyKey string) (bool, error)
}

// Deduper is the two-tier duplicate filter in front of the engine. Tier 1
// is an in-memory LRU over recent keys, catching the common case of NATS
// redelivery within the ack window. Tier 2 is the durable event-log
// lookup, catching redelivery across restarts. Keys are composite
// "commandType:key" so the same driver key on different subjects never
// collides.
type Deduper struct {
	lru     *dedupLRU
	stored  StoredKeyChecker
	metrics *observability.Metrics
}

func NewDeduper(capacity int, stored StoredKeyChecker, metrics *observability.Metrics) *Deduper {
	return &Deduper{
		lru:     newDedupLRU(capacity),
		stored:  stored,
		metrics: metrics,
	}
}

// IsDuplicate reports whether the key has already been processed. A tier-2
// error is transient (the DB was unreachable); callers should NAK and let
// the message redeliver.
func (d *Deduper) IsDuplicate(commandType, key string) (bool, error) {
	composite := commandType + ":" + key

	if d.lru.Contains(composite) {
		if d.metrics != nil {
			d.metrics.IdempotencyDuplicates.WithLabelValues(commandType, "lru").Inc()
		}
		return true, nil
	}

	if d.stored != nil {
		start := time.Now()
		dup, err := d.stored.IsDuplicate(key)
		if d.metrics != nil {
			d.metrics.DedupTier2Duration.Observe(time.Since(start).Seconds())
		}
		if err != nil {
			return false, fmt.Errorf("dedup tier 2: %w", err)
		}
		if dup {
			if d.metrics != nil {
				d.metrics.IdempotencyDuplicates.WithLabelValues(commandType, "postgres").Inc()
			}
			// Promote so the next redelivery is caught in memory.
			d.markAdd(composite)
			return true, nil
		}
	}

	return false, nil
}

// MarkProcessed records a key after the engine has applied the command.
func (d *Deduper) MarkProcessed(commandType, key string) {
	d.markAdd(commandType + ":" + key)
}

// WarmFromKeys pre-populates the LRU, typically from the most recent
// idempotency keys in the event log at startup.
func (d *Deduper) WarmFromKeys(commandType string, keys []string) {
	for _, k := range keys {
		d.markAdd(commandType + ":" + k)
	}
}

func (d *Deduper) markAdd(composite string) {
	evicted := d.lru.Add(composite)
	if d.metrics != nil {
		if evicted {
			d.metrics.DedupLRUEvictions.Inc()
		}
		d.metrics.DedupLRUSize.Set(float64(d.lru.Len()))
	}
}

// dedupLRU is a minimal LRU set over strings. Not thread-safe — the
// processor is single-goroutine, matching the single-writer engine.
type dedupLRU struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newDedupLRU(capacity int) *dedupLRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &dedupLRU{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

func (l *dedupLRU) Contains(key string) bool {
	elem, ok := l.index[key]
	if ok {
		l.order.MoveToFront(elem)
	}
	return ok
}

// Add inserts the key and reports whether an older key was evicted.
func (l *dedupLRU) Add(key string) bool {
	if elem, ok := l.index[key]; ok {
		l.order.MoveToFront(elem)
		return false
	}

	l.index[key] = l.order.PushFront(key)
	if l.order.Len() <= l.capacity {
		return false
	}

	oldest := l.order.Back()
	l.order.Remove(oldest)
	delete(l.index, oldest.Value.(string))
	return true
}

func (l *dedupLRU) Len() int {
	return l.order.Len()
}
