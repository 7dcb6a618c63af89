package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"minebot/domain/entities"
	"minebot/domain/interfaces"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

type writeKind int

const (
	writeSnapshot writeKind = iota
	writeClose
	writeDiscard
	writeParticipant
)

func (k writeKind) String() string {
	switch k {
	case writeSnapshot:
		return "snapshot"
	case writeClose:
		return "close"
	case writeDiscard:
		return "discard"
	case writeParticipant:
		return "participant"
	default:
		return "unknown"
	}
}

// writeTarget identifies the row a write lands on. Writes to the same target
// supersede each other in sequence order.
type writeTarget struct {
	key         entities.IntervalKey
	participant bool
}

type intervalWrite struct {
	seq         uint64
	kind        writeKind
	key         entities.IntervalKey
	at          time.Time
	participant *entities.OperationParticipant
}

func (w *intervalWrite) target() writeTarget {
	if w.kind == writeParticipant {
		return writeTarget{
			key: entities.IntervalKey{
				OperationID:          w.participant.OperationID,
				ParticipantDiscordID: w.participant.DiscordID,
			},
			participant: true,
		}
	}
	return writeTarget{key: w.key}
}

func (w *intervalWrite) operationID() int64 {
	return w.target().key.OperationID
}

// DurabilityWriterConfig tunes retries of the durability writer
type DurabilityWriterConfig struct {
	Workers        int
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	WriteTimeout   time.Duration
}

// DefaultDurabilityWriterConfig returns the production retry settings
func DefaultDurabilityWriterConfig() DurabilityWriterConfig {
	return DurabilityWriterConfig{
		Workers:        4,
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// DurabilityWriter persists tracker state changes off the event path.
// Writes for one shard always go to the same worker, so they reach the store
// in the order the tracker produced them. A write that keeps failing after
// its retries is parked until RetryParked; a newer write to the same row
// supersedes whatever was parked or queued before it. Once an operation is
// sealed its writes are dropped instead of applied.
type DurabilityWriter struct {
	repo    interfaces.ParticipationRepository
	cfg     DurabilityWriterConfig
	metrics interfaces.TrackerMetrics

	workers []*writeWorker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	seq     uint64
	pending int
	waiters []chan struct{}
	closed  bool
	sealed  map[int64]bool
}

type writeWorker struct {
	mu     sync.Mutex
	queue  []*intervalWrite
	latest map[writeTarget]uint64
	parked map[writeTarget]*intervalWrite
	wake   chan struct{}
	stop   chan struct{}
}

// NewDurabilityWriter creates a writer and starts its workers
func NewDurabilityWriter(repo interfaces.ParticipationRepository, cfg DurabilityWriterConfig, metrics interfaces.TrackerMetrics) *DurabilityWriter {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if metrics == nil {
		metrics = interfaces.NoopTrackerMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &DurabilityWriter{
		repo:    repo,
		cfg:     cfg,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		sealed:  make(map[int64]bool),
	}

	d.workers = make([]*writeWorker, cfg.Workers)
	for i := range d.workers {
		w := &writeWorker{
			latest: make(map[writeTarget]uint64),
			parked: make(map[writeTarget]*intervalWrite),
			wake:   make(chan struct{}, 1),
			stop:   make(chan struct{}),
		}
		d.workers[i] = w
		d.wg.Add(1)
		go d.run(w)
	}
	return d
}

// enqueue hands a write to the worker owning the shard. It never blocks on I/O.
func (d *DurabilityWriter) enqueue(guildID, participantID int64, write *intervalWrite) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		log.WithFields(log.Fields{
			"operation_id":   write.key.OperationID,
			"participant_id": participantID,
			"kind":           write.kind.String(),
		}).Warn("Dropping durability write after writer shutdown")
		return
	}
	if d.sealed[write.operationID()] {
		d.mu.Unlock()
		log.WithFields(log.Fields{
			"operation_id":   write.operationID(),
			"participant_id": participantID,
			"kind":           write.kind.String(),
		}).Warn("Dropping durability write for closed operation")
		return
	}
	d.seq++
	write.seq = d.seq
	d.pending++

	w := d.workers[shardIndex(guildID, participantID, len(d.workers))]
	w.mu.Lock()
	w.queue = append(w.queue, write)
	w.latest[write.target()] = write.seq
	w.mu.Unlock()
	d.mu.Unlock()
	w.signal()
}

func (w *writeWorker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (d *DurabilityWriter) run(w *writeWorker) {
	defer d.wg.Done()
	for {
		select {
		case <-w.wake:
			d.drain(w)
		case <-w.stop:
			d.drain(w)
			return
		}
	}
}

func (d *DurabilityWriter) drain(w *writeWorker) {
	for {
		w.mu.Lock()
		if len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		write := w.queue[0]
		w.queue = w.queue[1:]
		superseded := w.latest[write.target()] > write.seq
		w.mu.Unlock()

		if superseded || d.isSealed(write.operationID()) {
			d.done()
			continue
		}

		err := d.applyWithRetry(write)
		sealed := err != nil && d.isSealed(write.operationID())

		w.mu.Lock()
		target := write.target()
		dropped := 0
		if err != nil && !sealed {
			w.parked[target] = write
		} else {
			if parked, ok := w.parked[target]; ok && parked.seq <= write.seq {
				delete(w.parked, target)
			}
			dropped = w.dropOlder(target, write.seq)
			if w.latest[target] == write.seq {
				delete(w.latest, target)
			}
		}
		w.mu.Unlock()
		for i := 0; i < dropped; i++ {
			d.done()
		}

		if err != nil && !sealed {
			d.metrics.RecordDurabilityFailure(write.kind.String())
			log.WithFields(log.Fields{
				"operation_id":   write.key.OperationID,
				"participant_id": write.key.ParticipantDiscordID,
				"channel_id":     write.key.ChannelID,
				"kind":           write.kind.String(),
				"error":          err,
			}).Warn("Durability write failed, parked until next flush")
		}
		d.done()
	}
}

// dropOlder removes queued writes to target that a successful write has
// already superseded. The caller holds w.mu.
func (w *writeWorker) dropOlder(target writeTarget, seq uint64) int {
	kept := w.queue[:0]
	dropped := 0
	for _, queued := range w.queue {
		if queued.seq < seq && queued.target() == target {
			dropped++
			continue
		}
		kept = append(kept, queued)
	}
	w.queue = kept
	return dropped
}

func (d *DurabilityWriter) applyWithRetry(write *intervalWrite) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.InitialBackoff
	if d.cfg.MaxBackoff > 0 {
		policy.MaxInterval = d.cfg.MaxBackoff
	}
	policy.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		ctx := d.ctx
		if d.cfg.WriteTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(d.ctx, d.cfg.WriteTimeout)
			defer cancel()
		}
		err := d.apply(ctx, write)
		if err != nil && errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, d.cfg.MaxRetries), d.ctx))
}

func (d *DurabilityWriter) apply(ctx context.Context, write *intervalWrite) error {
	switch write.kind {
	case writeSnapshot:
		return d.repo.OpenInterval(ctx, write.key, write.at)
	case writeClose:
		return d.repo.CloseInterval(ctx, write.key, write.at)
	case writeDiscard:
		return d.repo.DiscardInterval(ctx, write.key)
	case writeParticipant:
		return d.repo.UpsertParticipant(ctx, write.participant)
	default:
		return fmt.Errorf("unknown durability write kind %d", write.kind)
	}
}

func (d *DurabilityWriter) done() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending--
	if d.pending == 0 {
		for _, ch := range d.waiters {
			close(ch)
		}
		d.waiters = nil
	}
}

// RetryParked re-queues every parked write and returns how many were queued
func (d *DurabilityWriter) RetryParked() int {
	return d.requeueParked(func(*intervalWrite) bool { return true })
}

// RetryParkedFor re-queues the parked writes of one operation
func (d *DurabilityWriter) RetryParkedFor(operationID int64) int {
	return d.requeueParked(func(write *intervalWrite) bool { return write.operationID() == operationID })
}

func (d *DurabilityWriter) requeueParked(match func(*intervalWrite) bool) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0
	}

	total := 0
	for _, w := range d.workers {
		w.mu.Lock()
		parked := make([]*intervalWrite, 0, len(w.parked))
		for target, write := range w.parked {
			if d.sealed[write.operationID()] {
				delete(w.parked, target)
				continue
			}
			if !match(write) {
				continue
			}
			parked = append(parked, write)
			delete(w.parked, target)
		}
		if len(parked) == 0 {
			w.mu.Unlock()
			continue
		}
		sort.Slice(parked, func(i, j int) bool { return parked[i].seq < parked[j].seq })

		// Parked writes are older than anything queued for the same target,
		// so the superseded check still discards them when needed
		w.queue = append(parked, w.queue...)
		w.mu.Unlock()

		d.pending += len(parked)
		total += len(parked)
		w.signal()
	}
	return total
}

// Parked returns how many writes are waiting for a retry
func (d *DurabilityWriter) Parked() int {
	return d.countParked(func(*intervalWrite) bool { return true })
}

// ParkedFor returns how many writes of one operation are waiting for a retry
func (d *DurabilityWriter) ParkedFor(operationID int64) int {
	return d.countParked(func(write *intervalWrite) bool { return write.operationID() == operationID })
}

func (d *DurabilityWriter) countParked(match func(*intervalWrite) bool) int {
	total := 0
	for _, w := range d.workers {
		w.mu.Lock()
		for _, write := range w.parked {
			if match(write) {
				total++
			}
		}
		w.mu.Unlock()
	}
	return total
}

// SealOperation stops all further writes for a closed operation. Parked
// writes are discarded and anything enqueued later is dropped.
func (d *DurabilityWriter) SealOperation(operationID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sealed[operationID] = true

	discarded := 0
	for _, w := range d.workers {
		w.mu.Lock()
		for target, write := range w.parked {
			if write.operationID() == operationID {
				delete(w.parked, target)
				discarded++
			}
		}
		w.mu.Unlock()
	}
	return discarded
}

func (d *DurabilityWriter) isSealed(operationID int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sealed[operationID]
}

// WaitIdle blocks until every queued write has been attempted
func (d *DurabilityWriter) WaitIdle(ctx context.Context) error {
	d.mu.Lock()
	if d.pending == 0 {
		d.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	d.waiters = append(d.waiters, ch)
	d.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains queued writes and stops the workers. Writes still running
// when ctx expires are cancelled.
func (d *DurabilityWriter) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	for _, w := range d.workers {
		close(w.stop)
	}

	stopped := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		d.cancel()
	case <-ctx.Done():
		d.cancel()
		<-stopped
		return ctx.Err()
	}

	if parked := d.Parked(); parked > 0 {
		log.WithField("parked_writes", parked).Warn("Durability writer closed with unpersisted writes")
	}
	return nil
}

// shardIndex maps a (guild, participant) shard onto one of n workers
func shardIndex(guildID, participantID int64, n int) int {
	h := uint64(guildID)*1000003 ^ uint64(participantID)
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	return int(h % uint64(n))
}
