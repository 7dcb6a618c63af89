package testhelpers

import (
	"context"
	"sort"
	"sync"
	"time"

	"minebot/domain/entities"
)

// InMemoryParticipationRepository is a ParticipationRepository with the same
// idempotency rules as the SQL implementation. Failures can be injected to
// exercise retry paths.
type InMemoryParticipationRepository struct {
	mu           sync.Mutex
	nextID       int64
	intervals    map[entities.IntervalKey]*entities.ParticipationInterval
	participants map[int64]map[int64]*entities.OperationParticipant
	failures     int
	failErr      error
	calls        map[string]int
}

// NewInMemoryParticipationRepository creates an empty store
func NewInMemoryParticipationRepository() *InMemoryParticipationRepository {
	return &InMemoryParticipationRepository{
		intervals:    make(map[entities.IntervalKey]*entities.ParticipationInterval),
		participants: make(map[int64]map[int64]*entities.OperationParticipant),
		calls:        make(map[string]int),
	}
}

// FailNext makes the next n writes return err
func (r *InMemoryParticipationRepository) FailNext(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = n
	r.failErr = err
}

// Calls returns how many times a method was invoked, failures included
func (r *InMemoryParticipationRepository) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

// injected must be called with mu held
func (r *InMemoryParticipationRepository) injected(method string) error {
	r.calls[method]++
	if r.failures > 0 {
		r.failures--
		return r.failErr
	}
	return nil
}

func (r *InMemoryParticipationRepository) OpenInterval(ctx context.Context, key entities.IntervalKey, snapshotAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("OpenInterval"); err != nil {
		return err
	}

	existing, ok := r.intervals[key]
	if ok && existing.Closed {
		return nil
	}
	row := entities.NewInterval(key, snapshotAt, false)
	if ok {
		row.ID = existing.ID
	} else {
		r.nextID++
		row.ID = r.nextID
	}
	r.intervals[key] = row
	return nil
}

func (r *InMemoryParticipationRepository) CloseInterval(ctx context.Context, key entities.IntervalKey, leftAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("CloseInterval"); err != nil {
		return err
	}

	existing, ok := r.intervals[key]
	if ok && existing.Closed {
		return nil
	}
	row := entities.NewInterval(key, leftAt, true)
	if ok {
		row.ID = existing.ID
	} else {
		r.nextID++
		row.ID = r.nextID
	}
	r.intervals[key] = row
	return nil
}

func (r *InMemoryParticipationRepository) DiscardInterval(ctx context.Context, key entities.IntervalKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("DiscardInterval"); err != nil {
		return err
	}

	if existing, ok := r.intervals[key]; ok && !existing.Closed {
		delete(r.intervals, key)
	}
	return nil
}

func (r *InMemoryParticipationRepository) CloseOpenIntervals(ctx context.Context, operationID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("CloseOpenIntervals"); err != nil {
		return 0, err
	}

	var closed int64
	for _, row := range r.intervals {
		if row.OperationID == operationID && !row.Closed {
			row.Closed = true
			closed++
		}
	}
	return closed, nil
}

func (r *InMemoryParticipationRepository) UpsertParticipant(ctx context.Context, participant *entities.OperationParticipant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.injected("UpsertParticipant"); err != nil {
		return err
	}

	byOp, ok := r.participants[participant.OperationID]
	if !ok {
		byOp = make(map[int64]*entities.OperationParticipant)
		r.participants[participant.OperationID] = byOp
	}
	if existing, ok := byOp[participant.DiscordID]; ok {
		existing.Username = participant.Username
		existing.IsOrgMember = participant.IsOrgMember
		return nil
	}
	p := *participant
	byOp[participant.DiscordID] = &p
	return nil
}

func (r *InMemoryParticipationRepository) ListIntervals(ctx context.Context, operationID int64) ([]*entities.ParticipationInterval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["ListIntervals"]++
	return r.listLocked(operationID), nil
}

func (r *InMemoryParticipationRepository) Aggregate(ctx context.Context, operationID int64) ([]*entities.AggregatedParticipation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls["Aggregate"]++
	return aggregateIntervals(operationID, r.listLocked(operationID), r.participants[operationID]), nil
}

// Participant returns the stored identity of a participant, or nil
func (r *InMemoryParticipationRepository) Participant(operationID, discordID int64) *entities.OperationParticipant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.participants[operationID][discordID]; ok {
		copied := *p
		return &copied
	}
	return nil
}

func (r *InMemoryParticipationRepository) listLocked(operationID int64) []*entities.ParticipationInterval {
	rows := make([]*entities.ParticipationInterval, 0)
	for _, row := range r.intervals {
		if row.OperationID == operationID {
			copied := *row
			rows = append(rows, &copied)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].JoinedAt.Equal(rows[j].JoinedAt) {
			return rows[i].JoinedAt.Before(rows[j].JoinedAt)
		}
		if rows[i].ParticipantDiscordID != rows[j].ParticipantDiscordID {
			return rows[i].ParticipantDiscordID < rows[j].ParticipantDiscordID
		}
		return rows[i].ChannelID < rows[j].ChannelID
	})
	return rows
}

// aggregateIntervals folds intervals into per-participant totals. The primary
// channel is the one with the largest summed duration, ties going to the
// lowest channel id. Results are ordered by participant id.
func aggregateIntervals(operationID int64, intervals []*entities.ParticipationInterval, participants map[int64]*entities.OperationParticipant) []*entities.AggregatedParticipation {
	perChannel := make(map[int64]map[int64]time.Duration)
	for _, interval := range intervals {
		if interval.OperationID != operationID {
			continue
		}
		channels, ok := perChannel[interval.ParticipantDiscordID]
		if !ok {
			channels = make(map[int64]time.Duration)
			perChannel[interval.ParticipantDiscordID] = channels
		}
		channels[interval.ChannelID] += interval.Duration
	}

	result := make([]*entities.AggregatedParticipation, 0, len(perChannel))
	for discordID, channels := range perChannel {
		agg := &entities.AggregatedParticipation{
			OperationID: operationID,
			DiscordID:   discordID,
		}
		var best time.Duration
		first := true
		for channelID, d := range channels {
			agg.TotalDuration += d
			if first || d > best || (d == best && channelID < agg.PrimaryChannelID) {
				best = d
				agg.PrimaryChannelID = channelID
				first = false
			}
		}
		if p, ok := participants[discordID]; ok {
			agg.Username = p.Username
			agg.IsOrgMember = p.IsOrgMember
		}
		result = append(result, agg)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].DiscordID < result[j].DiscordID
	})
	return result
}
