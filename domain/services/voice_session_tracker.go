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

	log "github.com/sirupsen/logrus"
)

// ErrOperationNotTracked is returned when the tracker has no live state for an operation
var ErrOperationNotTracked = errors.New("operation is not tracked")

// ErrWritesPending is returned while participation writes of an operation stay unpersisted
var ErrWritesPending = errors.New("participation writes not persisted")

// Membership event kinds reported to metrics
const (
	MembershipEventJoin    = "join"
	MembershipEventLeave   = "leave"
	MembershipEventMove    = "move"
	MembershipEventIgnored = "ignored"
)

// ParticipantIdentity describes who a voice member is at the time of an event
type ParticipantIdentity struct {
	DiscordID   int64
	Username    string
	IsOrgMember bool
}

type presence int

const (
	notPresent presence = iota
	inChannel
)

// participantShard is the state machine of one participant in one guild.
// Every mutation, including flush snapshots, happens under mu.
type participantShard struct {
	mu sync.Mutex

	guildID     int64
	operationID int64
	identity    ParticipantIdentity

	state       presence
	channelID   int64
	since       time.Time
	snapshotted bool

	accumulated     time.Duration
	identityWritten bool
	retired         bool
}

// trackedSession is the live state of the single active operation of a guild
type trackedSession struct {
	operationID int64
	guildID     int64
	channels    map[int64]string
	startedAt   time.Time

	mu        sync.Mutex
	shards    map[int64]*participantShard
	finalized bool
}

func (s *trackedSession) isTracked(channelID int64) bool {
	_, ok := s.channels[channelID]
	return ok
}

// shard returns the participant's shard, creating it on first use.
// It returns nil once the session has been finalized.
func (s *trackedSession) shard(participantID int64) *participantShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return nil
	}
	sh, ok := s.shards[participantID]
	if !ok {
		sh = &participantShard{
			guildID:     s.guildID,
			operationID: s.operationID,
			identity:    ParticipantIdentity{DiscordID: participantID},
		}
		s.shards[participantID] = sh
	}
	return sh
}

func (s *trackedSession) allShards() []*participantShard {
	s.mu.Lock()
	defer s.mu.Unlock()
	shards := make([]*participantShard, 0, len(s.shards))
	for _, sh := range s.shards {
		shards = append(shards, sh)
	}
	return shards
}

// VoiceSessionTracker accumulates voice channel presence for active operations.
//
// State is sharded per (guild, participant): events for different guilds or
// participants never wait on each other, while events for one participant
// apply in arrival order. The tracker never touches the store on the event
// path; it hands writes to the DurabilityWriter.
type VoiceSessionTracker struct {
	writer           *DurabilityWriter
	metrics          interfaces.TrackerMetrics
	minParticipation time.Duration

	mu       sync.RWMutex
	sessions map[int64]*trackedSession // by guild id
}

// NewVoiceSessionTracker creates a tracker. A non-positive minimum falls back
// to the default participation threshold.
func NewVoiceSessionTracker(writer *DurabilityWriter, minParticipation time.Duration, metrics interfaces.TrackerMetrics) *VoiceSessionTracker {
	if minParticipation <= 0 {
		minParticipation = entities.DefaultMinParticipation
	}
	if metrics == nil {
		metrics = interfaces.NoopTrackerMetrics{}
	}
	return &VoiceSessionTracker{
		writer:           writer,
		metrics:          metrics,
		minParticipation: minParticipation,
		sessions:         make(map[int64]*trackedSession),
	}
}

// MinParticipation returns the shortest stay that earns credit
func (t *VoiceSessionTracker) MinParticipation() time.Duration {
	return t.minParticipation
}

// Register starts tracking an operation's channels. Members already connected
// to a tracked channel are treated as having joined at the given time.
func (t *VoiceSessionTracker) Register(op *entities.Operation, channels []*entities.TrackedChannel, members []entities.VoiceMember, at time.Time) error {
	tracked := make(map[int64]string)
	for _, ch := range channels {
		if ch.Active {
			tracked[ch.ChannelID] = ch.Name
		}
	}
	if len(tracked) == 0 {
		return &entities.NoTrackedChannelsError{GuildID: op.GuildID}
	}

	t.mu.Lock()
	if existing, ok := t.sessions[op.GuildID]; ok {
		t.mu.Unlock()
		return &entities.AlreadyActiveError{GuildID: op.GuildID, ActiveOperationID: existing.operationID}
	}
	session := &trackedSession{
		operationID: op.ID,
		guildID:     op.GuildID,
		channels:    tracked,
		startedAt:   at,
		shards:      make(map[int64]*participantShard),
	}
	t.sessions[op.GuildID] = session
	t.mu.Unlock()

	backfilled := 0
	for _, m := range members {
		if !session.isTracked(m.ChannelID) {
			continue
		}
		who := ParticipantIdentity{DiscordID: m.DiscordID, Username: m.Username, IsOrgMember: m.IsOrgMember}
		if t.join(session, who, m.ChannelID, at) {
			backfilled++
		}
	}

	log.WithFields(log.Fields{
		"operation_id": op.ID,
		"guild_id":     op.GuildID,
		"channels":     len(tracked),
		"backfilled":   backfilled,
	}).Info("Registered operation with voice tracker")
	return nil
}

// OnJoin records a participant entering a tracked channel. Being in another
// channel closes that interval first; joining the current channel again is a no-op.
func (t *VoiceSessionTracker) OnJoin(guildID int64, who ParticipantIdentity, channelID int64, at time.Time) {
	session := t.session(guildID)
	if session == nil || !session.isTracked(channelID) {
		t.metrics.RecordMembershipEvent(MembershipEventIgnored)
		return
	}
	t.join(session, who, channelID, at)
}

// OnLeave records a participant leaving a channel. Leaving a channel the
// participant is not tracked in is a no-op.
func (t *VoiceSessionTracker) OnLeave(guildID, participantID, channelID int64, at time.Time) {
	session := t.session(guildID)
	if session == nil {
		t.metrics.RecordMembershipEvent(MembershipEventIgnored)
		return
	}
	sh := session.shard(participantID)
	if sh == nil {
		return
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.retired || sh.state != inChannel || sh.channelID != channelID {
		t.metrics.RecordMembershipEvent(MembershipEventIgnored)
		return
	}
	t.closeLocked(sh, at)
	t.metrics.RecordMembershipEvent(MembershipEventLeave)
}

// HandleMembershipChange applies a voice state transition. The tracker's own
// view of where the participant is wins over the event's previous channel,
// so a move to an untracked channel or a disconnect always closes the open
// interval.
func (t *VoiceSessionTracker) HandleMembershipChange(ev entities.ChannelMembershipChanged) {
	session := t.session(ev.GuildID)
	if session == nil {
		return
	}
	sh := session.shard(ev.ParticipantID)
	if sh == nil {
		return
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.retired {
		return
	}
	if ev.Username != "" {
		sh.identity.Username = ev.Username
		sh.identity.IsOrgMember = ev.IsOrgMember
	}

	target := int64(0)
	targetTracked := ev.NewChannelID != nil && session.isTracked(*ev.NewChannelID)
	if targetTracked {
		target = *ev.NewChannelID
	}

	switch {
	case sh.state == inChannel && targetTracked && sh.channelID == target:
		// Mute, deafen and stream toggles repeat the current channel
		return
	case sh.state == inChannel && targetTracked:
		t.closeLocked(sh, ev.At)
		t.openLocked(sh, target, ev.At)
		t.metrics.RecordMembershipEvent(MembershipEventMove)
	case sh.state == inChannel:
		t.closeLocked(sh, ev.At)
		t.metrics.RecordMembershipEvent(MembershipEventLeave)
	case targetTracked:
		t.openLocked(sh, target, ev.At)
		t.metrics.RecordMembershipEvent(MembershipEventJoin)
	default:
		t.metrics.RecordMembershipEvent(MembershipEventIgnored)
	}

	log.WithFields(log.Fields{
		"guild_id":       ev.GuildID,
		"participant_id": ev.ParticipantID,
		"operation_id":   sh.operationID,
		"in_channel":     sh.state == inChannel,
	}).Debug("Applied voice membership change")
}

// Flush writes a durability snapshot of every open interval ending at now and
// re-queues writes that failed earlier. Intervals shorter than the
// participation threshold are not snapshotted. Live state is left untouched.
func (t *VoiceSessionTracker) Flush(now time.Time) int {
	start := time.Now()
	requeued := t.writer.RetryParked()

	t.mu.RLock()
	sessions := make([]*trackedSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.RUnlock()

	open := 0
	for _, session := range sessions {
		for _, sh := range session.allShards() {
			sh.mu.Lock()
			if !sh.retired && sh.state == inChannel && now.Sub(sh.since) >= t.minParticipation {
				t.writer.enqueue(sh.guildID, sh.identity.DiscordID, &intervalWrite{
					kind: writeSnapshot,
					key:  sh.intervalKey(),
					at:   now,
				})
				sh.snapshotted = true
				open++
			}
			sh.mu.Unlock()
		}
	}

	t.metrics.RecordFlush(open, time.Since(start))
	if open > 0 || requeued > 0 {
		log.WithFields(log.Fields{
			"open_intervals": open,
			"requeued":       requeued,
		}).Debug("Flushed participation snapshots")
	}
	return open
}

// FinalizeOperation closes every open interval of the operation at now, stops
// tracking it and waits until the resulting writes have been attempted.
func (t *VoiceSessionTracker) FinalizeOperation(ctx context.Context, operationID int64, now time.Time) ([]entities.LiveParticipation, error) {
	t.mu.Lock()
	var session *trackedSession
	for guildID, s := range t.sessions {
		if s.operationID == operationID {
			session = s
			delete(t.sessions, guildID)
			break
		}
	}
	t.mu.Unlock()

	if session == nil {
		return nil, ErrOperationNotTracked
	}

	session.mu.Lock()
	session.finalized = true
	session.mu.Unlock()

	summary := make([]entities.LiveParticipation, 0)
	for _, sh := range session.allShards() {
		sh.mu.Lock()
		if sh.state == inChannel {
			t.closeLocked(sh, now)
		}
		sh.retired = true
		if sh.accumulated > 0 {
			summary = append(summary, entities.LiveParticipation{
				DiscordID:   sh.identity.DiscordID,
				Username:    sh.identity.Username,
				Accumulated: sh.accumulated,
			})
		}
		sh.mu.Unlock()
	}
	sortLive(summary)

	if err := t.writer.WaitIdle(ctx); err != nil {
		return summary, fmt.Errorf("failed waiting for participation writes: %w", err)
	}

	log.WithFields(log.Fields{
		"operation_id": operationID,
		"guild_id":     session.guildID,
		"participants": len(summary),
	}).Info("Finalized operation in voice tracker")
	return summary, nil
}

// SettleOperation retries the operation's parked writes and waits for them.
// It fails with ErrWritesPending while any of them is still parked.
func (t *VoiceSessionTracker) SettleOperation(ctx context.Context, operationID int64) error {
	if t.writer.RetryParkedFor(operationID) > 0 {
		if err := t.writer.WaitIdle(ctx); err != nil {
			return fmt.Errorf("failed waiting for participation writes: %w", err)
		}
	}
	if parked := t.writer.ParkedFor(operationID); parked > 0 {
		return fmt.Errorf("%w: %d writes for operation %d", ErrWritesPending, parked, operationID)
	}
	return nil
}

// ReleaseOperation drops every write still addressed to a closed operation
func (t *VoiceSessionTracker) ReleaseOperation(operationID int64) {
	if discarded := t.writer.SealOperation(operationID); discarded > 0 {
		log.WithFields(log.Fields{
			"operation_id": operationID,
			"discarded":    discarded,
		}).Warn("Discarded parked writes of closed operation")
	}
}

// Snapshot returns the live accumulated time of every participant seen by
// this process, including the open part of current intervals at now
func (t *VoiceSessionTracker) Snapshot(operationID int64, now time.Time) ([]entities.LiveParticipation, error) {
	session := t.sessionForOperation(operationID)
	if session == nil {
		return nil, ErrOperationNotTracked
	}

	result := make([]entities.LiveParticipation, 0)
	for _, sh := range session.allShards() {
		sh.mu.Lock()
		live := entities.LiveParticipation{
			DiscordID:   sh.identity.DiscordID,
			Username:    sh.identity.Username,
			Accumulated: sh.accumulated,
		}
		if sh.state == inChannel {
			channelID := sh.channelID
			since := sh.since
			live.CurrentChannelID = &channelID
			live.CurrentSince = &since
		}
		sh.mu.Unlock()

		if live.Accumulated > 0 || live.CurrentChannelID != nil {
			result = append(result, live)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		ti, tj := result[i].Total(now), result[j].Total(now)
		if ti != tj {
			return ti > tj
		}
		return result[i].DiscordID < result[j].DiscordID
	})
	return result, nil
}

// ActiveOperation returns the operation currently tracked for a guild
func (t *VoiceSessionTracker) ActiveOperation(guildID int64) (int64, bool) {
	session := t.session(guildID)
	if session == nil {
		return 0, false
	}
	return session.operationID, true
}

// TrackedOperations returns the ids of every operation being tracked
func (t *VoiceSessionTracker) TrackedOperations() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]int64, 0, len(t.sessions))
	for _, s := range t.sessions {
		ids = append(ids, s.operationID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (t *VoiceSessionTracker) session(guildID int64) *trackedSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sessions[guildID]
}

func (t *VoiceSessionTracker) sessionForOperation(operationID int64) *trackedSession {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, s := range t.sessions {
		if s.operationID == operationID {
			return s
		}
	}
	return nil
}

func (t *VoiceSessionTracker) join(session *trackedSession, who ParticipantIdentity, channelID int64, at time.Time) bool {
	sh := session.shard(who.DiscordID)
	if sh == nil {
		return false
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.retired {
		return false
	}
	if who.Username != "" {
		sh.identity = who
	}
	if sh.state == inChannel {
		if sh.channelID == channelID {
			t.metrics.RecordMembershipEvent(MembershipEventIgnored)
			return false
		}
		t.closeLocked(sh, at)
		t.openLocked(sh, channelID, at)
		t.metrics.RecordMembershipEvent(MembershipEventMove)
		return true
	}
	t.openLocked(sh, channelID, at)
	t.metrics.RecordMembershipEvent(MembershipEventJoin)
	return true
}

// openLocked starts a new in-memory interval. The caller holds sh.mu.
func (t *VoiceSessionTracker) openLocked(sh *participantShard, channelID int64, at time.Time) {
	sh.state = inChannel
	sh.channelID = channelID
	sh.since = at
	sh.snapshotted = false

	if !sh.identityWritten {
		sh.identityWritten = true
		t.writer.enqueue(sh.guildID, sh.identity.DiscordID, &intervalWrite{
			kind: writeParticipant,
			participant: &entities.OperationParticipant{
				OperationID: sh.operationID,
				DiscordID:   sh.identity.DiscordID,
				Username:    sh.identity.Username,
				IsOrgMember: sh.identity.IsOrgMember,
				FirstSeenAt: at,
			},
		})
	}
}

// closeLocked ends the current interval at `at`, persisting it when it meets
// the threshold and discarding it otherwise. The caller holds sh.mu.
func (t *VoiceSessionTracker) closeLocked(sh *participantShard, at time.Time) {
	key := sh.intervalKey()
	duration := at.Sub(sh.since)
	if duration < 0 {
		duration = 0
	}

	if duration < t.minParticipation {
		if sh.snapshotted {
			t.writer.enqueue(sh.guildID, sh.identity.DiscordID, &intervalWrite{kind: writeDiscard, key: key})
		}
	} else {
		t.writer.enqueue(sh.guildID, sh.identity.DiscordID, &intervalWrite{kind: writeClose, key: key, at: at})
		sh.accumulated += duration
	}

	sh.state = notPresent
	sh.channelID = 0
	sh.since = time.Time{}
	sh.snapshotted = false
}

func (sh *participantShard) intervalKey() entities.IntervalKey {
	return entities.IntervalKey{
		OperationID:          sh.operationID,
		ParticipantDiscordID: sh.identity.DiscordID,
		ChannelID:            sh.channelID,
		JoinedAt:             sh.since,
	}
}

func sortLive(rows []entities.LiveParticipation) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Accumulated != rows[j].Accumulated {
			return rows[i].Accumulated > rows[j].Accumulated
		}
		return rows[i].DiscordID < rows[j].DiscordID
	})
}
