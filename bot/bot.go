package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"minebot/bot/features/operations"
	"minebot/bot/features/payroll"
	"minebot/domain/clock"
	"minebot/domain/interfaces"
	"minebot/domain/services"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Config holds bot configuration
type Config struct {
	Token           string
	OrgMemberRoleID string
	CurrencyLabel   string
}

// Services are the domain components the bot drives
type Services struct {
	Operations *services.OperationService
	Payroll    *services.PayrollService
	Tracker    *services.VoiceSessionTracker
	Clock      clock.Clock
}

// Bot manages the Discord session and the feature modules
type Bot struct {
	// Core components
	config   Config
	session  *discordgo.Session
	members  *stateVoiceMembers
	services Services

	// Feature modules
	operations *operations.Feature
	payroll    *payroll.Feature

	// Guild availability after connect
	mu            sync.Mutex
	pendingGuilds map[string]bool
	guildsReady   chan struct{}
	readyOnce     sync.Once

	// Worker cleanup functions
	stopFlushWorker func()
}

// NewSession creates the Discord session. Voice membership is read from
// the state cache, so member and voice state tracking stay enabled.
func NewSession(token string) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates | discordgo.IntentsGuildMembers
	dg.StateEnabled = true
	dg.State.TrackVoice = true
	dg.State.TrackMembers = true
	// Voice updates must reach the tracker in gateway order
	dg.SyncEvents = true
	return dg, nil
}

// NewVoiceMembers returns a membership source backed by the session's state cache
func NewVoiceMembers(session *discordgo.Session, orgRoleID string) interfaces.VoiceMembershipSource {
	return newStateVoiceMembers(session.State, orgRoleID)
}

// New wires the features onto session, opens the gateway connection and
// registers slash commands
func New(config Config, session *discordgo.Session, svc Services) (*Bot, error) {
	if svc.Clock == nil {
		svc.Clock = clock.New()
	}

	members := newStateVoiceMembers(session.State, config.OrgMemberRoleID)
	bot := &Bot{
		config:        config,
		session:       session,
		members:       members,
		services:      svc,
		pendingGuilds: make(map[string]bool),
		guildsReady:   make(chan struct{}),
	}

	bot.operations = operations.NewFeature(svc.Operations, members)
	bot.payroll = payroll.NewFeature(svc.Operations, svc.Payroll, config.CurrencyLabel)

	// Register handlers
	session.AddHandler(bot.handleReady)
	session.AddHandler(bot.handleGuildCreate)
	session.AddHandler(bot.handleVoiceStateUpdate)
	session.AddHandler(bot.handleCommands)

	// Open websocket connection
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	// Register slash commands with Discord
	if err := bot.registerCommands(); err != nil {
		session.Close()
		return nil, fmt.Errorf("error registering commands: %w", err)
	}

	return bot, nil
}

// WaitForGuilds blocks until every guild announced in READY has delivered its
// GUILD_CREATE, so the voice state cache is complete, or timeout elapses
func (b *Bot) WaitForGuilds(ctx context.Context, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-b.guildsReady:
		return true
	case <-timer.C:
		log.Warn("Timed out waiting for guild state; continuing with partial voice state")
		return false
	case <-ctx.Done():
		return false
	}
}

// StartWorkers starts the background workers owned by the bot
func (b *Bot) StartWorkers(ctx context.Context, flushInterval time.Duration) {
	b.stopFlushWorker = b.StartFlushWorker(ctx, flushInterval)
	log.Info("Background workers started")
}

// Close gracefully shuts down the bot
func (b *Bot) Close() error {
	// Stop background workers
	if b.stopFlushWorker != nil {
		b.stopFlushWorker()
	}
	log.Info("Background workers stopped")

	return b.session.Close()
}

// GetSession returns the Discord session
func (b *Bot) GetSession() *discordgo.Session {
	return b.session
}

// handleCommands routes slash commands to the feature modules. Commands run
// on their own goroutine because the session dispatches events in order.
func (b *Bot) handleCommands(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	switch i.ApplicationCommandData().Name {
	case "operation":
		go b.operations.HandleCommand(s, i)
	case "payroll":
		go b.payroll.HandleCommand(s, i)
	}
}

// handleVoiceStateUpdate forwards channel joins, leaves and moves to the tracker
func (b *Bot) handleVoiceStateUpdate(s *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	ev, ok, err := membershipChange(v, b.config.OrgMemberRoleID, b.services.Clock.Now())
	if err != nil {
		log.WithFields(log.Fields{
			"guild_id": v.GuildID,
			"user_id":  v.UserID,
			"error":    err,
		}).Warn("Ignoring malformed voice state update")
		return
	}
	if !ok {
		return
	}
	b.services.Tracker.HandleMembershipChange(ev)
}

// handleReady records which guilds will deliver a GUILD_CREATE
func (b *Bot) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	b.mu.Lock()
	for _, g := range r.Guilds {
		b.pendingGuilds[g.ID] = true
	}
	empty := len(b.pendingGuilds) == 0
	b.mu.Unlock()

	log.WithFields(log.Fields{
		"user":   r.User.Username,
		"guilds": len(r.Guilds),
	}).Info("Connected to Discord gateway")

	if empty {
		b.markGuildsReady()
	}
}

// handleGuildCreate tracks guild availability. A guild that becomes available
// after startup may own an active operation that could not be resumed yet.
func (b *Bot) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	b.mu.Lock()
	_, pending := b.pendingGuilds[g.ID]
	delete(b.pendingGuilds, g.ID)
	remaining := len(b.pendingGuilds)
	b.mu.Unlock()

	log.WithFields(log.Fields{
		"guild_id":     g.ID,
		"guild_name":   g.Name,
		"voice_states": len(g.VoiceStates),
	}).Debug("Guild available")

	if pending {
		if remaining == 0 {
			b.markGuildsReady()
		}
		return
	}

	select {
	case <-b.guildsReady:
	default:
		return
	}
	go b.resumeOperations()
}

func (b *Bot) markGuildsReady() {
	b.readyOnce.Do(func() {
		close(b.guildsReady)
	})
}

func (b *Bot) resumeOperations() {
	if _, err := b.services.Operations.Resume(context.Background()); err != nil {
		log.WithError(err).Error("Failed to resume operations after guild became available")
	}
}
