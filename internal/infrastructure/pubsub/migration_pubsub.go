package pubsub

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"crm-schema-migrator/internal/domain"
	"crm-schema-migrator/internal/ports"

	"github.com/rs/zerolog"
)

// MigrationEventChannel represents a subscription channel
type MigrationEventChannel struct {
	ID     string
	Filter *MigrationEventFilter
	Events chan domain.PropertyOutcome
	Done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// MigrationEventFilter filters migration outcomes
type MigrationEventFilter struct {
	UserID      string   // Filter by acting user
	RunID       string   // Filter by migration run
	ObjectTypes []string // Filter by normalized object type
}

// MigrationPubSub fans migration outcomes out to live subscribers (server-sent events)
type MigrationPubSub struct {
	mu       sync.RWMutex
	channels map[string]*MigrationEventChannel
	logger   zerolog.Logger
	nextID   int64
	idMu     sync.Mutex
}

var _ ports.MigrationEventPublisher = (*MigrationPubSub)(nil)

// NewMigrationPubSub creates a new migration pub/sub system
func NewMigrationPubSub(logger zerolog.Logger) *MigrationPubSub {
	return &MigrationPubSub{
		channels: make(map[string]*MigrationEventChannel),
		logger:   logger,
	}
}

// Subscribe creates a new subscription channel, removed when ctx is done
func (ps *MigrationPubSub) Subscribe(ctx context.Context, filter *MigrationEventFilter) *MigrationEventChannel {
	ps.idMu.Lock()
	id := ps.generateID()
	ps.idMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)

	channel := &MigrationEventChannel{
		ID:     id,
		Filter: filter,
		Events: make(chan domain.PropertyOutcome, 64), // Buffered channel
		Done:   make(chan struct{}),
		ctx:    subCtx,
		cancel: cancel,
	}

	ps.mu.Lock()
	ps.channels[id] = channel
	ps.mu.Unlock()

	ps.logger.Debug().
		Str("channelId", id).
		Interface("filter", filter).
		Msg("Migration subscription created")

	// Cleanup when context is cancelled
	go func() {
		<-subCtx.Done()
		ps.Unsubscribe(id)
	}()

	return channel
}

// Unsubscribe removes a subscription channel
func (ps *MigrationPubSub) Unsubscribe(channelID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	channel, exists := ps.channels[channelID]
	if !exists {
		return
	}

	close(channel.Events)
	close(channel.Done)
	channel.cancel()
	delete(ps.channels, channelID)

	ps.logger.Debug().
		Str("channelId", channelID).
		Msg("Migration subscription removed")
}

// Publish broadcasts an outcome to all matching subscribers without blocking
func (ps *MigrationPubSub) Publish(_ context.Context, outcome domain.PropertyOutcome) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	publishedCount := 0
	for _, channel := range ps.channels {
		if !matchesFilter(outcome, channel.Filter) {
			continue
		}
		select {
		case channel.Events <- outcome:
			publishedCount++
		case <-channel.ctx.Done():
			// Channel is closing, skip
		default:
			// Channel buffer full, skip (non-blocking)
			ps.logger.Warn().
				Str("channelId", channel.ID).
				Str("runId", outcome.RunID).
				Msg("Channel buffer full, dropping migration event")
		}
	}

	if publishedCount > 0 {
		ps.logger.Debug().
			Str("runId", outcome.RunID).
			Str("name", outcome.Name).
			Int("subscribers", publishedCount).
			Msg("Published migration event to subscribers")
	}
}

func matchesFilter(outcome domain.PropertyOutcome, filter *MigrationEventFilter) bool {
	if filter == nil {
		return true
	}
	if filter.UserID != "" && outcome.UserID != filter.UserID {
		return false
	}
	if filter.RunID != "" && outcome.RunID != filter.RunID {
		return false
	}
	if len(filter.ObjectTypes) > 0 && !slices.Contains(filter.ObjectTypes, outcome.ObjectType) {
		return false
	}
	return true
}

// generateID generates a unique channel ID
func (ps *MigrationPubSub) generateID() string {
	ps.nextID++
	return fmt.Sprintf("channel-%d", ps.nextID)
}

// Subscribers returns the number of active subscriptions
func (ps *MigrationPubSub) Subscribers() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.channels)
}
