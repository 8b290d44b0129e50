package conversations

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
)

// Janitor sweeps idle threads on a cron schedule. Disabled entirely
// when the idle TTL is zero.
type Janitor struct {
	store   interfaces.ConversationStore
	config  *common.ConversationConfig
	cron    *cron.Cron
	logger  arbor.ILogger
	running bool
}

// NewJanitor creates the eviction sweeper
func NewJanitor(store interfaces.ConversationStore, config *common.ConversationConfig, logger arbor.ILogger) *Janitor {
	return &Janitor{
		store:  store,
		config: config,
		cron:   cron.New(),
		logger: logger,
	}
}

// Start schedules the sweep. No-op when eviction is disabled.
func (j *Janitor) Start() error {
	if j.running {
		return fmt.Errorf("janitor already running")
	}
	if j.config.IdleTTLMinutes <= 0 {
		j.logger.Info().Msg("Thread eviction disabled (idle_ttl_minutes = 0)")
		return nil
	}

	schedule := j.config.EvictionSchedule
	if schedule == "" {
		schedule = "*/30 * * * *"
	}

	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return fmt.Errorf("failed to schedule eviction sweep: %w", err)
	}

	j.cron.Start()
	j.running = true

	j.logger.Info().
		Str("schedule", schedule).
		Int("idle_ttl_minutes", j.config.IdleTTLMinutes).
		Msg("Thread eviction janitor started")

	return nil
}

// Stop halts the sweep schedule. In-flight sweeps finish.
func (j *Janitor) Stop() {
	if !j.running {
		return
	}
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.running = false
	j.logger.Info().Msg("Thread eviction janitor stopped")
}

// sweep runs one eviction pass
func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Minute)
	defer cancel()

	idleFor := time.Duration(j.config.IdleTTLMinutes) * time.Minute
	evicted, err := j.store.EvictIdle(ctx, idleFor)
	if err != nil {
		j.logger.Error().Err(err).Msg("Eviction sweep failed")
		return
	}

	j.logger.Debug().
		Int("evicted", evicted).
		Msg("Eviction sweep completed")
}
