// Package scheduler fires scheduled events for the pubs of every stage that has
// rules bound to the scheduled event kind.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const defaultResync = time.Minute

// EmitFunc delivers a scheduled event, either to an engine or onto the bus.
type EmitFunc func(ctx context.Context, event models.Event) error

// job is one distinct (community, stage, cron expression) tuple.
type job struct {
	CommunityID string
	StageID     string
	Cron        string
}

func (j job) key() string {
	return j.CommunityID + "/" + j.StageID + "/" + j.Cron
}

type Scheduler struct {
	rules  persistence.RuleRepository
	pubs   persistence.PubRepository
	emit   EmitFunc
	logger *slog.Logger
	resync time.Duration
	now    func() time.Time

	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

type Option func(*Scheduler)

// WithResync sets how often scheduled rules are reloaded.
func WithResync(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.resync = interval
	}
}

func New(store persistence.Persistence, emit EmitFunc, logger *slog.Logger, opts ...Option) *Scheduler {
	logger = logger.With("module", "scheduler")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelWarn))

	s := &Scheduler{
		rules:   store.RuleRepository(),
		pubs:    store.PubRepository(),
		emit:    emit,
		logger:  logger,
		resync:  defaultResync,
		now:     time.Now,
		entries: make(map[string]cron.EntryID),
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start loads the scheduled rules and starts the cron loop. The rule set is
// reloaded every resync interval until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Sync(ctx); err != nil {
		return err
	}

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.resync), func() {
		if err := s.Sync(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to reload scheduled rules", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule resync: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Scheduler started", "resync", s.resync.String())

	return nil
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()

	select {
	case <-stopped.Done():
		s.logger.InfoContext(ctx, "Scheduler stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync reconciles cron entries with the persisted scheduled rules.
func (s *Scheduler) Sync(ctx context.Context) error {
	rules, err := s.rules.ListByEvent(ctx, models.EventKindScheduled)
	if err != nil {
		return fmt.Errorf("failed to list scheduled rules: %w", err)
	}

	wanted := make(map[string]job)

	for _, rule := range rules {
		expr, _ := rule.Config["cron"].(string)
		if expr == "" {
			continue
		}

		j := job{CommunityID: rule.CommunityID, StageID: rule.StageID, Cron: expr}
		wanted[j.key()] = j
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entryID := range s.entries {
		if _, ok := wanted[key]; !ok {
			s.cron.Remove(entryID)
			delete(s.entries, key)
			s.logger.DebugContext(ctx, "Removed schedule", "schedule", key)
		}
	}

	for key, j := range wanted {
		if _, ok := s.entries[key]; ok {
			continue
		}

		entryID, err := s.cron.AddFunc(j.Cron, func() {
			if err := s.Fire(ctx, j.CommunityID, j.StageID, j.Cron); err != nil {
				s.logger.ErrorContext(ctx, "Scheduled run failed", "schedule", key, "error", err)
			}
		})
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping invalid schedule", "schedule", key, "error", err)

			continue
		}

		s.entries[key] = entryID
		s.logger.DebugContext(ctx, "Added schedule", "schedule", key)
	}

	return nil
}

// Schedules returns the active schedules as community/stage/cron keys.
func (s *Scheduler) Schedules() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Fire emits one scheduled event per pub currently in the stage.
func (s *Scheduler) Fire(ctx context.Context, communityID, stageID, expr string) error {
	pubs, err := s.pubs.ListByStage(ctx, stageID)
	if err != nil {
		return fmt.Errorf("failed to list pubs of stage %s: %w", stageID, err)
	}

	firedAt := s.now().UTC().Format(time.RFC3339)

	for _, pub := range pubs {
		if pub.CommunityID != communityID {
			continue
		}

		event := models.Event{
			Kind:        models.EventKindScheduled,
			CommunityID: communityID,
			PubID:       pub.ID,
			StageID:     stageID,
			Payload: map[string]any{
				"cron":     expr,
				"fired_at": firedAt,
			},
		}

		if err := s.emit(ctx, event); err != nil {
			return fmt.Errorf("failed to emit scheduled event for pub %s: %w", pub.ID, err)
		}
	}

	s.logger.InfoContext(ctx, "Schedule fired", "community_id", communityID, "stage_id", stageID, "pubs", len(pubs))

	return nil
}

