// Package scheduler sends the daily digest on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/metrics"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// Users lists digest recipients.
type Users interface {
	ListUsersWithPhone(ctx context.Context) ([]task.User, error)
}

// Digester renders one user's digest.
type Digester interface {
	Digest(ctx context.Context, user task.User) (string, error)
}

// Sender delivers a digest to a phone.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// Config defines the digest job.
type Config struct {
	// Spec is a standard 5-field cron expression.
	Spec string
	// Location is the timezone Spec is evaluated in. Defaults to UTC.
	Location *time.Location
	// SendInterval is the minimum pause between two sends.
	SendInterval time.Duration
}

// Result counts the outcome of one digest run.
type Result struct {
	Sent    int
	Failed  int
	Skipped int
}

// Scheduler manages the digest cron job
type Scheduler struct {
	cron     *cron.Cron
	spec     string
	users    Users
	digester Digester
	sender   Sender
	interval time.Duration
	log      *zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	running bool
}

// NewScheduler creates a scheduler and registers the digest job
func NewScheduler(cfg Config, users Users, digester Digester, sender Sender) (*Scheduler, error) {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		spec:     cfg.Spec,
		users:    users,
		digester: digester,
		sender:   sender,
		interval: cfg.SendInterval,
		log:      logging.WithComponent("scheduler"),
		ctx:      context.Background(),
	}
	if _, err := s.cron.AddFunc(cfg.Spec, s.runJob); err != nil {
		return nil, fmt.Errorf("schedule digest %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start starts the scheduler. Jobs run under ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Time("next", s.Next()).Msg("Digest scheduled")
}

// Stop stops the scheduler and waits for a running job
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Next returns the next digest time, zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) runJob() {
	s.mu.Lock()
	ctx := s.ctx
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("Previous digest run still in progress, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if _, err := s.RunDigest(ctx); err != nil {
		s.log.Error().Err(err).Msg("Digest run failed")
	}
}

// RunDigest sends today's digest to every user with a phone. A failure for
// one user does not stop the others.
func (s *Scheduler) RunDigest(ctx context.Context) (Result, error) {
	var res Result

	users, err := s.users.ListUsersWithPhone(ctx)
	if err != nil {
		return res, fmt.Errorf("list digest users: %w", err)
	}
	if len(users) == 0 {
		s.log.Warn().Msg("No users with phone to receive digests")
		return res, nil
	}

	var limiter *rate.Limiter
	if s.interval > 0 {
		limiter = rate.NewLimiter(rate.Every(s.interval), 1)
	}

	s.log.Info().Int("users", len(users)).Msg("Sending daily digests")
	for _, u := range users {
		if u.Phone == "" {
			res.Skipped++
			metrics.DigestsSent.WithLabelValues("skipped").Inc()
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return res, fmt.Errorf("digest interrupted: %w", err)
			}
		}

		if err := s.sendOne(ctx, u); err != nil {
			if errors.Is(err, context.Canceled) {
				return res, err
			}
			res.Failed++
			metrics.DigestsSent.WithLabelValues("failed").Inc()
			s.log.Error().Err(err).Str("user_id", u.ID).Msg("Digest not sent")
			continue
		}
		res.Sent++
		metrics.DigestsSent.WithLabelValues("sent").Inc()
		s.log.Info().Str("user_id", u.ID).Msg("Digest sent")
	}

	s.log.Info().Int("sent", res.Sent).Int("failed", res.Failed).Int("skipped", res.Skipped).Msg("Daily digests done")
	return res, nil
}

func (s *Scheduler) sendOne(ctx context.Context, u task.User) error {
	text, err := s.digester.Digest(ctx, u)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if err := s.sender.Send(ctx, u.Phone, text); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}
