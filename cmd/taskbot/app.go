package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/assistant"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/config"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/dispatch"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/inference"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/messaging"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/store"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/store/postgrest"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/store/sqlite"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/task"
)

// app holds the components every command shares.
type app struct {
	cfg        *config.Config
	repo       store.Repository
	router     *inference.Router
	dispatcher *dispatch.Dispatcher
	closers    []func() error
}

func newApp(cfg *config.Config, log *zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg}

	repo, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a.repo = repo
	if c, ok := repo.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	router, err := inference.NewRouter(&cfg.Inference)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("inference router: %w", err)
	}
	a.router = router

	loc := cfg.Dispatch.Location()
	clock := assistant.WithClock(loc, nil)
	a.dispatcher = dispatch.New(dispatch.Deps{
		Repo:       repo,
		Classifier: assistant.NewClassifier(router, clock),
		Extractor:  assistant.NewExtractor(router, clock),
		Resolver:   assistant.NewCompletionResolver(router, clock),
		Summarizer: assistant.NewSummarizer(router, clock),
		Answerer:   assistant.NewAnswerer(router, clock),
	}, dispatch.Options{
		Location:   loc,
		LLMTimeout: cfg.Dispatch.GetLLMTimeout(),
	})

	log.Info().
		Str("store", cfg.Store.Driver).
		Str("lane", router.DefaultLane()).
		Str("transcriber", router.TranscriberName()).
		Str("timezone", loc.String()).
		Msg("Components ready")
	return a, nil
}

func openStore(cfg *config.Config) (store.Repository, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		s, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case "postgrest":
		return postgrest.NewClient(&cfg.Store.Supabase), nil
	}
	return nil, fmt.Errorf("unsupported store driver: %q", cfg.Store.Driver)
}

// redis connects when redis.addr is set. Nil means run without Redis.
func (a *app) redis(log *zerolog.Logger) *messaging.RedisClient {
	if a.cfg.Redis.Addr == "" {
		return nil
	}
	rc, err := messaging.NewRedisClient(messaging.RedisConfig{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		DedupTTL: a.cfg.Redis.GetDedupTTL(),
		Stream:   a.cfg.Redis.Stream,
	})
	if err != nil {
		log.Warn().Err(err).Str("addr", a.cfg.Redis.Addr).Msg("Redis unavailable, using in-memory dedup")
		return nil
	}
	a.closers = append(a.closers, rc.Close)
	log.Info().Str("addr", a.cfg.Redis.Addr).Msg("Redis connected")
	return rc
}

func (a *app) userByPhone(ctx context.Context, raw string) (*task.User, error) {
	phone := channel.NormalizePhone(raw)
	if phone == "" {
		return nil, fmt.Errorf("invalid phone %q", raw)
	}
	user, err := a.repo.FindUserByPhone(ctx, phone)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("no user registered with phone %s", raw)
	}
	return user, err
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
