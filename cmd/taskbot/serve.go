package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/agent"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel/discord"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel/telegram"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel/webchat"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel/whatsapp"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/messaging"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/scheduler"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/server"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SERVE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server, channel loops and digest scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			initLogging(cfg)
			log := logging.WithComponent("main")
			log.Info().Str("version", version).Msg("Starting taskbot")

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			for name, herr := range a.router.Health(ctx) {
				if herr != nil {
					log.Warn().Str("engine", name).Err(herr).Msg("Inference engine unhealthy")
				} else {
					log.Info().Str("engine", name).Msg("Inference engine OK")
				}
			}

			rc := a.redis(log)
			opts := agent.Options{MaxConcurrent: cfg.Agent.MaxConcurrent}
			if rc != nil {
				opts.Deduper = rc
				opts.Events = rc
			} else {
				opts.Deduper = messaging.NewMemoryDeduper(cfg.Redis.GetDedupTTL())
			}
			loop := agent.NewAgentLoop(a.repo, a.dispatcher, a.router, opts)

			var wa *whatsapp.Adapter
			var adapters []channel.Adapter
			if cfg.Channels.WhatsApp.Enabled {
				wa = whatsapp.New(cfg.Channels.WhatsApp)
				adapters = append(adapters, wa)
			}
			if cfg.Channels.Telegram.Enabled {
				adapters = append(adapters, telegram.NewTelegramAdapter(cfg.Channels.Telegram))
			}
			if cfg.Channels.Discord.Enabled {
				adapters = append(adapters, discord.NewDiscordAdapter(cfg.Channels.Discord))
			}
			var wc *webchat.WebChatAdapter
			if cfg.Channels.WebChat.Enabled {
				wc = webchat.NewWebChatAdapter(cfg.Channels.WebChat)
				adapters = append(adapters, wc)
			}
			if len(adapters) == 0 {
				log.Warn().Msg("No channel enabled, only the HTTP API will answer")
			}

			deps := server.Deps{
				Store:      a.repo,
				Inference:  a.router,
				Users:      a.repo,
				Dispatcher: a.dispatcher,
			}
			if rc != nil {
				deps.Redis = rc
			}
			if wa != nil {
				deps.WhatsApp = wa
			}
			if wc != nil {
				deps.WebChat = wc
			}
			srv := server.New(cfg, deps)

			var sched *scheduler.Scheduler
			if cfg.Scheduler.Enabled {
				if wa == nil {
					log.Warn().Msg("Scheduler enabled without WhatsApp, digests disabled")
				} else {
					sched, err = scheduler.NewScheduler(scheduler.Config{
						Spec:         cfg.Scheduler.DailySummaryCron,
						Location:     cfg.Dispatch.Location(),
						SendInterval: cfg.Scheduler.GetSendInterval(),
					}, a.repo, a.dispatcher, wa)
					if err != nil {
						return err
					}
				}
			}

			g, gctx := errgroup.WithContext(ctx)

			for _, ad := range adapters {
				if err := ad.Start(gctx); err != nil {
					log.Error().Err(err).Str("adapter", ad.Name()).Msg("Failed to start adapter")
					continue
				}
				log.Info().Str("adapter", ad.Name()).Msg("Adapter started")
				g.Go(func() error {
					loop.Run(gctx, ad)
					return nil
				})
			}

			if sched != nil {
				sched.Start(gctx)
				g.Go(func() error {
					<-gctx.Done()
					sched.Stop()
					return nil
				})
			}

			g.Go(srv.Start)
			g.Go(func() error {
				<-gctx.Done()
				log.Info().Msg("Shutting down")

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				err := srv.Shutdown(shutdownCtx)
				for _, ad := range adapters {
					if serr := ad.Stop(); serr != nil {
						log.Warn().Err(serr).Str("adapter", ad.Name()).Msg("Adapter stop failed")
					}
				}
				return err
			})

			err = g.Wait()
			log.Info().Msg("taskbot stopped")
			return err
		},
	}
}
