package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/eduardossimas/finance-cal-hub-bot/internal/channel/whatsapp"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/logging"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/messaging"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/scheduler"
	"github.com/eduardossimas/finance-cal-hub-bot/internal/tui"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CONSOLE COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func consoleCmd() *cobra.Command {
	var phone string
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Chat with the bot locally as a registered user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// The console owns the terminal, so logs go to a file.
			logFile := filepath.Join(os.TempDir(), fmt.Sprintf("taskbot_console_%s.log", time.Now().Format("2006-01-02_15-04-05")))
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
			logging.SetupWriter(cfg.Logging.Level, "json", f)
			log := logging.WithComponent("console")

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.userByPhone(cmd.Context(), phone)
			if err != nil {
				return err
			}

			return tui.Run(tui.Config{
				User:       user,
				Dispatcher: a.dispatcher,
				Store:      cfg.Store.Driver,
				Lane:       a.router.DefaultLane(),
				Timezone:   cfg.Dispatch.Location().String(),
				Version:    version,
				Timeout:    2 * time.Minute,
			})
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "phone of the user to chat as")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// ASK COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func askCmd() *cobra.Command {
	var phone string
	cmd := &cobra.Command{
		Use:   "ask <message...>",
		Short: "Send one message as a user and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			initLogging(cfg)
			log := logging.WithComponent("ask")

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.userByPhone(cmd.Context(), phone)
			if err != nil {
				return err
			}

			reply := a.dispatcher.Dispatch(cmd.Context(), user, strings.Join(args, " "))
			log.Debug().Str("branch", reply.Branch).Msg("Dispatched")
			fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&phone, "phone", "", "phone of the user to ask as")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// DIGEST COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

// printSender writes digests to stdout instead of sending them.
type printSender struct {
	cmd *cobra.Command
}

func (p printSender) Send(_ context.Context, to, text string) error {
	fmt.Fprintf(p.cmd.OutOrStdout(), "═══ %s ═══\n%s\n\n", to, text)
	return nil
}

func digestCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Send today's digest to every user with a phone now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			initLogging(cfg)
			log := logging.WithComponent("digest")

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			var sender scheduler.Sender = printSender{cmd: cmd}
			interval := time.Duration(0)
			if !dryRun {
				if !cfg.Channels.WhatsApp.Enabled {
					return fmt.Errorf("whatsapp channel is not enabled, use --dry-run")
				}
				sender = whatsapp.New(cfg.Channels.WhatsApp)
				interval = cfg.Scheduler.GetSendInterval()
			}

			sched, err := scheduler.NewScheduler(scheduler.Config{
				Spec:         cfg.Scheduler.DailySummaryCron,
				Location:     cfg.Dispatch.Location(),
				SendInterval: interval,
			}, a.repo, a.dispatcher, sender)
			if err != nil {
				return err
			}

			res, err := sched.RunDigest(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "sent=%d failed=%d skipped=%d\n", res.Sent, res.Failed, res.Skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print digests instead of sending them")
	return cmd
}

// ═══════════════════════════════════════════════════════════════════════════════
// EVENTS COMMAND
// ═══════════════════════════════════════════════════════════════════════════════

func eventsCmd() *cobra.Command {
	var count int64
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the most recent processed messages from Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			initLogging(cfg)
			if cfg.Redis.Addr == "" {
				return fmt.Errorf("redis.addr is not configured")
			}

			rc, err := messaging.NewRedisClient(messaging.RedisConfig{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Stream:   cfg.Redis.Stream,
			})
			if err != nil {
				return err
			}
			defer rc.Close()

			events, err := rc.Recent(cmd.Context(), count)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ev := range events {
				fmt.Fprintf(out, "%s  %-9s %-8s %-22s user=%s %s\n",
					ev.At.Local().Format("2006-01-02 15:04:05"), ev.Channel, ev.Kind, ev.Branch, ev.UserID, ev.Latency)
			}
			return nil
		},
	}
	cmd.Flags().Int64VarP(&count, "count", "n", 20, "number of events")
	return cmd
}
