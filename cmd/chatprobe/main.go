// Command chatprobe runs the endpoint messaging bridge: an always-on
// daemon that listens to a fleet of chat endpoints, or a one-shot campaign
// run against them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/opd-ai/chatprobe"
	"github.com/opd-ai/chatprobe/campaign"
	"github.com/opd-ai/chatprobe/config"
	"github.com/opd-ai/chatprobe/store"
)

var cfgPath string

func main() {
	root := &cobra.Command{
		Use:           "chatprobe",
		Short:         "Messaging bridge and delivery prober for chat endpoints",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	root.AddCommand(serveCmd(), campaignCmd(), meshCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *store.MemoryStore, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	st := store.NewMemoryStore()
	for _, ep := range cfg.Endpoints {
		err := st.SaveEndpoint(context.Background(), &store.Endpoint{
			ID:      ep.ID,
			Address: ep.Address,
			Active:  ep.Active,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("seed endpoint %s: %w", ep.ID, err)
		}
	}
	return cfg, st, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge daemon until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := chatprobe.New(st, cfg)
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			<-ctx.Done()
			return nil
		},
	}
}

func campaignCmd() *cobra.Command {
	var (
		sender     string
		recipients []string
		mode       string
		count      int
		size       int
		interval   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Run one test campaign and print its stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := chatprobe.New(st, cfg)
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			c := &store.Campaign{
				Sender:        sender,
				RecipientMode: store.RecipientMode(mode),
				Recipients:    recipients,
				MessageCount:  count,
				MessageSize:   size,
				Interval:      interval,
			}
			finished, err := svc.Runner().Run(ctx, c)
			if err != nil {
				return err
			}
			printCampaign(finished)
			return nil
		},
	}
	cmd.Flags().StringVar(&sender, "sender", "", "sending endpoint id")
	cmd.Flags().StringSliceVar(&recipients, "recipients", nil, "explicit recipient endpoint ids")
	cmd.Flags().StringVar(&mode, "mode", string(store.ModeRoundRobin), "recipient mode: all, random, round-robin, list")
	cmd.Flags().IntVar(&count, "count", 10, "number of messages")
	cmd.Flags().IntVar(&size, "size", 128, "message size in bytes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "delay between messages")
	cmd.MarkFlagRequired("sender")
	return cmd
}

func meshCmd() *cobra.Command {
	var (
		count    int
		size     int
		interval time.Duration
		workers  int64
	)
	cmd := &cobra.Command{
		Use:   "mesh",
		Short: "Run a campaign across every connected endpoint pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, st, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := chatprobe.New(st, cfg)
			if err := svc.Start(ctx); err != nil {
				return err
			}
			defer svc.Stop()

			result, err := svc.Runner().RunMesh(ctx, campaign.MeshSpec{
				MessageCount: count,
				MessageSize:  size,
				Interval:     interval,
				Workers:      workers,
			})
			if err != nil {
				return err
			}
			fmt.Printf("mesh: %d pairs, %d succeeded, %d failed in %s\n",
				result.Pairs, result.Succeeded, result.Failed, result.Duration.Round(time.Millisecond))
			for _, c := range result.Campaigns {
				printCampaign(c)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 5, "messages per pair")
	cmd.Flags().IntVar(&size, "size", 128, "message size in bytes")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "delay between messages")
	cmd.Flags().Int64Var(&workers, "workers", 4, "concurrent pair campaigns")
	return cmd
}

func printCampaign(c *store.Campaign) {
	fmt.Printf("campaign %s [%s] %s -> %s\n", c.ID, c.Status, c.Sender, strings.Join(c.Recipients, ","))
	fmt.Printf("  sent=%d delivered=%d failed=%d success=%.1f%%\n",
		c.SentCount, c.DeliveredCount, c.FailedCount, c.SuccessRate)
	if c.DeliveredCount > 0 {
		fmt.Printf("  latency avg=%dms min=%dms max=%dms\n",
			c.AvgLatencyMs, c.MinLatencyMs, c.MaxLatencyMs)
	}
}
