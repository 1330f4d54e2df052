package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"tgrelay/internal/bus"
	"tgrelay/internal/config"
	"tgrelay/internal/domain"
	"tgrelay/internal/logging"
	"tgrelay/internal/metrics"
	"tgrelay/internal/relay"
	"tgrelay/internal/rules"
	"tgrelay/internal/telegram"

	"github.com/spf13/cobra"
)

var (
	version    = "1.0.0"
	configPath string // overridable via --config flag

	removeForwardSignature bool
	disableConsoleLog      bool
)

func main() {
	root := &cobra.Command{
		Use:   "tgrelay",
		Short: "tgrelay: Telegram message forwarder",
		Long:  "tgrelay relays messages from source chats to target chats, either as native forwards or as signature-stripped copies.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config (environment variables take precedence)")

	root.AddCommand(runCmd())
	root.AddCommand(rulesCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the relay",
		RunE:  runRelay,
	}
	cmd.Flags().BoolVarP(&removeForwardSignature, "remove-forward-signature", "r", false, `send copies instead of forwards (no "Forwarded from" header)`)
	cmd.Flags().BoolVarP(&disableConsoleLog, "disable-console-log", "q", false, "disable console logging (file logging stays active)")
	return cmd
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return configGuidance(err)
	}

	// Rules are validated before any network activity.
	table, err := rules.Parse(cfg.Rules.SourceID, cfg.Rules.TargetID, cfg.Rules.ForwardingRules)
	if err != nil {
		return configGuidance(err)
	}

	logger, closeLog, err := logging.Setup(cfg.Logging.File, disableConsoleLog || cfg.Logging.DisableConsole)
	if err != nil {
		return err
	}
	defer closeLog()

	sanitized := config.Sanitize(cfg)
	logger.Info("configuration loaded",
		"api_id", sanitized.Telegram.APIID,
		"bot_token", sanitized.Telegram.BotToken,
		"log_file", cfg.Logging.File,
	)

	mode := relay.ModeForward
	if removeForwardSignature {
		mode = relay.ModeCopy
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := telegram.New(telegram.Config{
		BotToken: cfg.Telegram.BotToken,
		Logger:   logger,
	})
	if err != nil {
		logger.Error("telegram client init failed", "err", err)
		return err
	}

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	resolver := relay.NewResolver(client, logger)
	engine := relay.NewEngine(relay.EngineConfig{
		Table:    table,
		Client:   client,
		Resolver: resolver,
		Bus:      messageBus,
		Mode:     mode,
		Logger:   logger,
	})

	go func() {
		if err := client.Subscribe(ctx, table.SourceIDs(), messageBus); err != nil {
			logger.Error("subscription error", "err", err)
		}
		// Bus close stops the engine when the stream ends before ctx does.
		messageBus.Close()
	}()

	logger.Info("relay is now running. Press Ctrl+C to stop.",
		"mode", mode.String(),
		"sources", len(table),
	)

	err = engine.Run(ctx)

	logger.Info("relay stopped")
	logger.Info("metrics snapshot", "exposition", metrics.Collector.Export())
	return err
}

func rulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Parse the forwarding configuration and print the routing table",
		Long:  "Dry-run: parses SOURCE_ID/TARGET_ID or FORWARDING_RULES and prints the resulting source -> targets mapping without connecting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			table, err := rules.Parse(cfg.Rules.SourceID, cfg.Rules.TargetID, cfg.Rules.ForwardingRules)
			if err != nil {
				return configGuidance(err)
			}

			sources := table.SourceIDs()
			sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
			for _, source := range sources {
				targets, _ := table.Targets(source)
				parts := make([]string, len(targets))
				for i, t := range targets {
					parts[i] = fmt.Sprintf("%d", t)
				}
				fmt.Printf("%d -> %s\n", source, strings.Join(parts, ", "))
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tgrelay version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("tgrelay", version)
		},
	}
}

// configGuidance prints setup help for startup-fatal configuration errors
// before handing the error back to cobra.
func configGuidance(err error) error {
	var cfgErr *domain.ConfigError
	if errors.As(err, &cfgErr) {
		fmt.Fprintln(os.Stderr, "Configuration error:", cfgErr.Reason)
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Please check your .env file and ensure all required variables are set.")
		fmt.Fprintln(os.Stderr, "You can use .env.example as a template.")
	}
	return err
}
