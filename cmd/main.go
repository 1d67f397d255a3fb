package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jittakal/kafcoldstore/internal/checkpoint"
	"github.com/jittakal/kafcoldstore/internal/config"
	"github.com/jittakal/kafcoldstore/internal/config/dto"
	"github.com/jittakal/kafcoldstore/internal/observability"
)

const defaultConfigPath = "config/application.yaml"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "kafcoldstore",
		Short:        "Kafka to cold storage archiver",
		Long:         "kafcoldstore consumes Kafka partitions and persists their records as blobs, checkpointing only what has been written.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (default $CONFIG_PATH or "+defaultConfigPath+")")

	load := func() (*dto.ApplicationConfig, error) {
		cfg, err := config.NewLoader().Load(resolveConfigPath(configPath))
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		return cfg, nil
	}

	root.AddCommand(newRunCommand(load))
	root.AddCommand(newValidateCommand(load))
	root.AddCommand(newCheckpointsCommand())
	return root
}

// resolveConfigPath applies the priority: CLI flag > CONFIG_PATH env var > default path.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return envPath
	}
	return defaultConfigPath
}

func newRunCommand(load func() (*dto.ApplicationConfig, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Consume partitions and archive them until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
}

func newValidateCommand(load func() (*dto.ApplicationConfig, error)) *cobra.Command {
	var partitions int

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and check buffer pool sizing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			p := cfg.Processor

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "topics\t%v\n", cfg.Kafka.Consumer.Topics)
			fmt.Fprintf(w, "group\t%s\n", cfg.Kafka.Consumer.GroupID)
			fmt.Fprintf(w, "storage\t%s (%s)\n", cfg.Storage.Backend, cfg.Storage.Compression)
			fmt.Fprintf(w, "record format\t%s\n", cfg.Record.Format)
			fmt.Fprintf(w, "frame size\t%d bytes\n", p.MaxBlockSize)
			fmt.Fprintf(w, "breaker\twarn at %d, trip at %d\n", p.WarningLevel, p.TripLevel)
			fmt.Fprintf(w, "pool\t%d blocks (%d MiB)\n", p.MaxBlocks, p.MaxBlocks*p.MaxBlockSize>>20)
			if err := w.Flush(); err != nil {
				return err
			}

			if partitions > 0 {
				if want := p.RecommendedBlocks(partitions); p.MaxBlocks < want {
					fmt.Fprintf(out, "warning: %d partitions can hold up to %d blocks; processor.max_blocks is %d\n",
						partitions, want, p.MaxBlocks)
				}
			}
			fmt.Fprintln(out, "configuration is valid")
			return nil
		},
	}
	cmd.Flags().IntVar(&partitions, "partitions", 0, "expected number of partitions owned by this instance")
	return cmd
}

func newCheckpointsCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "List the offsets recorded in the local checkpoint ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.NewLogger(observability.LoggingConfig{Level: "warn", Format: "text", Output: "stderr"})
			store, err := checkpoint.Open(checkpoint.Options{Dir: dir}, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TOPIC\tPARTITION\tOFFSET")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%d\t%d\n", e.Partition.Topic, e.Partition.Partition, e.Offset)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data/checkpoints", "checkpoint ledger directory")
	return cmd
}
