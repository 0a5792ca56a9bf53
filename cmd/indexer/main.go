package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"orderScope/internal/config"
	"orderScope/internal/indexer"
	"orderScope/internal/storage"
)

func main() {
	root := &cobra.Command{
		Use:          "indexer",
		Short:        "NFT order book indexer",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Index exchange events and apply them to the order book",
		RunE:  runIndexer,
	}

	addCommonFlags(runCmd.Flags())
	runCmd.Flags().Uint64("from", 0, "start block (inclusive)")
	runCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	runCmd.Flags().StringSlice("address", nil, "contract addresses or order kinds (e.g. seaport-v1.5) to watch instead of the configured exchanges")
	runCmd.Flags().StringSlice("topic0", nil, "topic0 filter instead of every decoded event")
	runCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	runCmd.Flags().String("out", "./data/logs.jsonl", "raw log JSONL path, empty disables")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path, used without pg-dsn")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	runCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	runCmd.Flags().Uint64("confirmations", 0, "blocks to stay behind the chain head")
	runCmd.Flags().Bool("follow", false, "keep polling for new blocks")
	runCmd.Flags().Duration("poll-interval", 12*time.Second, "poll interval in follow mode")
	runCmd.Flags().Bool("attribute", true, "attribute royalties for indexed fills")

	root.AddCommand(runCmd)
	root.AddCommand(newIngestCmd())
	root.AddCommand(newRevalidateCmd())
	root.AddCommand(newAttributeCmd())
	root.AddCommand(newNonceCmd())
	root.AddCommand(newCollectionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// addCommonFlags registers the connection settings every command shares.
func addCommonFlags(flags *pflag.FlagSet) {
	flags.String("rpc", "", "Ethereum RPC URL (archive node with debug_traceTransaction for attribution)")
	flags.Int64("chain-id", 1, "chain id used in order signatures")
	flags.String("pg-dsn", "", "Postgres DSN, empty uses an in-memory store")
	flags.String("redis-addr", "", "Redis address for locks, caches and the update stream")
	flags.String("s3-bucket", "", "S3 bucket for raw payload archives")
	flags.Int("concurrency", 20, "worker pool size")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

// setup loads config and the logger and returns a context cancelled on SIGINT/SIGTERM.
func setup(cmd *cobra.Command) (config.Config, *zap.Logger, context.Context, context.CancelFunc, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return cfg, logger, ctx, stop, nil
}

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfg, logger, ctx, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()
	defer logger.Sync()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.locks != nil {
		release, err := a.locks.Acquire(ctx, "indexer:run", time.Minute)
		if err != nil {
			return fmt.Errorf("acquire runner lock: %w", err)
		}
		defer release()
	}

	var attributor indexer.Attributor
	if cfg.Attribute {
		attributor = a.engine
	}
	handler, err := indexer.NewHandler(indexer.HandlerConfig{
		Decoder:    a.events,
		Tracker:    a.tracker,
		Listings:   a.processor,
		Fills:      a.store,
		Attributor: attributor,
		Logger:     logger.Named("handler"),
	})
	if err != nil {
		return err
	}

	var sinks storage.Multi
	if cfg.Out != "" {
		out := storage.NewJSONLFile(cfg.Out)
		a.closers = append(a.closers, func() {
			if err := out.Close(); err != nil {
				logger.Warn("close jsonl output failed", zap.Error(err))
			}
		})
		sinks = append(sinks, out)
	}
	if a.archive != nil {
		sinks = append(sinks, a.archive)
	}
	sinks = append(sinks, handler)

	var checkpoint indexer.Checkpointer
	switch {
	case !cfg.CheckpointEnabled:
	case cfg.PGDSN != "":
		checkpoint = indexer.NewStateCheckpoint(a.store, "indexer")
	default:
		checkpoint = indexer.NewCheckpointStore(cfg.Checkpoint, true)
	}

	addresses := a.addresses.exchanges()
	if len(cfg.Addresses) > 0 {
		addresses, err = indexer.ParseAddresses(cfg.Addresses, a.addresses.named())
		if err != nil {
			return err
		}
	}
	if len(addresses) == 0 {
		return fmt.Errorf("address list is required")
	}
	topic0 := a.events.Topics()
	if len(cfg.Topic0) > 0 {
		topic0, err = indexer.ParseTopics(cfg.Topic0, a.events.Topics())
		if err != nil {
			return err
		}
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:     cfg.FromBlock,
		ToBlock:       cfg.ToBlock,
		Addresses:     addresses,
		Topic0:        topic0,
		BatchSize:     cfg.BatchSize,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  cfg.RetryBackoff,
		Confirmations: cfg.Confirmations,
		Follow:        cfg.Follow,
		PollInterval:  cfg.PollInterval,
	}, a.chain, sinks, checkpoint, logger.Named("runner"))

	logger.Info("indexer start",
		zap.String("rpc", cfg.RPCURL),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Int("addresses", len(addresses)),
		zap.Int("topic0", len(topic0)),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.Bool("follow", cfg.Follow),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.Bool("attribute", cfg.Attribute),
	)

	return runner.Run(ctx)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
