package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderScope/internal/model"
)

func newAttributeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attribute <tx-hash>...",
		Short: "Attribute marketplace fees and royalties of the fills in transactions",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAttribute,
	}
	addCommonFlags(cmd.Flags())
	return cmd
}

func runAttribute(cmd *cobra.Command, args []string) error {
	cfg, logger, ctx, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()
	defer logger.Sync()

	for _, arg := range args {
		if len(common.FromHex(arg)) != common.HashLength {
			return fmt.Errorf("invalid tx hash: %s", arg)
		}
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	enc := json.NewEncoder(os.Stdout)
	for _, txHash := range args {
		// Attributions attach to stored fills, so record the fills first.
		settled, err := a.collector.FillsForTx(ctx, txHash)
		if err != nil {
			return fmt.Errorf("collect fills %s: %w", txHash, err)
		}
		if err := a.store.SaveFills(ctx, settled); err != nil {
			return err
		}

		fills, err := a.engine.AttributeTx(ctx, txHash)
		if err != nil {
			logger.Warn("attribution failed",
				zap.String("tx_hash", txHash),
				zap.String("code", string(model.CodeOf(err))),
				zap.Error(err),
			)
			continue
		}
		for _, fill := range fills {
			if err := enc.Encode(fill); err != nil {
				return err
			}
		}
	}
	return nil
}
