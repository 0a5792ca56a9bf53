package main

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderScope/internal/model"
	"orderScope/internal/nonce"
)

func newNonceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nonce",
		Short: "Allocate the next free order nonce for a maker",
		RunE:  runNonce,
	}
	addCommonFlags(cmd.Flags())
	cmd.Flags().String("maker", "", "maker address")
	cmd.Flags().String("kind", string(model.KindSeaport), "order kind the nonce is for")
	return cmd
}

func runNonce(cmd *cobra.Command, _ []string) error {
	cfg, logger, ctx, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()
	defer logger.Sync()

	makerFlag, _ := cmd.Flags().GetString("maker")
	kind, _ := cmd.Flags().GetString("kind")
	if !common.IsHexAddress(makerFlag) {
		return fmt.Errorf("invalid maker: %q", makerFlag)
	}
	maker := common.HexToAddress(makerFlag)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	next, err := a.allocator.Next(ctx, maker, model.OrderKind(kind))
	if errors.Is(err, nonce.ErrNoNonceAvailable) {
		logger.Warn("nonce lock busy", zap.String("maker", maker.Hex()), zap.String("kind", kind))
		return err
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), next.String())
	return nil
}
