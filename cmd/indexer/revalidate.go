package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRevalidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revalidate",
		Short: "Re-check fillability of stored non-terminal orders",
		RunE:  runRevalidate,
	}
	addCommonFlags(cmd.Flags())
	cmd.Flags().String("maker", "", "only revalidate this maker's orders")
	cmd.Flags().Int("limit", 1000, "maximum orders to check")
	return cmd
}

func runRevalidate(cmd *cobra.Command, _ []string) error {
	cfg, logger, ctx, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()
	defer logger.Sync()

	makerFlag, _ := cmd.Flags().GetString("maker")
	limit, _ := cmd.Flags().GetInt("limit")

	var maker *common.Address
	if makerFlag != "" {
		if !common.IsHexAddress(makerFlag) {
			return fmt.Errorf("invalid maker: %s", makerFlag)
		}
		addr := common.HexToAddress(makerFlag)
		maker = &addr
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	changes, err := a.revalidator.Revalidate(ctx, maker, limit)
	if err != nil {
		return err
	}
	for _, c := range changes {
		logger.Info("status changed",
			zap.String("order_id", c.OrderID),
			zap.String("from", string(c.From)),
			zap.String("to", string(c.To)),
		)
	}
	logger.Info("revalidate complete", zap.Int("changed", len(changes)))
	return nil
}
