package main

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderScope/internal/model"
)

func newCollectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collection",
		Short: "Maintain per-collection metadata used by validation and attribution",
	}

	royaltiesCmd := &cobra.Command{
		Use:   "royalties <contract> <recipient=bps>...",
		Short: "Register a collection's royalty recipients",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runSetRoyalties,
	}
	addCommonFlags(royaltiesCmd.Flags())

	flagCmd := &cobra.Command{
		Use:   "flag <contract> <token-id>",
		Short: "Mark a token as flagged so dynamic token sets exclude it",
		Args:  cobra.ExactArgs(2),
		RunE:  runFlagToken,
	}
	addCommonFlags(flagCmd.Flags())
	flagCmd.Flags().Bool("unflag", false, "clear the flag instead")

	cmd.AddCommand(royaltiesCmd, flagCmd)
	return cmd
}

func runSetRoyalties(cmd *cobra.Command, args []string) error {
	cfg, logger, ctx, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()
	defer logger.Sync()

	contract, err := parseContract(args[0])
	if err != nil {
		return err
	}
	recipients, err := parseRecipients(args[1:])
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.SetCollectionRoyalties(ctx, contract, recipients); err != nil {
		return err
	}
	logger.Info("royalties registered", zap.String("contract", contract.Hex()), zap.Int("recipients", len(recipients)))
	return nil
}

func runFlagToken(cmd *cobra.Command, args []string) error {
	cfg, logger, ctx, stop, err := setup(cmd)
	if err != nil {
		return err
	}
	defer stop()
	defer logger.Sync()

	contract, err := parseContract(args[0])
	if err != nil {
		return err
	}
	tokenID, ok := new(big.Int).SetString(args[1], 10)
	if !ok || tokenID.Sign() < 0 {
		return fmt.Errorf("invalid token id: %s", args[1])
	}
	unflag, _ := cmd.Flags().GetBool("unflag")

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.SetTokenFlag(ctx, contract, tokenID, !unflag); err != nil {
		return err
	}
	logger.Info("token flag updated", zap.String("contract", contract.Hex()), zap.String("token_id", tokenID.String()), zap.Bool("flagged", !unflag))
	return nil
}

func parseContract(value string) (common.Address, error) {
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid contract: %s", value)
	}
	return common.HexToAddress(value), nil
}

// parseRecipients reads recipient=bps pairs; the total must stay below 100%.
func parseRecipients(args []string) ([]model.RoyaltyRecipient, error) {
	out := make([]model.RoyaltyRecipient, 0, len(args))
	var total int64
	for _, arg := range args {
		addr, rawBps, ok := strings.Cut(arg, "=")
		if !ok || !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid recipient %q, want address=bps", arg)
		}
		bps, err := strconv.ParseInt(rawBps, 10, 64)
		if err != nil || bps <= 0 {
			return nil, fmt.Errorf("invalid bps in %q", arg)
		}
		total += bps
		out = append(out, model.RoyaltyRecipient{Recipient: common.HexToAddress(addr), Bps: bps})
	}
	if total >= 10000 {
		return nil, fmt.Errorf("royalties total %d bps, must be below 10000", total)
	}
	return out, nil
}
