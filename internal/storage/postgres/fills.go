package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"orderScope/internal/model"
)

// SaveFills inserts fills, ignoring ones already stored.
func (s *Store) SaveFills(ctx context.Context, fills []model.FillEvent) error {
	if len(fills) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, f := range fills {
		f := f
		var orderID *string
		if f.OrderID != "" {
			orderID = &f.OrderID
		}
		batch.Queue(`
			INSERT INTO fills (
				id, order_id, order_kind, order_side, contract, token_id, amount, price, currency,
				maker, taker, tx_hash, block_number, log_index, batch_index, timestamp
			) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (id) DO NOTHING`,
			f.ID, orderID, string(f.OrderKind), string(f.OrderSide), addr(f.Contract), numeric(f.TokenID),
			numeric(orOne(f.Amount)), numeric(orZero(f.Price)), addr(f.Currency), addr(f.Maker), addr(f.Taker),
			f.TxHash, int64(f.BlockNumber), int64(f.LogIndex), int64(f.BatchIndex), int64(f.Timestamp),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for _, f := range fills {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: save fill %s: %w", f.ID, err)
		}
	}
	return nil
}

// SaveAttribution writes the fee attribution of a fill unless one was
// already written.
func (s *Store) SaveAttribution(ctx context.Context, fillID string, a *model.Attribution) (bool, error) {
	royalties, err := json.Marshal(a.RoyaltyFeeBreakdown)
	if err != nil {
		return false, fmt.Errorf("marshal royalty breakdown: %w", err)
	}
	marketplace, err := json.Marshal(a.MarketplaceFeeBreakdown)
	if err != nil {
		return false, fmt.Errorf("marshal marketplace breakdown: %w", err)
	}
	missing, err := json.Marshal(a.PossibleMissingRoyalties)
	if err != nil {
		return false, fmt.Errorf("marshal missing royalties: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE fills SET
			royalty_fee_bps = $2, marketplace_fee_bps = $3,
			royalty_fee_breakdown = $4, marketplace_fee_breakdown = $5,
			paid_full_royalty = $6, possible_missing_royalties = $7, attributed_at = now()
		WHERE id = $1 AND attributed_at IS NULL`,
		fillID, a.RoyaltyFeeBps, a.MarketplaceFeeBps, royalties, marketplace, a.PaidFullRoyalty, missing,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: save attribution %s: %w", fillID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// CollectionRoyalties returns the royalty recipients registered for a collection.
func (s *Store) CollectionRoyalties(ctx context.Context, contract common.Address) ([]model.RoyaltyRecipient, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT recipients FROM collection_royalties WHERE contract = $1`, addr(contract)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("postgres: collection royalties: %w", err)
	}
	var recipients []model.RoyaltyRecipient
	if err := json.Unmarshal(raw, &recipients); err != nil {
		return nil, false, fmt.Errorf("postgres: decode collection royalties: %w", err)
	}
	return recipients, true, nil
}

// SetCollectionRoyalties replaces the registered royalty recipients of a collection.
func (s *Store) SetCollectionRoyalties(ctx context.Context, contract common.Address, recipients []model.RoyaltyRecipient) error {
	raw, err := json.Marshal(recipients)
	if err != nil {
		return fmt.Errorf("marshal royalties: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO collection_royalties (contract, recipients, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (contract) DO UPDATE SET recipients = EXCLUDED.recipients, updated_at = now()`,
		addr(contract), raw)
	if err != nil {
		return fmt.Errorf("postgres: set collection royalties: %w", err)
	}
	return nil
}
