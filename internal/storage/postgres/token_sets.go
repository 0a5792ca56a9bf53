package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"orderScope/internal/model"
)

func (s *Store) TokenSetExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM token_sets WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: token set exists %s: %w", id, err)
	}
	return exists, nil
}

// SaveTokenSet writes a token set and its members once. Membership rows are
// only written by the transaction that created the set.
func (s *Store) SaveTokenSet(ctx context.Context, set model.TokenSet) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO token_sets (id, kind, contract, schema_hash) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`,
			set.ID, string(set.Kind), addr(set.Contract), set.SchemaHash.Hex(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 || len(set.Items) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, tokenID := range set.Items {
			batch.Queue(`
				INSERT INTO token_set_tokens (token_set_id, contract, token_id) VALUES ($1, $2, $3::numeric)
				ON CONFLICT DO NOTHING`, set.ID, addr(set.Contract), tokenID.String())
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres: save token set %s: %w", set.ID, err)
	}
	return nil
}

// NonFlaggedTokens lists the tokens of a collection that are not flagged.
func (s *Store) NonFlaggedTokens(ctx context.Context, contract common.Address) ([]*big.Int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT token_id::text FROM token_flags
		WHERE contract = $1 AND NOT is_flagged
		ORDER BY token_id`, addr(contract))
	if err != nil {
		return nil, fmt.Errorf("postgres: non-flagged tokens: %w", err)
	}
	defer rows.Close()

	var ids []*big.Int
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("postgres: scan token id: %w", err)
		}
		if id := parseNumeric(&v); id != nil {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// SetTokenFlag records whether a token is flagged.
func (s *Store) SetTokenFlag(ctx context.Context, contract common.Address, tokenID *big.Int, flagged bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO token_flags (contract, token_id, is_flagged, updated_at) VALUES ($1, $2::numeric, $3, now())
		ON CONFLICT (contract, token_id) DO UPDATE SET is_flagged = EXCLUDED.is_flagged, updated_at = now()`,
		addr(contract), tokenID.String(), flagged)
	if err != nil {
		return fmt.Errorf("postgres: set token flag: %w", err)
	}
	return nil
}
