package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"orderScope/internal/model"
)

// lockMakers serializes nonce invalidation against order inserts for the
// same makers until tx ends. Keys are taken in sorted order.
func lockMakers(ctx context.Context, tx pgx.Tx, keys []string) error {
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 && keys[i-1] == k {
			continue
		}
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, k); err != nil {
			return fmt.Errorf("lock maker %s: %w", k, err)
		}
	}
	return nil
}

func makerLockKey(kind model.OrderKind, maker common.Address) string {
	return string(kind) + ":" + addr(maker)
}

// MinNonce returns the maker's bulk-cancel floor, zero when none is recorded.
func (s *Store) MinNonce(ctx context.Context, kind model.OrderKind, maker common.Address) (*big.Int, error) {
	var v *string
	err := s.pool.QueryRow(ctx,
		`SELECT min_nonce::text FROM min_nonces WHERE kind = $1 AND maker = $2`, string(kind), addr(maker),
	).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("postgres: min nonce: %w", err)
	}
	if n := parseNumeric(v); n != nil {
		return n, nil
	}
	return new(big.Int), nil
}

// IsNonceCancelled reports whether a single nonce was cancelled.
func (s *Store) IsNonceCancelled(ctx context.Context, kind model.OrderKind, maker common.Address, nonce *big.Int) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM nonce_cancellations WHERE kind = $1 AND maker = $2 AND nonce = $3::numeric)`,
		string(kind), addr(maker), numeric(nonce),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: nonce cancelled: %w", err)
	}
	return exists, nil
}

// CancelOrder cancels one order unless it is terminal.
func (s *Store) CancelOrder(ctx context.Context, id string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE orders SET fillability_status = 'cancelled', updated_at = now()
		WHERE id = $1 AND fillability_status NOT IN `+terminalStatuses+`
		RETURNING id`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: cancel order %s: %w", id, err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: cancel order %s: %w", id, err)
	}
	return ids, nil
}

// FillOrder marks one order filled unless it is terminal.
func (s *Store) FillOrder(ctx context.Context, id string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE orders SET fillability_status = 'filled', updated_at = now()
		WHERE id = $1 AND fillability_status NOT IN `+terminalStatuses+`
		RETURNING id`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: fill order %s: %w", id, err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: fill order %s: %w", id, err)
	}
	return ids, nil
}

// CancelNonce records a cancelled nonce and cancels the orders using it.
func (s *Store) CancelNonce(ctx context.Context, kind model.OrderKind, maker common.Address, nonce *big.Int) ([]string, error) {
	var ids []string
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockMakers(ctx, tx, []string{makerLockKey(kind, maker)}); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO nonce_cancellations (kind, maker, nonce) VALUES ($1, $2, $3::numeric)
			ON CONFLICT DO NOTHING`, string(kind), addr(maker), numeric(nonce)); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			UPDATE orders SET fillability_status = 'cancelled', updated_at = now()
			WHERE kind = $1 AND maker = $2 AND nonce = $3::numeric
				AND fillability_status NOT IN `+terminalStatuses+`
			RETURNING id`, string(kind), addr(maker), numeric(nonce))
		if err != nil {
			return err
		}
		ids, err = collectIDs(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: cancel nonce: %w", err)
	}
	return ids, nil
}

// BulkCancel raises the maker's min nonce and cancels every active order
// below it in the same transaction. The floor never moves down.
func (s *Store) BulkCancel(ctx context.Context, kind model.OrderKind, maker common.Address, minNonce *big.Int) ([]string, error) {
	var ids []string
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockMakers(ctx, tx, []string{makerLockKey(kind, maker)}); err != nil {
			return err
		}
		var floor string
		if err := tx.QueryRow(ctx, `
			INSERT INTO min_nonces (kind, maker, min_nonce, updated_at) VALUES ($1, $2, $3::numeric, now())
			ON CONFLICT (kind, maker) DO UPDATE
			SET min_nonce = GREATEST(min_nonces.min_nonce, EXCLUDED.min_nonce), updated_at = now()
			RETURNING min_nonce::text`, string(kind), addr(maker), numeric(minNonce),
		).Scan(&floor); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			UPDATE orders SET fillability_status = 'cancelled', updated_at = now()
			WHERE kind = $1 AND maker = $2 AND nonce < $3::numeric
				AND fillability_status IN `+activeStatuses+`
			RETURNING id`, string(kind), addr(maker), floor)
		if err != nil {
			return err
		}
		ids, err = collectIDs(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: bulk cancel: %w", err)
	}
	return ids, nil
}

// FillNonce marks orders that spent a nonce as filled.
func (s *Store) FillNonce(ctx context.Context, kind model.OrderKind, maker common.Address, nonce *big.Int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE orders SET fillability_status = 'filled', updated_at = now()
		WHERE kind = $1 AND maker = $2 AND nonce = $3::numeric
			AND fillability_status NOT IN `+terminalStatuses+`
		RETURNING id`, string(kind), addr(maker), numeric(nonce))
	if err != nil {
		return nil, fmt.Errorf("postgres: fill nonce: %w", err)
	}
	ids, err := collectIDs(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: fill nonce: %w", err)
	}
	return ids, nil
}
