package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"orderScope/internal/model"
	"orderScope/internal/orderbook"
)

const terminalStatuses = `('cancelled', 'filled')`

const activeStatuses = `('fillable', 'no-balance', 'no-approval', 'no-balance-no-approval')`

const orderSelectCols = `id, kind, side, maker, taker, contract, token_id::text, quantity::text,
	price::text, value::text, currency, normalized_value::text, token_set_id, contract_kind,
	operator, fillability_status, approval_status, nonce::text, valid_from, valid_to, fee_bps,
	fee_breakdown, signature, source_block, source_log_index, source_timestamp, source_tx_hash, raw_data`

const insertOrderSQL = `
	INSERT INTO orders (
		id, kind, side, maker, taker, contract, token_id, quantity, price, value, currency,
		normalized_value, token_set_id, contract_kind, operator, fillability_status, approval_status,
		nonce, valid_from, valid_to, fee_bps, fee_breakdown, signature,
		source_block, source_log_index, source_timestamp, source_tx_hash, raw_data, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11,
		$12::numeric, $13, $14, $15, $16, $17,
		$18::numeric, $19, $20, $21, $22, $23,
		$24, $25, $26, $27, $28, now(), now()
	)
	ON CONFLICT (id) DO NOTHING
	RETURNING id`

func orderArgs(o *model.Order) ([]any, error) {
	fees, err := json.Marshal(o.FeeBreakdown)
	if err != nil {
		return nil, fmt.Errorf("marshal fee breakdown: %w", err)
	}
	var raw []byte
	if len(o.RawData) > 0 {
		raw = o.RawData
	}
	var contractKind *string
	if o.ContractKind != "" {
		v := string(o.ContractKind)
		contractKind = &v
	}
	var srcBlock, srcLog, srcTs *int64
	var srcTx *string
	if o.Source != nil {
		b, l, ts := int64(o.Source.BlockNumber), int64(o.Source.LogIndex), int64(o.Source.Timestamp)
		srcBlock, srcLog, srcTs = &b, &l, &ts
		if o.Source.TxHash != "" {
			srcTx = &o.Source.TxHash
		}
	}
	return []any{
		o.ID, string(o.Kind), string(o.Side), addr(o.Maker), addr(o.Taker), addr(o.Contract),
		numeric(o.TokenID), numeric(orOne(o.Quantity)), numeric(orZero(o.Price)), numeric(orZero(o.Value)), addr(o.Currency),
		o.NormalizedValue.String(), o.TokenSetID, contractKind, addr(o.Operator),
		string(o.FillabilityStatus), string(o.ApprovalStatus),
		numeric(o.Nonce), int64(o.ValidFrom), int64(o.ValidTo), o.FeeBps, fees, o.Signature,
		srcBlock, srcLog, srcTs, srcTx, raw,
	}, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func orOne(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(1)
	}
	return v
}

// OrderExists reports whether an order id is stored.
func (s *Store) OrderExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: order exists %s: %w", id, err)
	}
	return exists, nil
}

// cancelStaleNoncesSQL cancels freshly inserted rows whose nonce fell below
// the maker's floor or was cancelled after the order was verified.
const cancelStaleNoncesSQL = `
	UPDATE orders o SET fillability_status = 'cancelled', updated_at = now()
	WHERE o.id = ANY($1) AND o.nonce IS NOT NULL
		AND o.fillability_status IN ` + activeStatuses + `
		AND (
			EXISTS (SELECT 1 FROM min_nonces m
				WHERE m.kind = o.kind AND m.maker = o.maker AND o.nonce < m.min_nonce)
			OR EXISTS (SELECT 1 FROM nonce_cancellations c
				WHERE c.kind = o.kind AND c.maker = o.maker AND c.nonce = o.nonce)
		)
	RETURNING o.id`

// InsertOrders inserts the batch in one transaction, skipping existing ids.
// Maker locks are held so a concurrent bulk cancel either lands before the
// nonce re-check or sees the inserted rows.
func (s *Store) InsertOrders(ctx context.Context, orders []*model.Order) ([]string, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	batch := &pgx.Batch{}
	var keys []string
	for _, o := range orders {
		args, err := orderArgs(o)
		if err != nil {
			return nil, fmt.Errorf("postgres: order %s: %w", o.ID, err)
		}
		batch.Queue(insertOrderSQL, args...)
		if o.Nonce != nil {
			keys = append(keys, makerLockKey(o.Kind, o.Maker))
		}
	}

	var inserted, cancelled []string
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		inserted, cancelled = nil, nil
		if err := lockMakers(ctx, tx, keys); err != nil {
			return err
		}
		br := tx.SendBatch(ctx, batch)
		for range orders {
			var id string
			if err := br.QueryRow().Scan(&id); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					continue
				}
				br.Close()
				return err
			}
			inserted = append(inserted, id)
		}
		if err := br.Close(); err != nil {
			return err
		}
		if len(keys) == 0 || len(inserted) == 0 {
			return nil
		}
		rows, err := tx.Query(ctx, cancelStaleNoncesSQL, inserted)
		if err != nil {
			return err
		}
		cancelled, err = collectIDs(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: insert orders: %w", err)
	}
	if len(cancelled) > 0 {
		stale := make(map[string]struct{}, len(cancelled))
		for _, id := range cancelled {
			stale[id] = struct{}{}
		}
		for _, o := range orders {
			if _, ok := stale[o.ID]; ok {
				o.FillabilityStatus = model.StatusCancelled
			}
		}
	}
	return inserted, nil
}

// ApplyStateOrder applies state-based listing state under a row lock. A
// first insert that loses a race to a concurrent writer re-reads the winning
// row and resolves against it.
func (s *Store) ApplyStateOrder(ctx context.Context, o *model.Order) (orderbook.Resolution, error) {
	var resolution orderbook.Resolution
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for attempt := 0; ; attempt++ {
			stored, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderSelectCols+` FROM orders WHERE id = $1 FOR UPDATE`, o.ID))
			if err != nil && !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			if errors.Is(err, pgx.ErrNoRows) {
				stored = nil
			}
			resolution = orderbook.ResolveState(stored, o)
			if resolution != orderbook.ResolutionNew {
				return applyResolution(ctx, tx, resolution, o)
			}
			args, err := orderArgs(o)
			if err != nil {
				return err
			}
			var id string
			err = tx.QueryRow(ctx, insertOrderSQL, args...).Scan(&id)
			if !errors.Is(err, pgx.ErrNoRows) || attempt > 0 {
				return err
			}
		}
	})
	if err != nil {
		return "", fmt.Errorf("postgres: apply state order %s: %w", o.ID, err)
	}
	return resolution, nil
}

func applyResolution(ctx context.Context, tx pgx.Tx, resolution orderbook.Resolution, o *model.Order) error {
	if resolution != orderbook.ResolutionReprice {
		return nil
	}
	fees, err := json.Marshal(o.FeeBreakdown)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE orders SET
			price = $2::numeric, value = $3::numeric, currency = $4, normalized_value = $5::numeric,
			fee_bps = $6, fee_breakdown = $7, fillability_status = $8, approval_status = $9,
			source_block = $10, source_log_index = $11, source_timestamp = $12, source_tx_hash = $13,
			raw_data = $14, updated_at = now()
		WHERE id = $1`,
		o.ID, numeric(orZero(o.Price)), numeric(orZero(o.Value)), addr(o.Currency), o.NormalizedValue.String(),
		o.FeeBps, fees, string(o.FillabilityStatus), string(o.ApprovalStatus),
		int64(o.Source.BlockNumber), int64(o.Source.LogIndex), int64(o.Source.Timestamp), o.Source.TxHash,
		[]byte(o.RawData),
	)
	return err
}

// UpdateStatus changes the status fields of a non-terminal order.
func (s *Store) UpdateStatus(ctx context.Context, id string, status model.FillabilityStatus, approval model.ApprovalStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET fillability_status = $2, approval_status = $3, updated_at = now()
		WHERE id = $1 AND fillability_status NOT IN `+terminalStatuses,
		id, string(status), string(approval),
	)
	if err != nil {
		return false, fmt.Errorf("postgres: update order status %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetOrder loads one order.
func (s *Store) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx, `SELECT `+orderSelectCols+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// OrdersForRevalidation returns live orders, least recently updated first.
func (s *Store) OrdersForRevalidation(ctx context.Context, maker *common.Address, limit int) ([]*model.Order, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT ` + orderSelectCols + ` FROM orders WHERE fillability_status IN ` + activeStatuses
	args := []any{}
	if maker != nil {
		query += ` AND maker = $1`
		args = append(args, addr(*maker))
	}
	query += fmt.Sprintf(` ORDER BY updated_at ASC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: orders for revalidation: %w", err)
	}
	defer rows.Close()

	var orders []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// MaxOrderNonce returns the highest nonce among a maker's stored orders.
func (s *Store) MaxOrderNonce(ctx context.Context, kind model.OrderKind, maker common.Address) (*big.Int, error) {
	var max *string
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(nonce)::text FROM orders WHERE kind = $1 AND maker = $2`, string(kind), addr(maker),
	).Scan(&max)
	if err != nil {
		return nil, fmt.Errorf("postgres: max order nonce: %w", err)
	}
	return parseNumeric(max), nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o                                           model.Order
		kind, side, maker, taker, contract          string
		currency, operator, status, approval        string
		tokenID, quantity, price, value, normalized *string
		nonce, contractKind, srcTx                  *string
		validFrom, validTo                          int64
		fees, raw                                   []byte
		srcBlock, srcLog, srcTs                     *int64
	)
	err := row.Scan(
		&o.ID, &kind, &side, &maker, &taker, &contract, &tokenID, &quantity,
		&price, &value, &currency, &normalized, &o.TokenSetID, &contractKind,
		&operator, &status, &approval, &nonce, &validFrom, &validTo, &o.FeeBps,
		&fees, &o.Signature, &srcBlock, &srcLog, &srcTs, &srcTx, &raw,
	)
	if err != nil {
		return nil, err
	}
	o.Kind = model.OrderKind(kind)
	o.Side = model.Side(side)
	o.Maker = common.HexToAddress(maker)
	o.Taker = common.HexToAddress(taker)
	o.Contract = common.HexToAddress(contract)
	o.Currency = common.HexToAddress(currency)
	o.Operator = common.HexToAddress(operator)
	o.TokenID = parseNumeric(tokenID)
	o.Quantity = parseNumeric(quantity)
	o.Price = parseNumeric(price)
	o.Value = parseNumeric(value)
	o.Nonce = parseNumeric(nonce)
	if normalized != nil {
		if d, err := decimal.NewFromString(*normalized); err == nil {
			o.NormalizedValue = d
		}
	}
	if contractKind != nil {
		o.ContractKind = model.ContractKind(*contractKind)
	}
	o.FillabilityStatus = model.FillabilityStatus(status)
	o.ApprovalStatus = model.ApprovalStatus(approval)
	o.ValidFrom = uint64(validFrom)
	o.ValidTo = uint64(validTo)
	if len(fees) > 0 {
		if err := json.Unmarshal(fees, &o.FeeBreakdown); err != nil {
			return nil, fmt.Errorf("decode fee breakdown: %w", err)
		}
	}
	if srcBlock != nil {
		o.Source = &model.OrderingKey{BlockNumber: uint64(*srcBlock)}
		if srcLog != nil {
			o.Source.LogIndex = uint64(*srcLog)
		}
		if srcTs != nil {
			o.Source.Timestamp = uint64(*srcTs)
		}
		if srcTx != nil {
			o.Source.TxHash = *srcTx
		}
	}
	o.RawData = raw
	return &o, nil
}
