package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"crixen/internal/types"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint
// violations, raised when two orders draw the same memo.
const pgUniqueViolation = "23505"

// OrderRepo manages the order ledger.
//
// Key invariants:
//   - Memos are globally unique; a collision surfaces as conflict_duplicate_memo
//     and the caller retries with a fresh memo.
//   - The pending -> paid transition is a single conditional UPDATE, so exactly
//     one webhook delivery wins no matter how many race.
type OrderRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewOrderRepo creates an OrderRepo backed by the given connection (pool or
// transaction).
func NewOrderRepo(db DBTX, logger *slog.Logger) *OrderRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderRepo{db: db, logger: logger}
}

// Create inserts a new pending order. A memo collision returns
// conflict_duplicate_memo so the caller can mint a new token and retry.
func (r *OrderRepo) Create(ctx context.Context, o *types.Order) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO orders (user_id, memo, amount, status, item_id, provider, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, created_at`,
		o.UserID, o.Memo, o.Amount, types.OrderPending, o.ItemID, o.Provider,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return types.WrapAppError(types.ErrCodeConflictDuplicateMemo,
				"order memo already exists", err)
		}
		return types.WrapAppError(types.ErrCodeInternalDatabase, "failed to create order", err)
	}
	o.Status = types.OrderPending
	return nil
}

// FindByMemo looks up an order by its correlation token.
func (r *OrderRepo) FindByMemo(ctx context.Context, memo string) (*types.Order, error) {
	var o types.Order
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, memo, amount, status, item_id, provider, created_at, paid_at
		 FROM orders
		 WHERE memo = $1`,
		memo,
	).Scan(&o.ID, &o.UserID, &o.Memo, &o.Amount, &o.Status, &o.ItemID, &o.Provider, &o.CreatedAt, &o.PaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "no order matches the given memo")
		}
		return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to look up order", err)
	}
	return &o, nil
}

// MarkPaid applies the pending -> paid transition for the given order.
//
// The UPDATE is conditional on status = 'pending', so concurrent webhook
// deliveries cannot double-apply: the first caller gets fresh = true, every
// later caller gets fresh = false and treats the event as already processed.
func (r *OrderRepo) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (fresh bool, err error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE orders
		 SET status = $1,
		     paid_at = $2
		 WHERE id = $3
		   AND status = $4`,
		types.OrderPaid, paidAt, orderID, types.OrderPending,
	)
	if err != nil {
		return false, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to mark order paid", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListPaidWithoutTicket returns paid orders that have no ticket row, used by
// the grant-replay maintenance sweep to repair interrupted reconciliations.
func (r *OrderRepo) ListPaidWithoutTicket(ctx context.Context, limit int) ([]types.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT o.id, o.user_id, o.memo, o.amount, o.status, o.item_id, o.provider, o.created_at, o.paid_at
		 FROM orders o
		 LEFT JOIN tickets t ON t.order_id = o.id
		 WHERE o.status = $1
		   AND t.id IS NULL
		 ORDER BY o.paid_at
		 LIMIT $2`,
		types.OrderPaid, limit,
	)
	if err != nil {
		return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to list unticketed orders", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// ListStalePending returns pending orders created before the cutoff. Pending
// is a terminal state for abandoned checkouts, so these rows are reported for
// visibility rather than cancelled.
func (r *OrderRepo) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]types.Order, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, memo, amount, status, item_id, provider, created_at, paid_at
		 FROM orders
		 WHERE status = $1
		   AND created_at < $2
		 ORDER BY created_at
		 LIMIT $3`,
		types.OrderPending, cutoff, limit,
	)
	if err != nil {
		return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to list stale pending orders", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func scanOrders(rows pgx.Rows) ([]types.Order, error) {
	var orders []types.Order
	for rows.Next() {
		var o types.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Memo, &o.Amount, &o.Status, &o.ItemID, &o.Provider, &o.CreatedAt, &o.PaidAt); err != nil {
			return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to scan order row", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to iterate order rows", err)
	}
	return orders, nil
}
