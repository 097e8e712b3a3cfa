package db

import (
	"context"
	"log/slog"
	"time"

	"crixen/internal/types"
)

// TicketRepo manages the append-only entitlement audit trail. Tickets are
// inserted once per reconciled payment and never updated; maintenance may
// archive and remove old rows after they are copied to cold storage.
type TicketRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewTicketRepo creates a TicketRepo backed by the given connection.
func NewTicketRepo(db DBTX, logger *slog.Logger) *TicketRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &TicketRepo{db: db, logger: logger}
}

// Insert appends a ticket for a reconciled order.
func (r *TicketRepo) Insert(ctx context.Context, t *types.Ticket) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO tickets (user_id, order_id, ticket_data, issued_at)
		 VALUES ($1, $2, $3, NOW())
		 RETURNING id, issued_at`,
		t.UserID, t.OrderID, t.Data,
	).Scan(&t.ID, &t.IssuedAt)
	if err != nil {
		return types.WrapAppError(types.ErrCodeInternalDatabase, "failed to insert ticket", err)
	}
	return nil
}

// ExistsForOrder reports whether an order already has an audit ticket.
func (r *TicketRepo) ExistsForOrder(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM tickets WHERE order_id = $1)`,
		orderID,
	).Scan(&exists)
	if err != nil {
		return false, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to check ticket existence", err)
	}
	return exists, nil
}

// ListIssuedBefore returns tickets older than the cutoff, oldest first, for
// archival to cold storage.
func (r *TicketRepo) ListIssuedBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.Ticket, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, order_id, ticket_data, issued_at
		 FROM tickets
		 WHERE issued_at < $1
		 ORDER BY issued_at
		 LIMIT $2`,
		cutoff, limit,
	)
	if err != nil {
		return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to list archivable tickets", err)
	}
	defer rows.Close()

	var tickets []types.Ticket
	for rows.Next() {
		var t types.Ticket
		if err := rows.Scan(&t.ID, &t.UserID, &t.OrderID, &t.Data, &t.IssuedAt); err != nil {
			return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to scan ticket row", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to iterate ticket rows", err)
	}
	return tickets, nil
}

// DeleteByIDs removes archived tickets after the archive object is durably
// stored. Returns the number of rows removed.
func (r *TicketRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM tickets WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to delete archived tickets", err)
	}
	return tag.RowsAffected(), nil
}
