package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"crixen/internal/types"
)

// MaintenanceOrderStore lists orders needing ledger repair or attention.
type MaintenanceOrderStore interface {
	ListPaidWithoutTicket(ctx context.Context, limit int) ([]types.Order, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]types.Order, error)
}

// GrantReplayer re-applies interrupted grants from the ledger.
type GrantReplayer interface {
	ReplayGrant(ctx context.Context, order *types.Order) error
}

// ArchivableTicketStore lists and removes tickets eligible for cold storage.
type ArchivableTicketStore interface {
	ListIssuedBefore(ctx context.Context, cutoff time.Time, limit int) ([]types.Ticket, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

// ArchivePutter uploads one archive object.
type ArchivePutter interface {
	Put(ctx context.Context, key string, data []byte) error
}

// MaintenanceConfig tunes the ledger maintenance run.
type MaintenanceConfig struct {
	StalePendingAge  time.Duration
	ArchiveAfter     time.Duration
	ArchiveBatchSize int
}

// MaintenanceResult summarizes one maintenance run.
type MaintenanceResult struct {
	GrantsReplayed  int
	StalePending    int
	TicketsArchived int
}

// LedgerMaintenance keeps the order ledger healthy: it replays grants for
// paid orders whose reconciliation was interrupted, reports long-pending
// orders for visibility, and moves old tickets to cold storage.
type LedgerMaintenance struct {
	orders   MaintenanceOrderStore
	replayer GrantReplayer
	tickets  ArchivableTicketStore
	archive  ArchivePutter
	metrics  SweepMetrics
	logger   *slog.Logger
	cfg      MaintenanceConfig
}

// NewLedgerMaintenance wires the maintenance job. archive and metrics may be
// nil; archival is skipped when no store is configured.
func NewLedgerMaintenance(
	orders MaintenanceOrderStore,
	replayer GrantReplayer,
	tickets ArchivableTicketStore,
	archive ArchivePutter,
	metrics SweepMetrics,
	cfg MaintenanceConfig,
	logger *slog.Logger,
) *LedgerMaintenance {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ArchiveBatchSize <= 0 {
		cfg.ArchiveBatchSize = 500
	}
	return &LedgerMaintenance{
		orders:   orders,
		replayer: replayer,
		tickets:  tickets,
		archive:  archive,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes the three maintenance tasks concurrently. Tasks are
// independent; a failure in one does not stop the others, and the first
// error is returned after all complete.
func (m *LedgerMaintenance) Run(ctx context.Context, now time.Time) (MaintenanceResult, error) {
	now = now.UTC()
	var result MaintenanceResult

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := m.replayGrants(gctx)
		result.GrantsReplayed = n
		return err
	})
	g.Go(func() error {
		n, err := m.reportStalePending(gctx, now)
		result.StalePending = n
		return err
	})
	g.Go(func() error {
		n, err := m.archiveTickets(gctx, now)
		result.TicketsArchived = n
		return err
	})

	err := g.Wait()

	m.logger.InfoContext(ctx, "ledger maintenance complete",
		slog.Int("grants_replayed", result.GrantsReplayed),
		slog.Int("stale_pending", result.StalePending),
		slog.Int("tickets_archived", result.TicketsArchived),
	)
	if m.metrics != nil {
		m.metrics.RecordSweep("replayed", result.GrantsReplayed)
		m.metrics.RecordSweep("stale_pending", result.StalePending)
		m.metrics.RecordSweep("archived", result.TicketsArchived)
	}
	return result, err
}

// replayGrants repairs paid orders that never got their audit ticket,
// re-applying the grant from the ledger. Per-order failures are isolated.
func (m *LedgerMaintenance) replayGrants(ctx context.Context) (int, error) {
	orders, err := m.orders.ListPaidWithoutTicket(ctx, m.cfg.ArchiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing unticketed orders: %w", err)
	}

	replayed := 0
	for i := range orders {
		if err := m.replayer.ReplayGrant(ctx, &orders[i]); err != nil {
			m.logger.ErrorContext(ctx, "grant replay failed",
				slog.String("order_id", orders[i].ID),
				slog.Any("error", err),
			)
			continue
		}
		replayed++
	}
	return replayed, nil
}

// reportStalePending surfaces pending orders past the stale age. Pending is a
// valid terminal state for abandoned checkouts, so these are logged for
// visibility, never cancelled.
func (m *LedgerMaintenance) reportStalePending(ctx context.Context, now time.Time) (int, error) {
	if m.cfg.StalePendingAge <= 0 {
		return 0, nil
	}

	stale, err := m.orders.ListStalePending(ctx, now.Add(-m.cfg.StalePendingAge), m.cfg.ArchiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing stale pending orders: %w", err)
	}

	for _, o := range stale {
		m.logger.WarnContext(ctx, "order pending past stale threshold",
			slog.String("order_id", o.ID),
			slog.String("provider", string(o.Provider)),
			slog.Time("created_at", o.CreatedAt),
		)
	}
	return len(stale), nil
}

// archiveTickets copies old tickets to cold storage as gzipped JSON lines and
// deletes them only after the upload succeeds.
func (m *LedgerMaintenance) archiveTickets(ctx context.Context, now time.Time) (int, error) {
	if m.archive == nil || m.cfg.ArchiveAfter <= 0 {
		return 0, nil
	}

	cutoff := now.Add(-m.cfg.ArchiveAfter)
	tickets, err := m.tickets.ListIssuedBefore(ctx, cutoff, m.cfg.ArchiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("listing archivable tickets: %w", err)
	}
	if len(tickets) == 0 {
		return 0, nil
	}

	data, err := encodeTicketArchive(tickets)
	if err != nil {
		return 0, err
	}

	key := fmt.Sprintf("tickets/%04d/%02d/%s.jsonl.gz", now.Year(), int(now.Month()), uuid.NewString())
	if err := m.archive.Put(ctx, key, data); err != nil {
		return 0, err
	}

	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	deleted, err := m.tickets.DeleteByIDs(ctx, ids)
	if err != nil {
		// The archive object exists; deletion retries on the next run and the
		// re-upload of the same rows is harmless.
		return 0, err
	}
	return int(deleted), nil
}

// encodeTicketArchive renders tickets as gzip-compressed JSON lines.
func encodeTicketArchive(tickets []types.Ticket) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	for _, t := range tickets {
		if err := enc.Encode(t); err != nil {
			return nil, fmt.Errorf("encoding ticket %s: %w", t.ID, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("closing archive writer: %w", err)
	}
	return buf.Bytes(), nil
}
