package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/fleetdesk/fleetdesk/internal/shared"
)

// QuotationReminderJob finds purchase requests that were sent to the shore
// office but never received a completed quotation.
type QuotationReminderJob struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
	Audit  *shared.AuditLogger
	clock  func() time.Time
}

// NewQuotationReminderJob initialises the stale-quotation handler.
func NewQuotationReminderJob(pool *pgxpool.Pool, logger *slog.Logger, audit *shared.AuditLogger) *QuotationReminderJob {
	return &QuotationReminderJob{
		Pool:   pool,
		Logger: logger,
		Audit:  audit,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

type staleRequest struct {
	ID         string
	Reference  string
	VesselName string
	SentAt     time.Time
}

// Handle executes the stale-quotation scan.
func (j *QuotationReminderJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("quotation reminder: handler not configured")
	}
	if j.Pool == nil {
		return errors.New("quotation reminder: pool not configured")
	}
	var payload QuotationReminderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.StaleAfterHours <= 0 {
		payload.StaleAfterHours = 168
	}

	now := j.now()
	cutoff := now.Add(-time.Duration(payload.StaleAfterHours) * time.Hour)
	logger := j.logger().With(slog.Time("cutoff", cutoff))
	logger.Info("starting stale quotation scan")

	rows, err := j.Pool.Query(ctx, `SELECT id, reference, vessel_name, quotation_sent_at
FROM purchase_requests
WHERE sent_to_quotation = TRUE AND quotation_completed_at IS NULL AND quotation_sent_at < $1
ORDER BY quotation_sent_at`, cutoff)
	if err != nil {
		logger.Error("scan failed", slog.Any("error", err))
		return err
	}
	defer rows.Close()

	var stale []staleRequest
	for rows.Next() {
		var req staleRequest
		if err := rows.Scan(&req.ID, &req.Reference, &req.VesselName, &req.SentAt); err != nil {
			return err
		}
		stale = append(stale, req)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, req := range stale {
		req := req
		g.Go(func() error {
			logger.Warn("quotation overdue",
				slog.String("reference", req.Reference),
				slog.String("vessel", req.VesselName),
				slog.Duration("waiting", now.Sub(req.SentAt)),
			)
			if j.Audit == nil {
				return nil
			}
			return j.Audit.Record(gctx, shared.AuditLog{
				ActorID:  "system",
				Action:   "pr.quotation_overdue",
				Entity:   "purchase_request",
				EntityID: req.ID,
				Meta:     map[string]any{"sentAt": req.SentAt, "cutoff": cutoff},
				At:       now,
			})
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("reminder recording failed", slog.Any("error", err))
		return err
	}

	logger.Info("completed stale quotation scan", slog.Int("stale", len(stale)))
	return nil
}

func (j *QuotationReminderJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskTypeQuotationReminder))
	}
	return slog.Default().With(slog.String("job", TaskTypeQuotationReminder))
}

func (j *QuotationReminderJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
