package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fleetdesk/fleetdesk/internal/platform/db"
)

// RequestFilter narrows purchase request listings.
type RequestFilter struct {
	VesselID       string
	CreatedByID    string
	MasterApproved *bool
}

// OrderFilter narrows purchase order listings.
type OrderFilter struct {
	CreatorID         string
	PurchaseRequestID string
}

// DetailsPatch carries the PATCH-style simple-field update; only non-nil
// fields are written.
type DetailsPatch struct {
	CustomReference *string
	Category        *Category
	Priority        *Priority
	Notes           *string
}

// Empty reports whether the patch touches nothing.
func (p DetailsPatch) Empty() bool {
	return p.CustomReference == nil && p.Category == nil && p.Priority == nil && p.Notes == nil
}

// LineQuotationUpdate applies shore-side quotation data to one line item.
// Nil fields clear the corresponding column.
type LineQuotationUpdate struct {
	ID                string
	QuotedPrice       decimal.NullDecimal
	SupplierName      *string
	Remark            *string
	UnavailableReason *UnavailableReason
	WasUnavailable    bool
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RepositoryPort describes the read side used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPR(ctx context.Context, id string) (PurchaseRequest, error)
	ListPRs(ctx context.Context, filter RequestFilter) ([]PurchaseRequest, error)
	GetPO(ctx context.Context, id string) (PurchaseOrder, error)
	ListPOs(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error)
	OrderCountForPR(ctx context.Context, prID string) (int, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	NextSequence(ctx context.Context, prefix string, year int) (int64, error)
	InsertPR(ctx context.Context, pr PurchaseRequest) error
	InsertPRLineItem(ctx context.Context, item PRLineItem) error
	UpdateDetails(ctx context.Context, id string, patch DetailsPatch) error
	SetApproval(ctx context.Context, id string, approved bool, byID *string, at *time.Time) error
	MarkSentToQuotation(ctx context.Context, id, byID string, at time.Time) error
	UpdateLineQuotation(ctx context.Context, update LineQuotationUpdate) error
	CompleteQuotation(ctx context.Context, id, remark string, at time.Time) error
	DeletePRLineItems(ctx context.Context, prID string) error
	DeletePR(ctx context.Context, id string) error
	LockLineItems(ctx context.Context, prID string, ids []string) ([]PRLineItem, error)
	InsertPO(ctx context.Context, po PurchaseOrder) error
	InsertPOLineItem(ctx context.Context, line POLineItem) error
	UpdatePOStatus(ctx context.Context, id string, status OrderStatus, at time.Time) error
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const prColumns = `id, reference, COALESCE(custom_reference,''), category, priority, COALESCE(notes,''),
created_by_id, created_by_name, vessel_id, vessel_name,
master_approved, master_approved_by_id, master_approved_at,
sent_to_quotation, quotation_sent_by_id, quotation_sent_at, quotation_completed_at, COALESCE(quotation_remark,''),
created_at, updated_at`

const prLineColumns = `i.id, i.pr_id, i.name, i.quantity, COALESCE(i.unit,''), COALESCE(i.reference,''), i.rob, i.images,
i.quoted_price, i.supplier_name, i.remark, i.unavailable_reason, i.was_unavailable, i.position,
COALESCE((SELECT SUM(l.validated_quantity) FROM po_line_items l
	JOIN purchase_orders o ON o.id = l.po_id
	WHERE l.pr_product_id = i.id AND o.status <> 'CANCELLED'), 0)`

func scanPR(row pgx.Row, pr *PurchaseRequest) error {
	return row.Scan(&pr.ID, &pr.Reference, &pr.CustomReference, &pr.Category, &pr.Priority, &pr.Notes,
		&pr.CreatedByID, &pr.CreatedByName, &pr.VesselID, &pr.VesselName,
		&pr.MasterApproved, &pr.MasterApprovedByID, &pr.MasterApprovedAt,
		&pr.SentToQuotation, &pr.QuotationSentByID, &pr.QuotationSentAt, &pr.QuotationCompletedAt, &pr.QuotationRemark,
		&pr.CreatedAt, &pr.UpdatedAt)
}

func scanPRLine(rows pgx.Rows, item *PRLineItem) error {
	return rows.Scan(&item.ID, &item.RequestID, &item.Name, &item.Quantity, &item.Unit, &item.Reference,
		&item.ROB, &item.Images, &item.QuotedPrice, &item.SupplierName, &item.Remark,
		&item.UnavailableReason, &item.WasUnavailable, &item.Position, &item.OrderedQuantity)
}

// GetPR returns one purchase request with line items and derived ordered
// quantities.
func (r *Repository) GetPR(ctx context.Context, id string) (PurchaseRequest, error) {
	var pr PurchaseRequest
	err := scanPR(r.pool.QueryRow(ctx, `SELECT `+prColumns+` FROM purchase_requests WHERE id=$1`, id), &pr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseRequest{}, ErrNotFound
		}
		return PurchaseRequest{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT `+prLineColumns+` FROM pr_line_items i WHERE i.pr_id=$1 ORDER BY i.position, i.id`, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item PRLineItem
		if err := scanPRLine(rows, &item); err != nil {
			return PurchaseRequest{}, err
		}
		pr.Products = append(pr.Products, item)
	}
	if err := rows.Err(); err != nil {
		return PurchaseRequest{}, err
	}
	return pr, nil
}

// ListPRs returns purchase requests matching the filter, newest first.
func (r *Repository) ListPRs(ctx context.Context, filter RequestFilter) ([]PurchaseRequest, error) {
	sql := `SELECT ` + prColumns + ` FROM purchase_requests WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.VesselID != "" {
		sql += ` AND vessel_id = $` + itoa(argNum)
		args = append(args, filter.VesselID)
		argNum++
	}
	if filter.CreatedByID != "" {
		sql += ` AND created_by_id = $` + itoa(argNum)
		args = append(args, filter.CreatedByID)
		argNum++
	}
	if filter.MasterApproved != nil {
		sql += ` AND master_approved = $` + itoa(argNum)
		args = append(args, *filter.MasterApproved)
		argNum++
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prs []PurchaseRequest
	var ids []string
	for rows.Next() {
		var pr PurchaseRequest
		if err := scanPR(rows, &pr); err != nil {
			return nil, err
		}
		prs = append(prs, pr)
		ids = append(ids, pr.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		return prs, nil
	}

	lineRows, err := r.pool.Query(ctx, `SELECT `+prLineColumns+` FROM pr_line_items i WHERE i.pr_id = ANY($1) ORDER BY i.position, i.id`, ids)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()

	byID := make(map[string]int, len(prs))
	for idx, pr := range prs {
		byID[pr.ID] = idx
	}
	for lineRows.Next() {
		var item PRLineItem
		if err := scanPRLine(lineRows, &item); err != nil {
			return nil, err
		}
		if idx, ok := byID[item.RequestID]; ok {
			prs[idx].Products = append(prs[idx].Products, item)
		}
	}
	if err := lineRows.Err(); err != nil {
		return nil, err
	}
	return prs, nil
}

const poColumns = `id, reference, purchase_request_id, created_by_id, COALESCE(notes,''), status, created_at, updated_at`

func scanPO(row pgx.Row, po *PurchaseOrder) error {
	return row.Scan(&po.ID, &po.Reference, &po.PurchaseRequestID, &po.CreatedByID, &po.Notes, &po.Status, &po.CreatedAt, &po.UpdatedAt)
}

// GetPO returns one purchase order with line items.
func (r *Repository) GetPO(ctx context.Context, id string) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := scanPO(r.pool.QueryRow(ctx, `SELECT `+poColumns+` FROM purchase_orders WHERE id=$1`, id), &po)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, po_id, name, original_quantity, validated_quantity, COALESCE(unit,''),
quoted_price, supplier_name, remark, pr_product_id
FROM po_line_items WHERE po_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line POLineItem
		if err := rows.Scan(&line.ID, &line.OrderID, &line.Name, &line.OriginalQuantity, &line.ValidatedQuantity,
			&line.Unit, &line.QuotedPrice, &line.SupplierName, &line.Remark, &line.PRProductID); err != nil {
			return PurchaseOrder{}, err
		}
		po.Products = append(po.Products, line)
	}
	if err := rows.Err(); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// ListPOs returns purchase orders matching the filter, newest first.
func (r *Repository) ListPOs(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error) {
	sql := `SELECT ` + poColumns + ` FROM purchase_orders WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.CreatorID != "" {
		sql += ` AND created_by_id = $` + itoa(argNum)
		args = append(args, filter.CreatorID)
		argNum++
	}
	if filter.PurchaseRequestID != "" {
		sql += ` AND purchase_request_id = $` + itoa(argNum)
		args = append(args, filter.PurchaseRequestID)
		argNum++
	}
	sql += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pos []PurchaseOrder
	for rows.Next() {
		var po PurchaseOrder
		if err := scanPO(rows, &po); err != nil {
			return nil, err
		}
		pos = append(pos, po)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for idx := range pos {
		full, err := r.GetPO(ctx, pos[idx].ID)
		if err != nil {
			return nil, err
		}
		pos[idx].Products = full.Products
	}
	return pos, nil
}

// OrderCountForPR counts purchase orders referencing the purchase request.
func (r *Repository) OrderCountForPR(ctx context.Context, prID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE purchase_request_id=$1`, prID).Scan(&count)
	return count, err
}

// NextSequence atomically advances the (prefix, year) counter and returns the
// new value. Concurrent creators serialize on the counter row, so references
// can never collide.
func (tx *txRepo) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	var seq int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO sequence_counters (prefix, year, last_seq) VALUES ($1, $2, 1)
ON CONFLICT (prefix, year) DO UPDATE SET last_seq = sequence_counters.last_seq + 1
RETURNING last_seq`, prefix, year).Scan(&seq)
	return seq, err
}

func (tx *txRepo) InsertPR(ctx context.Context, pr PurchaseRequest) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO purchase_requests
(id, reference, custom_reference, category, priority, notes,
 created_by_id, created_by_name, vessel_id, vessel_name,
 master_approved, sent_to_quotation, quotation_remark, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,FALSE,FALSE,'',$11,$11)`,
		pr.ID, pr.Reference, pr.CustomReference, pr.Category, pr.Priority, pr.Notes,
		pr.CreatedByID, pr.CreatedByName, pr.VesselID, pr.VesselName, pr.CreatedAt)
	return mapConflict(err)
}

func (tx *txRepo) InsertPRLineItem(ctx context.Context, item PRLineItem) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO pr_line_items
(id, pr_id, name, quantity, unit, reference, rob, images,
 quoted_price, supplier_name, remark, unavailable_reason, was_unavailable, position)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		item.ID, item.RequestID, item.Name, item.Quantity, item.Unit, item.Reference, item.ROB, item.Images,
		item.QuotedPrice, item.SupplierName, item.Remark, item.UnavailableReason, item.WasUnavailable, item.Position)
	return err
}

// UpdateDetails writes only the fields present in the patch.
func (tx *txRepo) UpdateDetails(ctx context.Context, id string, patch DetailsPatch) error {
	sql := `UPDATE purchase_requests SET updated_at=NOW()`
	args := []any{}
	argNum := 1

	if patch.CustomReference != nil {
		sql += `, custom_reference = $` + itoa(argNum)
		args = append(args, *patch.CustomReference)
		argNum++
	}
	if patch.Category != nil {
		sql += `, category = $` + itoa(argNum)
		args = append(args, *patch.Category)
		argNum++
	}
	if patch.Priority != nil {
		sql += `, priority = $` + itoa(argNum)
		args = append(args, *patch.Priority)
		argNum++
	}
	if patch.Notes != nil {
		sql += `, notes = $` + itoa(argNum)
		args = append(args, *patch.Notes)
		argNum++
	}
	sql += ` WHERE id = $` + itoa(argNum)
	args = append(args, id)

	_, err := tx.tx.Exec(ctx, sql, args...)
	return err
}

// SetApproval writes the approval flag and both audit fields in one statement
// so they can never diverge.
func (tx *txRepo) SetApproval(ctx context.Context, id string, approved bool, byID *string, at *time.Time) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_requests
SET master_approved=$1, master_approved_by_id=$2, master_approved_at=$3, updated_at=NOW()
WHERE id=$4`, approved, byID, at, id)
	return err
}

func (tx *txRepo) MarkSentToQuotation(ctx context.Context, id, byID string, at time.Time) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_requests
SET sent_to_quotation=TRUE, quotation_sent_by_id=$1, quotation_sent_at=$2, updated_at=NOW()
WHERE id=$3`, byID, at, id)
	return err
}

func (tx *txRepo) UpdateLineQuotation(ctx context.Context, update LineQuotationUpdate) error {
	_, err := tx.tx.Exec(ctx, `UPDATE pr_line_items
SET quoted_price=$1, supplier_name=$2, remark=$3, unavailable_reason=$4, was_unavailable=$5
WHERE id=$6`,
		update.QuotedPrice, update.SupplierName, update.Remark, update.UnavailableReason, update.WasUnavailable, update.ID)
	return err
}

func (tx *txRepo) CompleteQuotation(ctx context.Context, id, remark string, at time.Time) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_requests
SET quotation_completed_at=$1, quotation_remark=$2, updated_at=NOW()
WHERE id=$3`, at, remark, id)
	return err
}

func (tx *txRepo) DeletePRLineItems(ctx context.Context, prID string) error {
	_, err := tx.tx.Exec(ctx, `DELETE FROM pr_line_items WHERE pr_id=$1`, prID)
	return err
}

func (tx *txRepo) DeletePR(ctx context.Context, id string) error {
	_, err := tx.tx.Exec(ctx, `DELETE FROM purchase_requests WHERE id=$1`, id)
	return err
}

// LockLineItems takes row locks on the selected line items and recomputes
// each ordered quantity under the lock, so competing compositions against the
// same lines serialize instead of jointly over-allocating.
func (tx *txRepo) LockLineItems(ctx context.Context, prID string, ids []string) ([]PRLineItem, error) {
	rows, err := tx.tx.Query(ctx, `SELECT i.id, i.pr_id, i.name, i.quantity, COALESCE(i.unit,''), COALESCE(i.reference,''),
i.rob, i.images, i.quoted_price, i.supplier_name, i.remark, i.unavailable_reason, i.was_unavailable, i.position
FROM pr_line_items i WHERE i.pr_id=$1 AND i.id = ANY($2)
ORDER BY i.position, i.id
FOR UPDATE`, prID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []PRLineItem
	for rows.Next() {
		var item PRLineItem
		if err := rows.Scan(&item.ID, &item.RequestID, &item.Name, &item.Quantity, &item.Unit, &item.Reference,
			&item.ROB, &item.Images, &item.QuotedPrice, &item.SupplierName, &item.Remark,
			&item.UnavailableReason, &item.WasUnavailable, &item.Position); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for idx := range items {
		err := tx.tx.QueryRow(ctx, `SELECT COALESCE(SUM(l.validated_quantity), 0)
FROM po_line_items l
JOIN purchase_orders o ON o.id = l.po_id
WHERE l.pr_product_id=$1 AND o.status <> 'CANCELLED'`, items[idx].ID).Scan(&items[idx].OrderedQuantity)
		if err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (tx *txRepo) InsertPO(ctx context.Context, po PurchaseOrder) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO purchase_orders
(id, reference, purchase_request_id, created_by_id, notes, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)`,
		po.ID, po.Reference, po.PurchaseRequestID, po.CreatedByID, po.Notes, po.Status, po.CreatedAt)
	return mapConflict(err)
}

func (tx *txRepo) InsertPOLineItem(ctx context.Context, line POLineItem) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO po_line_items
(id, po_id, name, original_quantity, validated_quantity, unit, quoted_price, supplier_name, remark, pr_product_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		line.ID, line.OrderID, line.Name, line.OriginalQuantity, line.ValidatedQuantity, line.Unit,
		line.QuotedPrice, line.SupplierName, line.Remark, line.PRProductID)
	return err
}

func (tx *txRepo) UpdatePOStatus(ctx context.Context, id string, status OrderStatus, at time.Time) error {
	_, err := tx.tx.Exec(ctx, `UPDATE purchase_orders SET status=$1, updated_at=$2 WHERE id=$3`, status, at, id)
	return err
}

// mapConflict translates unique violations into the domain conflict error.
func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

// itoa converts int to string for dynamic query building.
func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}
