package procurement

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fleetdesk/fleetdesk/internal/directory"
	"github.com/fleetdesk/fleetdesk/internal/events"
	"github.com/fleetdesk/fleetdesk/internal/shared"
)

type memoryRepo struct {
	prs     map[string]PurchaseRequest
	prLines map[string][]PRLineItem
	pos     map[string]PurchaseOrder
	poLines map[string][]POLineItem
	seq     map[string]int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		prs:     make(map[string]PurchaseRequest),
		prLines: make(map[string][]PRLineItem),
		pos:     make(map[string]PurchaseOrder),
		poLines: make(map[string][]POLineItem),
		seq:     make(map[string]int64),
	}
}

type memoryTx struct {
	repo *memoryRepo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) orderedQuantity(lineID string) float64 {
	var total float64
	for poID, lines := range r.poLines {
		if r.pos[poID].Status == OrderStatusCancelled {
			continue
		}
		for _, l := range lines {
			if l.PRProductID == lineID {
				total += l.ValidatedQuantity
			}
		}
	}
	return total
}

func (r *memoryRepo) GetPR(ctx context.Context, id string) (PurchaseRequest, error) {
	pr, ok := r.prs[id]
	if !ok {
		return PurchaseRequest{}, ErrNotFound
	}
	lines := append([]PRLineItem(nil), r.prLines[id]...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].Position < lines[j].Position })
	for i := range lines {
		lines[i].OrderedQuantity = r.orderedQuantity(lines[i].ID)
	}
	pr.Products = lines
	return pr, nil
}

func (r *memoryRepo) ListPRs(ctx context.Context, filter RequestFilter) ([]PurchaseRequest, error) {
	var out []PurchaseRequest
	for id, pr := range r.prs {
		if filter.VesselID != "" && pr.VesselID != filter.VesselID {
			continue
		}
		if filter.CreatedByID != "" && pr.CreatedByID != filter.CreatedByID {
			continue
		}
		if filter.MasterApproved != nil && pr.MasterApproved != *filter.MasterApproved {
			continue
		}
		full, _ := r.GetPR(ctx, id)
		out = append(out, full)
	}
	return out, nil
}

func (r *memoryRepo) GetPO(ctx context.Context, id string) (PurchaseOrder, error) {
	po, ok := r.pos[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	po.Products = append([]POLineItem(nil), r.poLines[id]...)
	return po, nil
}

func (r *memoryRepo) ListPOs(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error) {
	var out []PurchaseOrder
	for id, po := range r.pos {
		if filter.CreatorID != "" && po.CreatedByID != filter.CreatorID {
			continue
		}
		if filter.PurchaseRequestID != "" && po.PurchaseRequestID != filter.PurchaseRequestID {
			continue
		}
		full, _ := r.GetPO(ctx, id)
		out = append(out, full)
	}
	return out, nil
}

func (r *memoryRepo) OrderCountForPR(ctx context.Context, prID string) (int, error) {
	count := 0
	for _, po := range r.pos {
		if po.PurchaseRequestID == prID {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	key := fmt.Sprintf("%s:%d", prefix, year)
	tx.repo.seq[key]++
	return tx.repo.seq[key], nil
}

func (tx *memoryTx) InsertPR(ctx context.Context, pr PurchaseRequest) error {
	tx.repo.prs[pr.ID] = pr
	return nil
}

func (tx *memoryTx) InsertPRLineItem(ctx context.Context, item PRLineItem) error {
	tx.repo.prLines[item.RequestID] = append(tx.repo.prLines[item.RequestID], item)
	return nil
}

func (tx *memoryTx) UpdateDetails(ctx context.Context, id string, patch DetailsPatch) error {
	pr := tx.repo.prs[id]
	if patch.CustomReference != nil {
		pr.CustomReference = *patch.CustomReference
	}
	if patch.Category != nil {
		pr.Category = *patch.Category
	}
	if patch.Priority != nil {
		pr.Priority = *patch.Priority
	}
	if patch.Notes != nil {
		pr.Notes = *patch.Notes
	}
	pr.UpdatedAt = time.Now()
	tx.repo.prs[id] = pr
	return nil
}

func (tx *memoryTx) SetApproval(ctx context.Context, id string, approved bool, byID *string, at *time.Time) error {
	pr := tx.repo.prs[id]
	pr.MasterApproved = approved
	pr.MasterApprovedByID = byID
	pr.MasterApprovedAt = at
	tx.repo.prs[id] = pr
	return nil
}

func (tx *memoryTx) MarkSentToQuotation(ctx context.Context, id, byID string, at time.Time) error {
	pr := tx.repo.prs[id]
	pr.SentToQuotation = true
	pr.QuotationSentByID = &byID
	pr.QuotationSentAt = &at
	tx.repo.prs[id] = pr
	return nil
}

func (tx *memoryTx) UpdateLineQuotation(ctx context.Context, update LineQuotationUpdate) error {
	for prID, lines := range tx.repo.prLines {
		for i, line := range lines {
			if line.ID == update.ID {
				line.QuotedPrice = update.QuotedPrice
				line.SupplierName = update.SupplierName
				line.Remark = update.Remark
				line.UnavailableReason = update.UnavailableReason
				line.WasUnavailable = update.WasUnavailable
				tx.repo.prLines[prID][i] = line
				return nil
			}
		}
	}
	return ErrNotFound
}

func (tx *memoryTx) CompleteQuotation(ctx context.Context, id, remark string, at time.Time) error {
	pr := tx.repo.prs[id]
	pr.QuotationCompletedAt = &at
	pr.QuotationRemark = remark
	tx.repo.prs[id] = pr
	return nil
}

func (tx *memoryTx) DeletePRLineItems(ctx context.Context, prID string) error {
	delete(tx.repo.prLines, prID)
	return nil
}

func (tx *memoryTx) DeletePR(ctx context.Context, id string) error {
	delete(tx.repo.prs, id)
	return nil
}

func (tx *memoryTx) LockLineItems(ctx context.Context, prID string, ids []string) ([]PRLineItem, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []PRLineItem
	for _, line := range tx.repo.prLines[prID] {
		if want[line.ID] {
			line.OrderedQuantity = tx.repo.orderedQuantity(line.ID)
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (tx *memoryTx) InsertPO(ctx context.Context, po PurchaseOrder) error {
	tx.repo.pos[po.ID] = po
	return nil
}

func (tx *memoryTx) InsertPOLineItem(ctx context.Context, line POLineItem) error {
	tx.repo.poLines[line.OrderID] = append(tx.repo.poLines[line.OrderID], line)
	return nil
}

func (tx *memoryTx) UpdatePOStatus(ctx context.Context, id string, status OrderStatus, at time.Time) error {
	po := tx.repo.pos[id]
	po.Status = status
	po.UpdatedAt = at
	tx.repo.pos[id] = po
	return nil
}

type fakeDirectory struct {
	users   map[string]string
	vessels map[string]string
}

func (d *fakeDirectory) UserName(ctx context.Context, id string) (string, error) {
	name, ok := d.users[id]
	if !ok {
		return "", directory.ErrNotFound
	}
	return name, nil
}

func (d *fakeDirectory) VesselName(ctx context.Context, id string) (string, error) {
	name, ok := d.vessels[id]
	if !ok {
		return "", directory.ErrNotFound
	}
	return name, nil
}

type recordingBus struct {
	published []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, evt events.Event) {
	b.published = append(b.published, evt)
}

func (b *recordingBus) Subscribe() (*events.Subscription, error) {
	return nil, nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type memoryIdempotency struct {
	keys map[string]bool
}

func (s *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if s.keys == nil {
		s.keys = make(map[string]bool)
	}
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(s.keys, key)
	return nil
}

type testEnv struct {
	service *Service
	repo    *memoryRepo
	bus     *recordingBus
	audit   *recordingAudit
	idem    *memoryIdempotency
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newMemoryRepo()
	bus := &recordingBus{}
	audit := &recordingAudit{}
	idem := &memoryIdempotency{}
	dir := &fakeDirectory{
		users:   map[string]string{"u-cook": "Paul Ocean", "u-master": "Eva Stern", "u-shore": "Jonas Kay"},
		vessels: map[string]string{"v-atlantic": "MV Atlantic Dawn"},
	}
	svc := NewService(repo, dir, bus, audit, idem, nil)
	return &testEnv{service: svc, repo: repo, bus: bus, audit: audit, idem: idem}
}

func (e *testEnv) createPR(t *testing.T, quantities ...float64) PurchaseRequest {
	t.Helper()
	if len(quantities) == 0 {
		quantities = []float64{10}
	}
	products := make([]LineItemInput, 0, len(quantities))
	for i, q := range quantities {
		products = append(products, LineItemInput{
			Name:     fmt.Sprintf("Filter element %d", i+1),
			Quantity: q,
			Unit:     "pcs",
		})
	}
	pr, err := e.service.CreatePR(context.Background(), CreatePRInput{
		CreatedByID: "u-cook",
		VesselID:    "v-atlantic",
		Category:    CategorySpareParts,
		Priority:    PriorityMedium,
		Products:    products,
	})
	require.NoError(t, err)
	return pr
}

// createQuotedPR walks a fresh request through approval, send and quotation
// so it is ready for order composition.
func (e *testEnv) createQuotedPR(t *testing.T, quantities ...float64) PurchaseRequest {
	t.Helper()
	ctx := context.Background()
	pr := e.createPR(t, quantities...)
	_, err := e.service.SetApproval(ctx, "u-master", pr.ID, true)
	require.NoError(t, err)
	_, err = e.service.SendToQuotation(ctx, "u-master", pr.ID)
	require.NoError(t, err)

	supplier := "Nordic Marine Supply"
	lines := make([]QuotationLineInput, 0, len(pr.Products))
	for _, item := range pr.Products {
		lines = append(lines, QuotationLineInput{
			ID:           item.ID,
			QuotedPrice:  mustPrice(t, "19.90"),
			SupplierName: &supplier,
		})
	}
	pr, err = e.service.SubmitQuotation(ctx, "u-shore", pr.ID, SubmitQuotationInput{Lines: lines})
	require.NoError(t, err)
	return pr
}

func TestCreatePRSnapshotsAndReference(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.createPR(t, 5, 3)
	second := env.createPR(t, 2)

	year := time.Now().Year()
	require.Equal(t, FormatReference(PrefixRequest, year, 1), first.Reference)
	require.Equal(t, FormatReference(PrefixRequest, year, 2), second.Reference)

	require.Equal(t, "Paul Ocean", first.CreatedByName)
	require.Equal(t, "MV Atlantic Dawn", first.VesselName)
	require.False(t, first.MasterApproved)
	require.False(t, first.SentToQuotation)

	require.Len(t, first.Products, 2)
	require.Equal(t, "Filter element 1", first.Products[0].Name)
	require.Equal(t, 0.0, first.Products[0].OrderedQuantity)

	listed, err := env.service.ListPRs(ctx, RequestFilter{VesselID: "v-atlantic"})
	require.NoError(t, err)
	require.Len(t, listed, 2)

	require.NotEmpty(t, env.bus.published)
	require.Equal(t, events.TypePRChange, env.bus.published[0].Type)
}

func TestCreatePRValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.CreatePR(ctx, CreatePRInput{
		CreatedByID: "u-cook", VesselID: "v-atlantic",
		Category: "FURNITURE", Priority: PriorityLow,
		Products: []LineItemInput{{Name: "Chair", Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.service.CreatePR(ctx, CreatePRInput{
		CreatedByID: "u-cook", VesselID: "v-atlantic",
		Category: CategoryTools, Priority: PriorityLow,
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.service.CreatePR(ctx, CreatePRInput{
		CreatedByID: "u-cook", VesselID: "v-atlantic",
		Category: CategoryTools, Priority: PriorityLow,
		Products: []LineItemInput{{Name: "Wrench", Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = env.service.CreatePR(ctx, CreatePRInput{
		CreatedByID: "u-cook", VesselID: "v-ghost",
		Category: CategoryTools, Priority: PriorityLow,
		Products: []LineItemInput{{Name: "Wrench", Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestApprovalStampsAndRevokes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pr := env.createPR(t)

	approved, err := env.service.SetApproval(ctx, "u-master", pr.ID, true)
	require.NoError(t, err)
	require.True(t, approved.MasterApproved)
	require.NotNil(t, approved.MasterApprovedByID)
	require.Equal(t, "u-master", *approved.MasterApprovedByID)
	require.NotNil(t, approved.MasterApprovedAt)
	firstStamp := *approved.MasterApprovedAt

	// Same value again is a no-op and keeps the original stamp.
	eventsBefore := len(env.bus.published)
	again, err := env.service.SetApproval(ctx, "u-other", pr.ID, true)
	require.NoError(t, err)
	require.Equal(t, firstStamp, *again.MasterApprovedAt)
	require.Len(t, env.bus.published, eventsBefore)

	revoked, err := env.service.SetApproval(ctx, "u-master", pr.ID, false)
	require.NoError(t, err)
	require.False(t, revoked.MasterApproved)
	require.Nil(t, revoked.MasterApprovedByID)
	require.Nil(t, revoked.MasterApprovedAt)

	reapproved, err := env.service.SetApproval(ctx, "u-master", pr.ID, true)
	require.NoError(t, err)
	require.NotNil(t, reapproved.MasterApprovedAt)
	require.False(t, reapproved.MasterApprovedAt.Before(firstStamp))
}

func TestSendToQuotationGuards(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pr := env.createPR(t)

	// Approval is an independent axis; an unapproved request may go out.
	sent, err := env.service.SendToQuotation(ctx, "u-master", pr.ID)
	require.NoError(t, err)
	require.True(t, sent.SentToQuotation)
	require.False(t, sent.MasterApproved)
	require.NotNil(t, sent.QuotationSentAt)

	_, err = env.service.SendToQuotation(ctx, "u-master", pr.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReplaceLineItemsFrozenAfterSend(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pr := env.createPR(t, 4)

	replaced, err := env.service.ReplaceLineItems(ctx, "u-cook", pr.ID, []LineItemInput{
		{Name: "Gasket set", Quantity: 2, Unit: "box"},
		{Name: "O-ring kit", Quantity: 6, Unit: "pcs"},
	})
	require.NoError(t, err)
	require.Len(t, replaced.Products, 2)
	require.Equal(t, "Gasket set", replaced.Products[0].Name)

	_, err = env.service.SetApproval(ctx, "u-master", pr.ID, true)
	require.NoError(t, err)
	_, err = env.service.SendToQuotation(ctx, "u-master", pr.ID)
	require.NoError(t, err)

	_, err = env.service.ReplaceLineItems(ctx, "u-cook", pr.ID, []LineItemInput{
		{Name: "Late change", Quantity: 1},
	})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestDeletePRBlockedByOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	pr := env.createQuotedPR(t, 10)

	_, err := env.service.ComposeOrder(ctx, ComposeOrderInput{
		PurchaseRequestID: pr.ID,
		CreatedByID:       "u-shore",
		Lines:             []ComposeLineInput{{PRProductID: pr.Products[0].ID, ValidatedQuantity: 4}},
	})
	require.NoError(t, err)

	err = env.service.DeletePR(ctx, "u-cook", pr.ID)
	require.ErrorIs(t, err, ErrConflict)

	fresh := env.createPR(t)
	require.NoError(t, env.service.DeletePR(ctx, "u-cook", fresh.ID))
	_, err = env.service.GetPR(ctx, fresh.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
