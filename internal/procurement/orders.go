package procurement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdesk/fleetdesk/internal/shared"
)

// ComposeLineInput claims part of one purchase request line item.
type ComposeLineInput struct {
	PRProductID       string
	ValidatedQuantity float64
}

// ComposeOrderInput builds a purchase order from a quoted request.
type ComposeOrderInput struct {
	PurchaseRequestID string
	CreatedByID       string
	Notes             string
	IdempotencyKey    string
	Lines             []ComposeLineInput
}

const idempotencyModuleCompose = "procurement.compose"

// ComposeOrder creates a purchase order covering the selected line items.
// Requested quantities above the still-unordered remainder are clamped down
// to it; the selected lines are row-locked so concurrent compositions cannot
// jointly exceed a line's requested quantity.
func (s *Service) ComposeOrder(ctx context.Context, input ComposeOrderInput) (PurchaseOrder, error) {
	if len(input.Lines) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: order requires at least one line", ErrValidation)
	}
	seen := make(map[string]float64, len(input.Lines))
	for _, line := range input.Lines {
		if line.PRProductID == "" {
			return PurchaseOrder{}, fmt.Errorf("%w: line missing product id", ErrValidation)
		}
		if line.ValidatedQuantity < 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: quantity must not be negative", ErrValidation)
		}
		if _, dup := seen[line.PRProductID]; dup {
			return PurchaseOrder{}, fmt.Errorf("%w: duplicate line for product %s", ErrValidation, line.PRProductID)
		}
		seen[line.PRProductID] = line.ValidatedQuantity
	}

	pr, err := s.repo.GetPR(ctx, input.PurchaseRequestID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if pr.QuotationCompletedAt == nil {
		return PurchaseOrder{}, fmt.Errorf("%w: quotation not completed", ErrInvalidState)
	}
	known := make(map[string]bool, len(pr.Products))
	for _, item := range pr.Products {
		known[item.ID] = true
	}
	ids := make([]string, 0, len(input.Lines))
	for _, line := range input.Lines {
		if !known[line.PRProductID] {
			return PurchaseOrder{}, fmt.Errorf("%w: line item %s does not belong to request", ErrValidation, line.PRProductID)
		}
		ids = append(ids, line.PRProductID)
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, idempotencyModuleCompose); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return PurchaseOrder{}, fmt.Errorf("%w: order already composed for this key", ErrConflict)
			}
			return PurchaseOrder{}, err
		}
	}

	now := time.Now()
	poID := uuid.NewString()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockLineItems(ctx, input.PurchaseRequestID, ids)
		if err != nil {
			return err
		}
		if len(locked) != len(ids) {
			return fmt.Errorf("%w: line items changed during composition", ErrConflict)
		}

		type claim struct {
			item      PRLineItem
			remaining float64
			validated float64
		}
		claims := make([]claim, 0, len(locked))
		for _, item := range locked {
			requested := seen[item.ID]
			if requested == 0 {
				continue
			}
			if item.UnavailableReason != nil {
				return fmt.Errorf("%w: %s is marked unavailable", ErrValidation, item.Name)
			}
			remaining := item.RemainingQuantity()
			if remaining <= 0 {
				return fmt.Errorf("%w: %s already fully ordered", ErrValidation, item.Name)
			}
			validated := requested
			if validated > remaining {
				validated = remaining
			}
			claims = append(claims, claim{item: item, remaining: remaining, validated: validated})
		}
		if len(claims) == 0 {
			return fmt.Errorf("%w: order requires at least one positive quantity", ErrValidation)
		}

		seq, err := tx.NextSequence(ctx, PrefixOrder, now.Year())
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		po := PurchaseOrder{
			ID:                poID,
			Reference:         FormatReference(PrefixOrder, now.Year(), seq),
			PurchaseRequestID: input.PurchaseRequestID,
			CreatedByID:       input.CreatedByID,
			Notes:             input.Notes,
			Status:            OrderStatusDraft,
			CreatedAt:         now,
		}
		if err := tx.InsertPO(ctx, po); err != nil {
			return err
		}
		for _, c := range claims {
			if err := tx.InsertPOLineItem(ctx, POLineItem{
				ID:                uuid.NewString(),
				OrderID:           poID,
				Name:              c.item.Name,
				OriginalQuantity:  c.remaining,
				ValidatedQuantity: c.validated,
				Unit:              c.item.Unit,
				QuotedPrice:       c.item.QuotedPrice,
				SupplierName:      c.item.SupplierName,
				Remark:            c.item.Remark,
				PRProductID:       c.item.ID,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			if delErr := s.idempotency.Delete(ctx, input.IdempotencyKey); delErr != nil {
				s.logger.Warn("idempotency rollback failed", "key", input.IdempotencyKey, "err", delErr)
			}
		}
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, input.CreatedByID, "po.compose", "purchase_order", poID, map[string]any{"purchaseRequestId": input.PurchaseRequestID})
	s.publish(ctx, "purchase-order", poID, "created")
	s.publish(ctx, "purchase-request", input.PurchaseRequestID, "ordered")
	return s.repo.GetPO(ctx, poID)
}

// ListOrders returns purchase orders matching the filter.
func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]PurchaseOrder, error) {
	return s.repo.ListPOs(ctx, filter)
}

// GetOrder returns one purchase order.
func (s *Service) GetOrder(ctx context.Context, id string) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

// UpdateOrderStatus advances an order along its lifecycle. Illegal
// transitions, including any move out of a terminal status, are rejected.
func (s *Service) UpdateOrderStatus(ctx context.Context, actorID, id string, next OrderStatus) (PurchaseOrder, error) {
	switch next {
	case OrderStatusDraft, OrderStatusValidated, OrderStatusSent, OrderStatusDelivered, OrderStatusCancelled:
	default:
		return PurchaseOrder{}, fmt.Errorf("%w: unknown status %q", ErrValidation, next)
	}

	po, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.Status == next {
		return po, nil
	}
	if !po.Status.CanTransitionTo(next) {
		return PurchaseOrder{}, fmt.Errorf("%w: %s -> %s", ErrInvalidState, po.Status, next)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdatePOStatus(ctx, id, next, time.Now())
	})
	if err != nil {
		return PurchaseOrder{}, err
	}

	s.recordAudit(ctx, actorID, "po.status", "purchase_order", id, map[string]any{"from": po.Status, "to": next})
	s.publish(ctx, "purchase-order", id, "status")
	if next == OrderStatusCancelled {
		s.publish(ctx, "purchase-request", po.PurchaseRequestID, "order-cancelled")
	}
	return s.repo.GetPO(ctx, id)
}
