package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SendToQuotation hands the request to the shore office. Sending may happen
// only once; captain approval is tracked on an independent axis and is not a
// precondition.
func (s *Service) SendToQuotation(ctx context.Context, actorID, id string) (PurchaseRequest, error) {
	pr, err := s.repo.GetPR(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if pr.SentToQuotation {
		return PurchaseRequest{}, fmt.Errorf("%w: already sent to quotation", ErrInvalidState)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.MarkSentToQuotation(ctx, id, actorID, time.Now())
	})
	if err != nil {
		return PurchaseRequest{}, err
	}

	s.recordAudit(ctx, actorID, "pr.send_to_quotation", "purchase_request", id, nil)
	s.publish(ctx, "purchase-request", id, "sent-to-quotation")
	return s.repo.GetPR(ctx, id)
}

// QuotationLineInput carries shore-provided pricing for one line item.
type QuotationLineInput struct {
	ID                string
	QuotedPrice       decimal.NullDecimal
	SupplierName      *string
	Remark            *string
	UnavailableReason *UnavailableReason
}

// SubmitQuotationInput is the full quotation payload.
type SubmitQuotationInput struct {
	Lines  []QuotationLineInput
	Remark string
}

// SubmitQuotation records shore pricing on the request's line items and marks
// quotation complete. Resubmission is allowed and restamps the completion
// time. The wasUnavailable flag sticks once any reason has ever been
// recorded, even if a later submission clears the reason.
func (s *Service) SubmitQuotation(ctx context.Context, actorID, id string, input SubmitQuotationInput) (PurchaseRequest, error) {
	pr, err := s.repo.GetPR(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if !pr.SentToQuotation {
		return PurchaseRequest{}, fmt.Errorf("%w: request not sent to quotation", ErrInvalidState)
	}
	if len(input.Lines) == 0 {
		return PurchaseRequest{}, fmt.Errorf("%w: quotation requires at least one line", ErrValidation)
	}

	byID := make(map[string]PRLineItem, len(pr.Products))
	for _, item := range pr.Products {
		byID[item.ID] = item
	}
	for _, line := range input.Lines {
		old, ok := byID[line.ID]
		if !ok {
			return PurchaseRequest{}, fmt.Errorf("%w: line item %s does not belong to request", ErrValidation, line.ID)
		}
		if line.UnavailableReason != nil && !line.UnavailableReason.Valid() {
			return PurchaseRequest{}, fmt.Errorf("%w: unknown unavailable reason %q", ErrValidation, *line.UnavailableReason)
		}
		if line.QuotedPrice.Valid && line.QuotedPrice.Decimal.IsNegative() {
			return PurchaseRequest{}, fmt.Errorf("%w: quoted price for %s must not be negative", ErrValidation, old.Name)
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, line := range input.Lines {
			old := byID[line.ID]
			was := old.WasUnavailable || old.UnavailableReason != nil || line.UnavailableReason != nil
			if err := tx.UpdateLineQuotation(ctx, LineQuotationUpdate{
				ID:                line.ID,
				QuotedPrice:       line.QuotedPrice,
				SupplierName:      line.SupplierName,
				Remark:            line.Remark,
				UnavailableReason: line.UnavailableReason,
				WasUnavailable:    was,
			}); err != nil {
				return err
			}
		}
		return tx.CompleteQuotation(ctx, id, input.Remark, time.Now())
	})
	if err != nil {
		return PurchaseRequest{}, err
	}

	s.recordAudit(ctx, actorID, "pr.submit_quotation", "purchase_request", id, map[string]any{"lines": len(input.Lines)})
	s.publish(ctx, "purchase-request", id, "quotation")
	return s.repo.GetPR(ctx, id)
}
