package procurement

import (
	"context"
	"time"
)

// SetApproval records the captain's approval verdict. Re-approving stamps a
// fresh actor and timestamp; revoking clears both. Setting the flag to its
// current value is a no-op and publishes nothing.
func (s *Service) SetApproval(ctx context.Context, actorID, id string, approved bool) (PurchaseRequest, error) {
	pr, err := s.repo.GetPR(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if pr.MasterApproved == approved {
		return pr, nil
	}

	var byID *string
	var at *time.Time
	if approved {
		now := time.Now()
		byID = &actorID
		at = &now
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetApproval(ctx, id, approved, byID, at)
	})
	if err != nil {
		return PurchaseRequest{}, err
	}

	action := "pr.approve"
	if !approved {
		action = "pr.revoke_approval"
	}
	s.recordAudit(ctx, actorID, action, "purchase_request", id, nil)
	s.publish(ctx, "purchase-request", id, "approval")
	return s.repo.GetPR(ctx, id)
}
