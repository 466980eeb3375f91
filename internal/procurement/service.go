package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fleetdesk/fleetdesk/internal/directory"
	"github.com/fleetdesk/fleetdesk/internal/events"
	"github.com/fleetdesk/fleetdesk/internal/shared"
)

// DirectoryPort resolves display names for snapshotting onto documents.
type DirectoryPort interface {
	UserName(ctx context.Context, id string) (string, error)
	VesselName(ctx context.Context, id string) (string, error)
}

// AuditPort records workflow actions.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards replayed mutations.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service implements the procurement workflow.
type Service struct {
	repo        RepositoryPort
	directory   DirectoryPort
	bus         events.Bus
	audit       AuditPort
	idempotency IdempotencyPort
	logger      *slog.Logger
}

// NewService wires the procurement service. Audit and idempotency are
// optional; a nil bus disables change notifications.
func NewService(repo RepositoryPort, directory DirectoryPort, bus events.Bus, audit AuditPort, idem IdempotencyPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: directory, bus: bus, audit: audit, idempotency: idem, logger: logger}
}

// publish emits a pr-change event. Notifications are advisory; the bus
// handles delivery failures itself.
func (s *Service) publish(ctx context.Context, entity, entityID, action string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.NewPRChange(entity, entityID, action))
}

func (s *Service) recordAudit(ctx context.Context, actorID, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Meta:     meta,
		At:       time.Now(),
	}); err != nil {
		s.logger.Warn("audit record failed", "action", action, "entity", entity, "err", err)
	}
}

// LineItemInput is one requested product on creation or full replacement.
type LineItemInput struct {
	Name      string
	Quantity  float64
	Unit      string
	Reference string
	ROB       *float64
	Images    []string
}

// CreatePRInput carries everything needed to open a purchase request.
type CreatePRInput struct {
	CreatedByID     string
	VesselID        string
	Category        Category
	Priority        Priority
	CustomReference string
	Notes           string
	Products        []LineItemInput
}

func validateLineInputs(products []LineItemInput) error {
	if len(products) == 0 {
		return fmt.Errorf("%w: at least one product required", ErrValidation)
	}
	for i, p := range products {
		if p.Name == "" {
			return fmt.Errorf("%w: product %d missing name", ErrValidation, i)
		}
		if p.Quantity <= 0 {
			return fmt.Errorf("%w: product %d quantity must be positive", ErrValidation, i)
		}
	}
	return nil
}

// CreatePR opens a purchase request with a generated reference and snapshotted
// creator and vessel names.
func (s *Service) CreatePR(ctx context.Context, input CreatePRInput) (PurchaseRequest, error) {
	if !input.Category.Valid() {
		return PurchaseRequest{}, fmt.Errorf("%w: unknown category %q", ErrValidation, input.Category)
	}
	if !input.Priority.Valid() {
		return PurchaseRequest{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, input.Priority)
	}
	if err := validateLineInputs(input.Products); err != nil {
		return PurchaseRequest{}, err
	}

	creatorName, err := s.directory.UserName(ctx, input.CreatedByID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return PurchaseRequest{}, fmt.Errorf("%w: unknown user %s", ErrValidation, input.CreatedByID)
		}
		return PurchaseRequest{}, fmt.Errorf("resolve creator: %w", err)
	}
	vesselName, err := s.directory.VesselName(ctx, input.VesselID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return PurchaseRequest{}, fmt.Errorf("%w: unknown vessel %s", ErrValidation, input.VesselID)
		}
		return PurchaseRequest{}, fmt.Errorf("resolve vessel: %w", err)
	}

	now := time.Now()
	prID := uuid.NewString()

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextSequence(ctx, PrefixRequest, now.Year())
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		pr := PurchaseRequest{
			ID:              prID,
			Reference:       FormatReference(PrefixRequest, now.Year(), seq),
			CustomReference: input.CustomReference,
			Category:        input.Category,
			Priority:        input.Priority,
			Notes:           input.Notes,
			CreatedByID:     input.CreatedByID,
			CreatedByName:   creatorName,
			VesselID:        input.VesselID,
			VesselName:      vesselName,
			CreatedAt:       now,
		}
		if err := tx.InsertPR(ctx, pr); err != nil {
			return err
		}
		for i, p := range input.Products {
			if err := tx.InsertPRLineItem(ctx, PRLineItem{
				ID:        uuid.NewString(),
				RequestID: prID,
				Name:      p.Name,
				Quantity:  p.Quantity,
				Unit:      p.Unit,
				Reference: p.Reference,
				ROB:       p.ROB,
				Images:    p.Images,
				Position:  i,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseRequest{}, err
	}

	s.recordAudit(ctx, input.CreatedByID, "pr.create", "purchase_request", prID, map[string]any{"vesselId": input.VesselID})
	s.publish(ctx, "purchase-request", prID, "created")
	return s.repo.GetPR(ctx, prID)
}

// ListPRs returns purchase requests matching the filter.
func (s *Service) ListPRs(ctx context.Context, filter RequestFilter) ([]PurchaseRequest, error) {
	return s.repo.ListPRs(ctx, filter)
}

// GetPR returns one purchase request.
func (s *Service) GetPR(ctx context.Context, id string) (PurchaseRequest, error) {
	return s.repo.GetPR(ctx, id)
}

// UpdateDetails patches the simple fields of a purchase request.
func (s *Service) UpdateDetails(ctx context.Context, actorID, id string, patch DetailsPatch) (PurchaseRequest, error) {
	if patch.Empty() {
		return s.repo.GetPR(ctx, id)
	}
	if patch.Category != nil && !patch.Category.Valid() {
		return PurchaseRequest{}, fmt.Errorf("%w: unknown category %q", ErrValidation, *patch.Category)
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return PurchaseRequest{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, *patch.Priority)
	}
	if _, err := s.repo.GetPR(ctx, id); err != nil {
		return PurchaseRequest{}, err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateDetails(ctx, id, patch)
	})
	if err != nil {
		return PurchaseRequest{}, err
	}

	s.recordAudit(ctx, actorID, "pr.update", "purchase_request", id, nil)
	s.publish(ctx, "purchase-request", id, "updated")
	return s.repo.GetPR(ctx, id)
}

// ReplaceLineItems swaps the full product list of a purchase request. Once
// the request has been sent to quotation the line set is frozen.
func (s *Service) ReplaceLineItems(ctx context.Context, actorID, id string, products []LineItemInput) (PurchaseRequest, error) {
	if err := validateLineInputs(products); err != nil {
		return PurchaseRequest{}, err
	}
	pr, err := s.repo.GetPR(ctx, id)
	if err != nil {
		return PurchaseRequest{}, err
	}
	if pr.SentToQuotation {
		return PurchaseRequest{}, fmt.Errorf("%w: line items frozen after send to quotation", ErrInvalidState)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeletePRLineItems(ctx, id); err != nil {
			return err
		}
		for i, p := range products {
			if err := tx.InsertPRLineItem(ctx, PRLineItem{
				ID:        uuid.NewString(),
				RequestID: id,
				Name:      p.Name,
				Quantity:  p.Quantity,
				Unit:      p.Unit,
				Reference: p.Reference,
				ROB:       p.ROB,
				Images:    p.Images,
				Position:  i,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PurchaseRequest{}, err
	}

	s.recordAudit(ctx, actorID, "pr.replace_products", "purchase_request", id, map[string]any{"count": len(products)})
	s.publish(ctx, "purchase-request", id, "updated")
	return s.repo.GetPR(ctx, id)
}

// DeletePR removes a purchase request and its line items. Requests already
// referenced by purchase orders cannot be deleted.
func (s *Service) DeletePR(ctx context.Context, actorID, id string) error {
	if _, err := s.repo.GetPR(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.OrderCountForPR(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: purchase orders reference this request", ErrConflict)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeletePRLineItems(ctx, id); err != nil {
			return err
		}
		return tx.DeletePR(ctx, id)
	})
	if err != nil {
		return err
	}

	s.recordAudit(ctx, actorID, "pr.delete", "purchase_request", id, nil)
	s.publish(ctx, "purchase-request", id, "deleted")
	return nil
}
