package procurement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Request categories.
type Category string

const (
	CategorySpareParts      Category = "SPARE_PARTS"
	CategoryConsumables     Category = "CONSUMABLES"
	CategorySafetyEquipment Category = "SAFETY_EQUIPMENT"
	CategoryTools           Category = "TOOLS"
	CategoryLubricants      Category = "LUBRICANTS"
	CategoryOther           Category = "OTHER"
)

// Valid reports whether the category is a known value.
func (c Category) Valid() bool {
	switch c {
	case CategorySpareParts, CategoryConsumables, CategorySafetyEquipment,
		CategoryTools, CategoryLubricants, CategoryOther:
		return true
	}
	return false
}

// Request priorities.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Valid reports whether the priority is a known value.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// UnavailableReason explains why a quoted line item cannot be ordered.
type UnavailableReason string

const (
	UnavailableOutOfStock UnavailableReason = "OUT_OF_STOCK"
	UnavailableNoOffer    UnavailableReason = "NO_OFFER"
)

// Valid reports whether the reason is a known value.
func (u UnavailableReason) Valid() bool {
	switch u {
	case UnavailableOutOfStock, UnavailableNoOffer:
		return true
	}
	return false
}

// Purchase order lifecycle statuses.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusValidated OrderStatus = "VALIDATED"
	OrderStatusSent      OrderStatus = "SENT"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// CanTransitionTo reports whether next is a legal transition. DELIVERED and
// CANCELLED are terminal; cancellation is allowed from any earlier state.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusDraft:
		return next == OrderStatusValidated || next == OrderStatusCancelled
	case OrderStatusValidated:
		return next == OrderStatusSent || next == OrderStatusCancelled
	case OrderStatusSent:
		return next == OrderStatusDelivered || next == OrderStatusCancelled
	case OrderStatusDelivered, OrderStatusCancelled:
		return false
	}
	return false
}

// PurchaseRequest is a crew-originated request for goods. Creator and vessel
// names are snapshotted at creation so the document survives account deletion.
type PurchaseRequest struct {
	ID              string   `json:"id"`
	Reference       string   `json:"reference"`
	CustomReference string   `json:"customReference,omitempty"`
	Category        Category `json:"category"`
	Priority        Priority `json:"priority"`
	Notes           string   `json:"notes,omitempty"`

	CreatedByID   string `json:"createdById"`
	CreatedByName string `json:"createdByName"`
	VesselID      string `json:"vesselId"`
	VesselName    string `json:"vesselName"`

	MasterApproved     bool       `json:"masterApproved"`
	MasterApprovedByID *string    `json:"masterApprovedById"`
	MasterApprovedAt   *time.Time `json:"masterApprovedAt"`

	SentToQuotation      bool       `json:"sentToQuotation"`
	QuotationSentByID    *string    `json:"quotationSentById"`
	QuotationSentAt      *time.Time `json:"quotationSentAt"`
	QuotationCompletedAt *time.Time `json:"quotationCompletedAt"`
	QuotationRemark      string     `json:"quotationRemark,omitempty"`

	Products []PRLineItem `json:"products"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PRLineItem is a single product line owned by one purchase request.
type PRLineItem struct {
	ID        string   `json:"id"`
	RequestID string   `json:"purchaseRequestId"`
	Name      string   `json:"name"`
	Quantity  float64  `json:"quantity"`
	Unit      string   `json:"unit"`
	Reference string   `json:"reference,omitempty"`
	ROB       *float64 `json:"rob"`
	Images    []string `json:"images,omitempty"`

	QuotedPrice  decimal.NullDecimal `json:"quotedPrice"`
	SupplierName *string             `json:"supplierName"`
	Remark       *string             `json:"remark"`

	UnavailableReason *UnavailableReason `json:"unavailableReason"`
	// WasUnavailable is sticky: set the first time a reason is recorded and
	// never cleared, even after the item becomes available again.
	WasUnavailable bool `json:"wasUnavailable"`

	// OrderedQuantity is derived at read time from non-cancelled purchase
	// order lines referencing this item.
	OrderedQuantity float64 `json:"orderedQuantity"`

	Position int `json:"-"`
}

// RemainingQuantity is the unordered portion still claimable by a new order.
func (li PRLineItem) RemainingQuantity() float64 {
	remaining := li.Quantity - li.OrderedQuantity
	if remaining < 0 {
		return 0
	}
	return remaining
}

// PurchaseOrder is a shore-issued order composed from a quotation-completed
// purchase request. Orders are never deleted; cancellation is a status.
type PurchaseOrder struct {
	ID                string       `json:"id"`
	Reference         string       `json:"reference"`
	PurchaseRequestID string       `json:"purchaseRequestId"`
	CreatedByID       string       `json:"createdById"`
	Notes             string       `json:"notes,omitempty"`
	Status            OrderStatus  `json:"status"`
	Products          []POLineItem `json:"products"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// POLineItem fulfils part of one purchase request line item.
type POLineItem struct {
	ID      string `json:"id"`
	OrderID string `json:"purchaseOrderId"`
	Name    string `json:"name"`
	// OriginalQuantity snapshots the claimable remainder at composition time.
	OriginalQuantity  float64             `json:"originalQuantity"`
	ValidatedQuantity float64             `json:"validatedQuantity"`
	Unit              string              `json:"unit"`
	QuotedPrice       decimal.NullDecimal `json:"quotedPrice"`
	SupplierName      *string             `json:"supplierName"`
	Remark            *string             `json:"remark"`
	PRProductID       string              `json:"prProductId"`
}

// Total returns the monetary value of the line, zero when unquoted.
func (li POLineItem) Total() decimal.Decimal {
	if !li.QuotedPrice.Valid {
		return decimal.Zero
	}
	return li.QuotedPrice.Decimal.Mul(decimal.NewFromFloat(li.ValidatedQuantity))
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("procurement: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("procurement: invalid input")
	// ErrInvalidState occurs when action violates the workflow.
	ErrInvalidState = errors.New("procurement: invalid state transition")
	// ErrConflict indicates a uniqueness or history guard violation.
	ErrConflict = errors.New("procurement: conflict")
)
