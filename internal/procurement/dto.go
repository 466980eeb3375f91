package procurement

import "github.com/shopspring/decimal"

type productPayload struct {
	Name      string   `json:"name" validate:"required"`
	Quantity  float64  `json:"quantity" validate:"required,gt=0"`
	Unit      string   `json:"unit"`
	Reference string   `json:"reference"`
	ROB       *float64 `json:"rob"`
	Images    []string `json:"images" validate:"dive,max=2048"`
}

type createPRRequest struct {
	VesselID        string           `json:"vesselId"`
	Category        Category         `json:"category" validate:"required"`
	Priority        Priority         `json:"priority" validate:"required"`
	CustomReference string           `json:"customReference"`
	Notes           string           `json:"notes"`
	Products        []productPayload `json:"products" validate:"required,min=1,dive"`
}

type quotationLinePayload struct {
	ID                string              `json:"id" validate:"required"`
	QuotedPrice       decimal.NullDecimal `json:"quotedPrice"`
	SupplierName      *string             `json:"supplierName"`
	Remark            *string             `json:"remark"`
	UnavailableReason *UnavailableReason  `json:"unavailableReason"`
}

type quotationPayload struct {
	Products []quotationLinePayload `json:"products" validate:"required,min=1,dive"`
	Remark   string                 `json:"remark"`
}

// updatePRRequest multiplexes the PUT endpoint. Each present section is
// applied in workflow order: approval, send to quotation, quotation data,
// product replacement, then detail fields.
type updatePRRequest struct {
	MasterApproved  *bool             `json:"masterApproved"`
	SendToQuotation *bool             `json:"sendToQuotation"`
	Quotation       *quotationPayload `json:"quotation"`
	Products        []productPayload  `json:"products" validate:"omitempty,min=1,dive"`
	CustomReference *string           `json:"customReference"`
	Category        *Category         `json:"category"`
	Priority        *Priority         `json:"priority"`
	Notes           *string           `json:"notes"`
}

type composeLinePayload struct {
	PRProductID       string  `json:"prProductId" validate:"required"`
	ValidatedQuantity float64 `json:"validatedQuantity" validate:"gte=0"`
}

type composePORequest struct {
	PurchaseRequestID string               `json:"purchaseRequestId" validate:"required"`
	Notes             string               `json:"notes"`
	Products          []composeLinePayload `json:"products" validate:"required,min=1,dive"`
}

type updatePOStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required"`
}

func toLineItemInputs(products []productPayload) []LineItemInput {
	out := make([]LineItemInput, 0, len(products))
	for _, p := range products {
		out = append(out, LineItemInput{
			Name:      p.Name,
			Quantity:  p.Quantity,
			Unit:      p.Unit,
			Reference: p.Reference,
			ROB:       p.ROB,
			Images:    p.Images,
		})
	}
	return out
}
