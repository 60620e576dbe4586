package billing

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/httpx"
	"github.com/clinic/clinic/pkg/money"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc      *Service
	currency string
}

// NewHandler serves the invoice and payment endpoints. currency applies to
// requests that do not name one.
func NewHandler(svc *Service, currency string) *Handler {
	return &Handler{svc: svc, currency: currency}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/invoices", h.CreateInvoice)
	api.GET("/invoices", h.ListInvoices)
	api.GET("/invoices/number/:number", h.GetInvoiceByNumber)
	api.GET("/invoices/:id", h.GetInvoice)
	api.POST("/invoices/:id/line-items", h.AddLineItem)
	api.GET("/invoices/:id/line-items", h.GetLineItems)
	api.POST("/invoices/:id/validate", h.ValidateInvoice)
	api.POST("/invoices/:id/cancel", h.CancelInvoice)
	api.GET("/invoices/:id/payments", h.ListPayments)
	api.POST("/invoices/:id/payments", h.ApplyPayment)
}

// -- DTOs --

type createInvoiceRequest struct {
	PatientID      string  `json:"patient_id" validate:"required,uuid"`
	ConsultationID *string `json:"consultation_id" validate:"omitempty,uuid"`
	Currency       string  `json:"currency" validate:"currency"`
	Total          string  `json:"total" validate:"amount"`
	Coverage       string  `json:"coverage" validate:"amount"`
	Discount       string  `json:"discount" validate:"amount"`
	DueDate        *string `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Note           *string `json:"note"`
}

type lineItemRequest struct {
	ServiceID         *string `json:"service_id" validate:"omitempty,uuid"`
	MedicationID      *string `json:"medication_id" validate:"omitempty,uuid"`
	Description       string  `json:"description" validate:"required,max=500"`
	Quantity          int64   `json:"quantity" validate:"required,gt=0"`
	UnitPrice         string  `json:"unit_price" validate:"required,amount"`
	InsuranceCoverage string  `json:"insurance_coverage" validate:"amount"`
}

type paymentRequest struct {
	Amount    string  `json:"amount" validate:"required"`
	Method    string  `json:"method" validate:"required"`
	Reference string  `json:"reference" validate:"max=128"`
	Note      *string `json:"note"`
}

// invoiceResponse adds the derived amounts to an Invoice.
type invoiceResponse struct {
	*Invoice
	PatientDue money.Money `json:"patient_due"`
	Remaining  money.Money `json:"remaining"`
}

func toResponse(inv *Invoice) invoiceResponse {
	return invoiceResponse{Invoice: inv, PatientDue: inv.PatientDue(), Remaining: inv.Remaining()}
}

type paymentResponse struct {
	Payment *Payment        `json:"payment"`
	Invoice invoiceResponse `json:"invoice"`
}

// -- Invoice Handlers --

func (h *Handler) CreateInvoice(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	var req createInvoiceRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}

	cur := httpx.Currency(req.Currency, h.currency)
	in := NewInvoiceInput{Note: req.Note}
	if in.PatientID, err = httpx.ParseUUID(req.PatientID, "patient_id"); err != nil {
		return err
	}
	if in.ConsultationID, err = httpx.OptionalUUID(req.ConsultationID, "consultation_id"); err != nil {
		return err
	}
	if in.DueDate, err = httpx.OptionalDate(req.DueDate, "due_date"); err != nil {
		return err
	}
	if in.Total, err = httpx.OptionalAmount(req.Total, cur); err != nil {
		return err
	}
	if in.Coverage, err = httpx.OptionalAmount(req.Coverage, cur); err != nil {
		return err
	}
	if in.Discount, err = httpx.OptionalAmount(req.Discount, cur); err != nil {
		return err
	}

	inv, err := h.svc.CreateInvoice(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toResponse(inv))
}

func (h *Handler) GetInvoice(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInvoice(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toResponse(inv))
}

func (h *Handler) GetInvoiceByNumber(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.GetInvoiceByNumber(c.Request().Context(), actor, c.Param("number"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toResponse(inv))
}

func (h *Handler) ListInvoices(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	var f InvoiceFilter
	if f.PatientID, err = httpx.OptionalUUIDQuery(c, "patient_id"); err != nil {
		return err
	}
	if raw := c.QueryParam("status"); raw != "" {
		if f.Status, err = ParseStatus(raw); err != nil {
			return err
		}
	}
	if f.From, f.To, err = httpx.DateRange(c); err != nil {
		return err
	}

	items, total, err := h.svc.ListInvoices(c.Request().Context(), actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	out := make([]invoiceResponse, 0, len(items))
	for _, inv := range items {
		out = append(out, toResponse(inv))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(out, total, pg))
}

func (h *Handler) ValidateInvoice(c echo.Context) error {
	return h.transition(c, h.svc.ValidateInvoice)
}

func (h *Handler) CancelInvoice(c echo.Context) error {
	return h.transition(c, h.svc.CancelInvoice)
}

func (h *Handler) transition(c echo.Context, fn func(context.Context, auth.Actor, uuid.UUID) (*Invoice, error)) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	inv, err := fn(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toResponse(inv))
}

// -- Line Item Handlers --

func (h *Handler) AddLineItem(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req lineItemRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	inv, err := h.svc.GetInvoice(ctx, actor, id)
	if err != nil {
		return err
	}
	li := &InvoiceLineItem{Description: req.Description, Quantity: req.Quantity}
	if li.ServiceID, err = httpx.OptionalUUID(req.ServiceID, "service_id"); err != nil {
		return err
	}
	if li.MedicationID, err = httpx.OptionalUUID(req.MedicationID, "medication_id"); err != nil {
		return err
	}
	if li.UnitPrice, err = httpx.Amount(req.UnitPrice, inv.Currency()); err != nil {
		return err
	}
	if li.InsuranceCoverage, err = httpx.OptionalAmount(req.InsuranceCoverage, inv.Currency()); err != nil {
		return err
	}

	updated, err := h.svc.AddLineItem(ctx, actor, id, li)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"line_item": li,
		"invoice":   toResponse(updated),
	})
}

func (h *Handler) GetLineItems(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.GetLineItems(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*InvoiceLineItem{}
	}
	return c.JSON(http.StatusOK, items)
}

// -- Payment Handlers --

func (h *Handler) ApplyPayment(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req paymentRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	inv, err := h.svc.GetInvoice(ctx, actor, id)
	if err != nil {
		return err
	}
	amount, err := httpx.Amount(req.Amount, inv.Currency())
	if err != nil {
		return err
	}

	p, updated, err := h.svc.ApplyPayment(ctx, actor, id, PaymentInput{
		Amount:    amount,
		Method:    req.Method,
		Reference: req.Reference,
		Note:      req.Note,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, paymentResponse{Payment: p, Invoice: toResponse(updated)})
}

func (h *Handler) ListPayments(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	items, err := h.svc.ListPayments(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Payment{}
	}
	return c.JSON(http.StatusOK, items)
}
