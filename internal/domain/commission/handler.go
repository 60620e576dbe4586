package commission

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/httpx"
	"github.com/clinic/clinic/pkg/money"
	"github.com/clinic/clinic/pkg/pagination"
)

type Handler struct {
	svc      *Service
	currency string
}

func NewHandler(svc *Service, currency string) *Handler {
	return &Handler{svc: svc, currency: currency}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/practitioners", h.CreatePractitioner)
	api.GET("/practitioners", h.ListPractitioners)
	api.GET("/practitioners/:id", h.GetPractitioner)

	api.POST("/commissions/calculate", h.Calculate)
	api.POST("/commissions/periods/:period", h.CalculatePeriod)
	api.GET("/commissions", h.List)
	api.POST("/commissions/:id/pay", h.MarkPaid)
}

// -- DTOs --

type practitionerRequest struct {
	FirstName      string  `json:"first_name" validate:"required,max=100"`
	LastName       string  `json:"last_name" validate:"required,max=100"`
	Specialty      *string `json:"specialty" validate:"omitempty,max=100"`
	Phone          *string `json:"phone" validate:"omitempty,max=32"`
	Email          *string `json:"email" validate:"omitempty,email"`
	CommissionRate string  `json:"commission_rate" validate:"amount"`
	FixedAmount    string  `json:"fixed_amount" validate:"amount"`
	Currency       string  `json:"currency" validate:"currency"`
}

// BatchItem is one act in a period batch, as posted to the API or read by
// the commissions CLI.
type BatchItem struct {
	PractitionerID string  `json:"practitioner_id" validate:"required,uuid"`
	InvoiceID      *string `json:"invoice_id" validate:"omitempty,uuid"`
	ServiceID      *string `json:"service_id" validate:"omitempty,uuid"`
	BaseAmount     string  `json:"base_amount" validate:"required"`
}

type BatchRequest struct {
	Currency string      `json:"currency" validate:"currency"`
	Items    []BatchItem `json:"items" validate:"required,min=1,dive"`
}

// Inputs converts the request into service inputs. Amounts default to
// currency when the request names none.
func (r BatchRequest) Inputs(currency string) ([]Input, error) {
	cur := httpx.Currency(r.Currency, currency)
	out := make([]Input, 0, len(r.Items))
	for i, item := range r.Items {
		in, err := item.input(cur)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindOf(err), err, "item %d: %s", i, apperr.MessageOf(err))
		}
		out = append(out, in)
	}
	return out, nil
}

func (b BatchItem) input(currency string) (Input, error) {
	var in Input
	var err error
	if in.PractitionerID, err = parseUUID(b.PractitionerID, "practitioner_id"); err != nil {
		return in, err
	}
	if b.InvoiceID != nil {
		id, err := parseUUID(*b.InvoiceID, "invoice_id")
		if err != nil {
			return in, err
		}
		in.InvoiceID = &id
	}
	if b.ServiceID != nil {
		id, err := parseUUID(*b.ServiceID, "service_id")
		if err != nil {
			return in, err
		}
		in.ServiceID = &id
	}
	in.BaseAmount, err = httpx.Amount(b.BaseAmount, currency)
	return in, err
}

func parseUUID(raw, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.New(apperr.Validation, "invalid %s", name)
	}
	return id, nil
}

type calculateRequest struct {
	BatchItem
	Period   string `json:"period" validate:"required"`
	Currency string `json:"currency" validate:"currency"`
}

// -- Practitioner Handlers --

func (h *Handler) CreatePractitioner(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	var req practitionerRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}

	in := PractitionerInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Specialty: req.Specialty,
		Phone:     req.Phone,
		Email:     req.Email,
		Currency:  httpx.Currency(req.Currency, h.currency),
	}
	if req.CommissionRate != "" {
		rate, err := decimal.NewFromString(req.CommissionRate)
		if err != nil {
			return apperr.New(apperr.InvalidConfig, "invalid commission_rate")
		}
		in.CommissionRate = &rate
	}
	if req.FixedAmount != "" {
		fixed, err := httpx.Amount(req.FixedAmount, in.Currency)
		if err != nil {
			return err
		}
		in.FixedAmount = &fixed
	}

	p, err := h.svc.CreatePractitioner(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPractitioner(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPractitioner(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPractitioners(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	activeOnly := false
	if raw := c.QueryParam("active"); raw != "" {
		if activeOnly, err = strconv.ParseBool(raw); err != nil {
			return apperr.New(apperr.Validation, "active must be a boolean")
		}
	}
	items, total, err := h.svc.ListPractitioners(c.Request().Context(), actor, activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Practitioner{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

// -- Commission Handlers --

func (h *Handler) Calculate(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	var req calculateRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	in, err := req.BatchItem.input(httpx.Currency(req.Currency, h.currency))
	if err != nil {
		return err
	}
	out, err := h.svc.Calculate(c.Request().Context(), actor, req.Period, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) CalculatePeriod(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	var req BatchRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	inputs, err := req.Inputs(h.currency)
	if err != nil {
		return err
	}
	out, err := h.svc.CalculatePeriod(c.Request().Context(), actor, c.Param("period"), inputs)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"period": c.Param("period"),
		"items":  out,
		"total":  totalOf(out),
	})
}

func (h *Handler) List(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	f := Filter{Period: c.QueryParam("period")}
	if raw := c.QueryParam("practitioner_id"); raw != "" {
		id, err := parseUUID(raw, "practitioner_id")
		if err != nil {
			return err
		}
		f.PractitionerID = &id
	}
	if raw := c.QueryParam("status"); raw != "" {
		if f.Status, err = ParseStatus(raw); err != nil {
			return err
		}
	}

	items, total, err := h.svc.List(c.Request().Context(), actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Commission{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) MarkPaid(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	out, err := h.svc.MarkPaid(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// totalOf sums commission amounts per currency.
func totalOf(items []*Commission) map[string]money.Money {
	totals := make(map[string]money.Money)
	for _, c := range items {
		cur := c.Amount.Currency()
		t, ok := totals[cur]
		if !ok {
			t = money.Zero(cur)
		}
		totals[cur], _ = t.Add(c.Amount)
	}
	return totals
}
