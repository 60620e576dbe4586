package expense

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/httpx"
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
	api.POST("/expenses", h.Record)
	api.GET("/expenses", h.List)
}

type recordRequest struct {
	Category      string  `json:"category" validate:"required,max=50"`
	Description   string  `json:"description" validate:"required"`
	Amount        string  `json:"amount" validate:"required"`
	Currency      string  `json:"currency" validate:"currency"`
	Supplier      *string `json:"supplier" validate:"omitempty,max=255"`
	PaymentMethod string  `json:"payment_method" validate:"required"`
	ReceiptNumber *string `json:"receipt_number" validate:"omitempty,max=64"`
	ExpenseDate   *string `json:"expense_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) Record(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	var req recordRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}

	in := Input{
		Category:      req.Category,
		Description:   req.Description,
		Supplier:      req.Supplier,
		PaymentMethod: req.PaymentMethod,
		ReceiptNumber: req.ReceiptNumber,
	}
	if in.Amount, err = httpx.Amount(req.Amount, httpx.Currency(req.Currency, h.currency)); err != nil {
		return err
	}
	if in.ExpenseDate, err = httpx.OptionalDate(req.ExpenseDate, "expense_date"); err != nil {
		return err
	}

	e, err := h.svc.Record(c.Request().Context(), actor, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) List(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	f := Filter{Category: c.QueryParam("category")}
	if f.From, f.To, err = httpx.DateRange(c); err != nil {
		return err
	}
	items, total, err := h.svc.List(c.Request().Context(), actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Expense{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
