package cashier

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
	api.POST("/cash-sessions", h.Open)
	api.GET("/cash-sessions", h.List)
	api.GET("/cash-sessions/current", h.Current)
	api.GET("/cash-sessions/:id", h.Get)
	api.POST("/cash-sessions/:id/close", h.Close)
}

type openRequest struct {
	OpeningBalance string  `json:"opening_balance" validate:"required,amount"`
	Currency       string  `json:"currency" validate:"currency"`
	Note           *string `json:"note" validate:"omitempty,max=1000"`
}

type closeRequest struct {
	ClosingBalance string  `json:"closing_balance" validate:"required"`
	Note           *string `json:"note" validate:"omitempty,max=1000"`
}

func (h *Handler) Open(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	var req openRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	opening, err := httpx.Amount(req.OpeningBalance, httpx.Currency(req.Currency, h.currency))
	if err != nil {
		return err
	}
	sess, err := h.svc.Open(c.Request().Context(), actor, opening, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) Current(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	sess, err := h.svc.Current(c.Request().Context(), actor)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	sess, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) List(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	var f SessionFilter
	if f.ActorID, err = httpx.OptionalUUIDQuery(c, "actor_id"); err != nil {
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

	items, total, err := h.svc.List(c.Request().Context(), actor, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Session{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Close(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		return err
	}
	var req closeRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	sess, err := h.svc.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	closing, err := httpx.Amount(req.ClosingBalance, sess.Currency())
	if err != nil {
		return err
	}
	closed, err := h.svc.Close(ctx, actor, id, closing, req.Note)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, closed)
}
