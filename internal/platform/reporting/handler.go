package reporting

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/httpx"
)

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	svc      *Service
	currency string
}

func NewHandler(svc *Service, currency string) *Handler {
	return &Handler{svc: svc, currency: currency}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/reports")
	g.GET("/financial", h.Financial)
	g.GET("/measures", h.ListMeasures)
	g.GET("/measures/:id", h.EvaluateMeasure)
}

// Financial defaults to the current calendar month.
func (h *Handler) Financial(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	from, to, err := httpx.DateRange(c)
	if err != nil {
		return err
	}
	w := Window{Currency: httpx.Currency(c.QueryParam("currency"), h.currency)}
	w.From, w.To = MonthWindow(h.svc.now())
	if from != nil {
		w.From = *from
	}
	if to != nil {
		w.To = *to
	}

	report, err := h.svc.Financial(c.Request().Context(), actor, w)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// ListMeasures returns all available measure definitions.
func (h *Handler) ListMeasures(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	if err := actor.Require(auth.CapReportRead); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, PredefinedMeasures)
}

// EvaluateMeasure runs a measure with its parameters read from the query string.
func (h *Handler) EvaluateMeasure(c echo.Context) error {
	actor, err := httpx.Actor(c)
	if err != nil {
		return err
	}
	params := make(map[string]string)
	for name, values := range c.QueryParams() {
		if len(values) > 0 {
			params[name] = values[0]
		}
	}
	report, err := h.svc.EvaluateMeasure(c.Request().Context(), actor, c.Param("id"), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
