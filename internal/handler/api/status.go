package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"WindowEdge/internal/domain/models"
	"WindowEdge/internal/usecase"
	xhttp "WindowEdge/pkg/http"
	xlogger "WindowEdge/pkg/logger"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func() bool

// StatusHandler serves the read-only engine status API.
type StatusHandler struct {
	logger *xlogger.Logger
	status *usecase.StatusUseCase
	checks map[string]HealthCheck
}

func NewStatusHandler(logger *xlogger.Logger, status *usecase.StatusUseCase, checks map[string]HealthCheck) *StatusHandler {
	if logger == nil {
		logger = xlogger.NewNop()
	}
	return &StatusHandler{logger: logger, status: status, checks: checks}
}

func (h *StatusHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/status", h.All)
	g.GET("/status/:asset", h.Asset)
	g.GET("/decisions", h.Decisions)
	g.GET("/volatility", h.Volatility)
}

type healthResponse struct {
	Healthy bool            `json:"healthy"`
	Checks  map[string]bool `json:"checks"`
	Failing []string        `json:"failing,omitempty"`
}

// Health returns 200 when every registered check passes, 503 otherwise.
func (h *StatusHandler) Health(c echo.Context) error {
	res := healthResponse{Healthy: true, Checks: make(map[string]bool, len(h.checks))}
	for name, check := range h.checks {
		ok := check()
		res.Checks[name] = ok
		if !ok {
			res.Healthy = false
			res.Failing = append(res.Failing, name)
		}
	}
	sort.Strings(res.Failing)
	if !res.Healthy {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StatusHandler) All(c echo.Context) error {
	res, err := h.status.All(c.Request().Context())
	if err != nil {
		h.logger.Error("status usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *StatusHandler) Asset(c echo.Context) error {
	res, err := h.status.Asset(c.Param("asset"))
	if err != nil {
		return h.mapError(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, res)
}

func (h *StatusHandler) Decisions(c echo.Context) error {
	req := &models.DecisionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res := h.status.Decisions(*req)
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *StatusHandler) Volatility(c echo.Context) error {
	req := &models.VolatilityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.status.Volatility(req.Asset)
	if err != nil {
		return h.mapError(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *StatusHandler) mapError(c echo.Context, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	}
	h.logger.Error("status usecase error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError("status unavailable").WithError(err))
}
