package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type listRequest struct {
	Asset string `query:"asset" validate:"omitempty,min=2"`
	Limit int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
}

// request metrics register once per process, so every server shares one registry
var testRegistry = prometheus.NewRegistry()

func newTestServer(t *testing.T, r RouteFunc) *Server {
	t.Helper()
	return NewServer(r, nil, WithRegistry(testRegistry, testRegistry), WithPort(0))
}

func do(s *Server, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestAppErrorResponse(t *testing.T) {
	s := newTestServer(t, func(e *echo.Echo) {
		e.GET("/missing", func(c echo.Context) error {
			return AppErrorResponse(c, NotFoundErrorf("asset %s not tracked", "DOGE").WithError(errors.New("lookup")))
		})
		e.GET("/plain", func(c echo.Context) error {
			return AppErrorResponse(c, errors.New("boom"))
		})
	})

	rec := do(s, "/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
	var body struct {
		Status int         `json:"status"`
		Data   []*AppError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_NOT_FOUND", body.Data[0].Code)
	assert.Equal(t, "asset DOGE not tracked", body.Data[0].Message)

	assert.Equal(t, http.StatusInternalServerError, do(s, "/plain").Code)
}

func TestReadAndValidateRequest(t *testing.T) {
	var got listRequest
	s := newTestServer(t, func(e *echo.Echo) {
		e.GET("/list", func(c echo.Context) error {
			got = listRequest{}
			if errs := ReadAndValidateRequest(c, &got); errs != nil {
				return BadRequestResponse(c, errs)
			}
			return SuccessResponse(c, got)
		})
	})

	require.Equal(t, http.StatusOK, do(s, "/list?asset=BTC").Code)
	assert.Equal(t, 50, got.Limit)

	rec := do(s, "/list?limit=1000")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Data []ValidationError `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "ERR_LTE", body.Data[0].Code)
	assert.Equal(t, "Limit", body.Data[0].Field)
}

func TestServerExposesMetrics(t *testing.T) {
	s := newTestServer(t, func(e *echo.Echo) {
		e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	})

	require.Equal(t, http.StatusNoContent, do(s, "/ping").Code)
	rec := do(s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "windowedge_http_requests_total")
}
