package http

import "github.com/labstack/echo/v4"

// Handler mounts a group of API routes; /metrics is added by the server itself.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// RouteFunc lets a plain function serve as a Handler.
type RouteFunc func(e *echo.Echo)

func (f RouteFunc) RegisterRoutes(e *echo.Echo) { f(e) }
