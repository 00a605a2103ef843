package http

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Handler serves the unauthenticated service endpoints.
type Handler struct{}

func NewHandler() *Handler { return &Handler{} }

type healthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339Nano),
	})
}
