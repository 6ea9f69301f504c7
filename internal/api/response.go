package api

import (
	"errors"
	"net/http"

	"github.com/STTM-NSU/paper-trader/internal/ledger"
	"github.com/gin-gonic/gin"
)

type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
	})
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
	})
}

// statusOf maps ledger errors to a status. Anything unknown is a 500 whose
// message must not reach the client.
func statusOf(err error) int {
	var (
		alreadyOpen *ledger.PositionAlreadyOpenError
		noOpen      *ledger.NoOpenPositionError
	)
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &alreadyOpen), errors.As(err, &noOpen):
		return http.StatusConflict
	case ledger.IsRejection(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(c *gin.Context, op string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.logger.Errorf("%s: can't %s", err, op)
		fail(c, status, "internal error")
		return
	}
	fail(c, status, err.Error())
}
