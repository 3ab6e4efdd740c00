package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/classr/internal/platform/ctxutil"
)

// APIError is the body of every non-RPC failure. TraceID matches the
// X-Trace-Id header so a client report can be found in the request log.
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError aborts the handler chain with an error envelope.
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{
		Message: msg,
		Code:    code,
		TraceID: ctxutil.TraceID(c.Request.Context()),
	}})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
