package httpapi

import (
	"github.com/gin-gonic/gin"
)

// errorResponse keeps the set-alarm reply shape: success=false plus a
// human message.
type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// abort records err on the context for the logging middleware and writes
// the public response.
func abort(c *gin.Context, status int, err error, msg string, detail any) {
	if err != nil {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, errorResponse{Success: false, Message: msg, Detail: detail})
}
