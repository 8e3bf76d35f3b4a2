package response

import (
	"net/http"

	appErr "arena-service/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Body is the envelope every endpoint answers with.
type Body struct {
	Code int         `json:"code"`
	Data interface{} `json:"data"`
	Msg  string      `json:"msg"`
}

func Success(c *gin.Context, data interface{}) {
	JSON(c, http.StatusOK, data, "")
}

func Error(c *gin.Context, status int, msg string) {
	JSON(c, status, gin.H{}, msg)
}

// Fail maps an engine error onto its status code. Unclassified errors are
// attached to the gin context for the logger and answered with a generic 500.
func Fail(c *gin.Context, err error) {
	status := appErr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
	}
	Error(c, status, msg)
}

func JSON(c *gin.Context, status int, data interface{}, msg string) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, Body{
		Code: status,
		Data: data,
		Msg:  msg,
	})
}
