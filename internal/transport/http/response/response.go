package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody mirrors the {"detail": ...} shape clients of the service expect.
type ErrorBody struct {
	Detail interface{} `json:"detail"`
}

type FieldError struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func Error(c *gin.Context, httpStatus int, detail string) {
	c.JSON(httpStatus, ErrorBody{Detail: detail})
}

// MissingField reports a required multipart field as a 422 validation error.
func MissingField(c *gin.Context, field string) {
	c.JSON(http.StatusUnprocessableEntity, ErrorBody{Detail: []FieldError{{
		Loc:  []string{"body", field},
		Msg:  "Field required",
		Type: "missing",
	}}})
}

func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, "Internal Server Error")
}
