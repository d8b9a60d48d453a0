package response

import (
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Error(c *gin.Context, status int, code int, message string) {
	c.AbortWithStatusJSON(status, errorBody{Code: code, Error: message})
}
