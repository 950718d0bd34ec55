package response

import "github.com/gin-gonic/gin"

type APIError struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func Success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, data)
}

func Error(c *gin.Context, status int, code int, message string) {
	c.AbortWithStatusJSON(status, APIError{Error: message, Code: code})
}
