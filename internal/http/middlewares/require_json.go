package middlewares

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireJSON rejects mutating requests whose Content-Type is not
// application/json. Media type parameters such as charset are
// tolerated; GET and DELETE pass through untouched.
func RequireJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			mt, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
			if err != nil || mt != "application/json" {
				abortError(c, http.StatusUnsupportedMediaType, "ValidationError", "Content-Type must be application/json")
				return
			}
		}
		c.Next()
	}
}
