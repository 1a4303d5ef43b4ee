package router

import (
	"net/http"

	"carelink/controllers"

	"github.com/gin-gonic/gin"
)

// Adminizer blocks access when operator is not admin.
func Adminizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		op, ok := controllers.GetOperator(c)
		if !ok {
			controllers.RespondError(c, "unauthorized", http.StatusUnauthorized)
			c.Abort()
			return
		}
		if !op.Admin {
			controllers.RespondError(c, "admin required", http.StatusForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
