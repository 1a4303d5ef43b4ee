package router

import (
	"net/http"

	"carelink/controllers"

	"github.com/gin-gonic/gin"
)

// Authorizer bloqueia rotas de operador quando o token não carrega um operador.
func Authorizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		op, ok := controllers.GetOperator(c)
		if !ok {
			controllers.RespondError(c, "unauthorized", http.StatusUnauthorized)
			c.Abort()
			return
		}
		if op.OperatorID == "" || op.OrgID == "" {
			controllers.RespondError(c, "sem acesso ao painel", http.StatusForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
