package controllers

import (
	"net/http"
	"strings"

	"carelink/tools"

	"github.com/gin-gonic/gin"
)

const ctxOperatorKey = "auth_operator"

// AuthRequired valida o Bearer token do operador e guarda as claims no contexto.
// Navegadores não mandam header no upgrade do websocket, então ?access_token= também vale.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			raw = c.Query("access_token")
		}
		if strings.TrimSpace(raw) == "" {
			RespondError(c, "ops! wait", http.StatusUnauthorized)
			c.Abort()
			return
		}

		claims, err := tools.ParseOperatorToken(secret, raw)
		if err != nil {
			RespondError(c, "ops! token inválido", http.StatusUnauthorized)
			c.Abort()
			return
		}
		// todo acesso a contatos é escopado pela organização
		if strings.TrimSpace(claims.OrgID) == "" {
			RespondError(c, "token sem organização", http.StatusForbidden)
			c.Abort()
			return
		}

		c.Set(ctxOperatorKey, claims)
		c.Next()
	}
}

// GetOperator devolve as claims carregadas por AuthRequired.
func GetOperator(c *gin.Context) (tools.OperatorClaims, bool) {
	v, ok := c.Get(ctxOperatorKey)
	if !ok {
		return tools.OperatorClaims{}, false
	}
	claims, ok := v.(tools.OperatorClaims)
	return claims, ok
}

// mustOperator é usado pelos handlers atrás do AuthRequired.
func mustOperator(c *gin.Context) (tools.OperatorClaims, bool) {
	claims, ok := GetOperator(c)
	if !ok {
		RespondError(c, "unauthorized", http.StatusUnauthorized)
		return claims, false
	}
	return claims, true
}
