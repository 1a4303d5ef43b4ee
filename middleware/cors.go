package middleware

import "github.com/gin-gonic/gin"

// CORSMiddleware libera CORS básico: o widget de webchat roda no site da clínica.
// Se/Quando precisar endurecer isso, troque para uma lista de origens permitidas.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Session-Token")
		header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
