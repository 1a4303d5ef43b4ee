package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

// Health responde ok quando o banco responde.
func Health(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if gdb != nil {
			if err := gdb.DB().PingContext(requestCtx(c)); err != nil {
				RespondError(c, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		c.String(http.StatusOK, "ok")
	}
}
