package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ParamID lê um id (uuid) da rota.
func ParamID(c *gin.Context, name string) (string, bool) {
	v := strings.TrimSpace(c.Param(name))
	if v == "" {
		RespondError(c, name+" é obrigatório", http.StatusBadRequest)
		return "", false
	}
	if _, err := uuid.Parse(v); err != nil {
		RespondError(c, name+" inválido", http.StatusBadRequest)
		return "", false
	}
	return v, true
}

// QueryInt lê um inteiro >= 0 da query; ausente devolve def.
func QueryInt(c *gin.Context, name string, def int64) (int64, bool) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		return def, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		RespondError(c, name+" inválido", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}
