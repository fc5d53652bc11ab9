package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func Healthcheck(c *gin.Context) {
	RespondOK(c, http.StatusOK, gin.H{"status": "ok"})
}
