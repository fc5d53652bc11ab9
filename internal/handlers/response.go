// Package handlers exposes the HTTP API: authentication, course and project
// CRUD, generation job control, and the SSE event stream.
package handlers

import "github.com/gin-gonic/gin"

// RespondOK writes the standard success envelope.
func RespondOK(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

// RespondError writes the standard error envelope. Messages are user-facing
// and usually in Chinese; internal detail belongs in the log, not here.
func RespondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}
