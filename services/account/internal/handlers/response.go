package handlers

import (
	"net/http"

	"github.com/CyberwizD/account-events/services/account/internal/models"
	"github.com/gin-gonic/gin"
)

// respond writes the account envelope; success follows the status class.
func respond(c *gin.Context, status int, message string, data interface{}, detail string) {
	c.JSON(status, models.ResponseEnvelope{
		Success: status < http.StatusBadRequest,
		Message: message,
		Data:    data,
		Error:   detail,
	})
}

func respondSuccess(c *gin.Context, status int, message string, data interface{}) {
	respond(c, status, message, data, "")
}

// respondError never echoes internal error text to the client.
func respondError(c *gin.Context, status int, message string) {
	respond(c, status, message, nil, "")
}

func respondValidationError(c *gin.Context, err error) {
	respond(c, http.StatusBadRequest, "validation failed", nil, err.Error())
}
