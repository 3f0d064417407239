package http

import (
	"net/http"
	"strings"
	"time"

	"camward/internal/core/services"
	"camward/pkg/errors"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService services.AuthService
	tokenTTL    time.Duration
}

func NewAuthHandler(authService services.AuthService, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tokenTTL:    tokenTTL,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/token", h.Token)
	}
}

type TokenRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Password string `json:"password" binding:"required,max=128"`
}

// Token exchanges the configured operator credentials for a bearer
// token used on mutating routes.
func (h *AuthHandler) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)

	token, err := h.authService.Authenticate(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"status": "error",
			"error":  "invalid credentials",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "success",
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(h.tokenTTL / time.Second),
	})
}
