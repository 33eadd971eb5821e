package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/studiofolio/portfolio/backend/internal/config"
	"github.com/studiofolio/portfolio/backend/internal/middleware"
	"github.com/studiofolio/portfolio/backend/internal/services"
	"github.com/studiofolio/portfolio/backend/pkg/response"
)

type AuthHandler struct {
	authService  *services.AuthService
	cookieName   string
	secureCookie bool
}

func NewAuthHandler(authService *services.AuthService, cfg *config.AuthConfig) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		cookieName:   cfg.CookieName,
		secureCookie: cfg.SecureCookie,
	}
}

// Login exchanges the admin password for a token, returned in the body and
// set as an HTTP-only cookie.
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "password is required")
		return
	}

	resp, err := h.authService.Login(req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, resp.Token, int(h.authService.TTL().Seconds()), "/", "", h.secureCookie, true)
	response.Success(c, resp)
}

// Logout clears the session cookie. Tokens are stateless, so a copied token
// stays valid until it expires.
// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.secureCookie, true)
	response.Success(c, gin.H{"message": "logged out"})
}

// Verify reports whether the caller holds a valid admin token.
// GET /api/auth/verify
func (h *AuthHandler) Verify(c *gin.Context) {
	token := middleware.ExtractToken(c, h.cookieName)
	if token == "" || !h.authService.VerifyToken(token) {
		response.Unauthorized(c, "unauthorized")
		return
	}
	response.Success(c, gin.H{"authenticated": true})
}
