package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"chatify-service/internal/auth"
	"chatify-service/internal/ids"
	"chatify-service/internal/models"
	"chatify-service/internal/repositories"
	"chatify-service/internal/telemetry"
)

// AuthHandler manages registration, login and profile setup.
type AuthHandler struct {
	users  repositories.UserRepository
	tokens *auth.TokenManager
	audit  *telemetry.AuditEmitter
}

// NewAuthHandler builds an AuthHandler.
func NewAuthHandler(users repositories.UserRepository, tokens *auth.TokenManager, audit *telemetry.AuditEmitter) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, audit: audit}
}

// Register creates an account. The profile starts incomplete: username
// mirrors the email and no language is set until profile setup.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create account"})
		return
	}

	user := models.User{
		ID:              ids.New(),
		Username:        req.Email,
		Email:           req.Email,
		PasswordHash:    hash,
		ProfileImageURL: "none",
		AccountType:     "free",
		Translator:      "google",
	}
	if err := h.users.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, repositories.ErrEmailTaken) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create account"})
		return
	}

	h.audit.Emit(c.Request.Context(), "register", "account created", requestIDFromContext(c), user.ID)
	c.JSON(http.StatusCreated, gin.H{"user_id": user.ID})
}

// Login verifies credentials and issues a bearer token.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.users.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	_ = h.users.TouchLastLogin(c.Request.Context(), user.ID)
	h.audit.Emit(c.Request.Context(), "login", "login succeeded", requestIDFromContext(c), user.ID)

	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateProfile completes profile setup: display name, preferred
// language and avatar.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req struct {
		Username        string `json:"username" binding:"required"`
		Language        string `json:"language" binding:"required"`
		ProfileImageURL string `json:"profile_image_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ProfileImageURL == "" {
		req.ProfileImageURL = "none"
	}

	userID := userIDFromContext(c)
	if err := h.users.UpdateProfile(c.Request.Context(), userID, req.Username, req.Language, req.ProfileImageURL); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repositories.ErrUserNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "could not update profile"})
		return
	}

	h.audit.Emit(c.Request.Context(), "profile_setup", "profile completed", requestIDFromContext(c), userID)
	c.Status(http.StatusNoContent)
}
