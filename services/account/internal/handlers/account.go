package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CyberwizD/account-events/services/account/internal/middleware"
	"github.com/CyberwizD/account-events/services/account/internal/models"
	"github.com/CyberwizD/account-events/services/account/internal/services"
	"github.com/gin-gonic/gin"
)

// AccountHandler serves the account API.
type AccountHandler struct {
	accounts      *services.AccountService
	sessions      *services.SessionManager
	secureCookies bool
	logger        *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *services.AccountService, sessions *services.SessionManager, secureCookies bool, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts:      accounts,
		sessions:      sessions,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// SignUp handles POST /signup.
func (h *AccountHandler) SignUp(c *gin.Context) {
	var req models.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if err := req.Normalize(); err != nil {
		respondValidationError(c, err)
		return
	}
	dob, err := req.BirthDate()
	if err != nil {
		respondValidationError(c, err)
		return
	}

	user, err := h.accounts.SignUp(c.Request.Context(), services.SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		Role:        req.RoleValue(),
		Gender:      req.GenderValue(),
		DOB:         dob,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, "user created", user)
}

// SignIn handles POST /signin.
func (h *AccountHandler) SignIn(c *gin.Context) {
	var req models.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if err := req.Normalize(); err != nil {
		respondValidationError(c, err)
		return
	}

	user, err := h.accounts.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	session, err := h.sessions.Issue(user)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setSessionCookie(c, session, int(h.sessions.TTL().Seconds()))
	respondSuccess(c, http.StatusOK, "signed in", user)
}

// SignOut handles POST /signout.
func (h *AccountHandler) SignOut(c *gin.Context) {
	h.setSessionCookie(c, "", -1)
	respondSuccess(c, http.StatusOK, "signed out", nil)
}

// CurrentUser handles GET /current-user. Anonymous callers get null.
func (h *AccountHandler) CurrentUser(c *gin.Context) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		respondSuccess(c, http.StatusOK, "current user", gin.H{"currentUser": nil})
		return
	}
	user, err := h.accounts.GetUser(c.Request.Context(), userID)
	if errors.Is(err, services.ErrUserNotFound) {
		respondSuccess(c, http.StatusOK, "current user", gin.H{"currentUser": nil})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "current user", gin.H{"currentUser": user})
}

// VerifyEmail handles POST /verify-email/:token.
func (h *AccountHandler) VerifyEmail(c *gin.Context) {
	user, err := h.accounts.VerifyEmail(c.Request.Context(), c.Param("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "email verified", user)
}

// ForgotPassword handles POST /forgot-password.
func (h *AccountHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if err := h.accounts.ForgotPassword(c.Request.Context(), normalizeEmail(req.Email)); err != nil {
		h.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "password reset email sent", nil)
}

// ResetPassword handles POST /reset-password/:token.
func (h *AccountHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if err := req.Normalize(); err != nil {
		respondValidationError(c, err)
		return
	}
	if err := h.accounts.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		h.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "password updated", nil)
}

// ChangePassword handles POST /change-password for a signed-in user.
func (h *AccountHandler) ChangePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, err)
		return
	}
	if err := req.Normalize(); err != nil {
		respondValidationError(c, err)
		return
	}
	userID := c.GetString(middleware.ContextUserID)
	if err := h.accounts.ChangePassword(c.Request.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, "password updated", nil)
}

func (h *AccountHandler) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, value, maxAge, "/", "", h.secureCookies, true)
}

// fail maps service errors to responses. Internal errors are logged, not
// echoed to the client.
func (h *AccountHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmailInUse):
		respondError(c, http.StatusBadRequest, "Email in use")
	case errors.Is(err, services.ErrInvalidCredentials):
		respondError(c, http.StatusBadRequest, "Invalid Login Credentials")
	case errors.Is(err, services.ErrEmailNotVerified):
		respondError(c, http.StatusBadRequest, "Email not verified")
	case errors.Is(err, services.ErrTokenNotFound):
		respondError(c, http.StatusBadRequest, "Invalid/Expired Token")
	case errors.Is(err, services.ErrUserNotFound):
		respondError(c, http.StatusNotFound, "User not found")
	case errors.Is(err, services.ErrNotify):
		h.logger.Error("event publish failed", slog.String("path", c.FullPath()), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Something went wrong, please try again")
	default:
		h.logger.Error("request failed", slog.String("path", c.FullPath()), slog.Any("error", err))
		respondError(c, http.StatusInternalServerError, "Something went wrong")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
