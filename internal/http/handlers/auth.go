package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/luckyshop/server/internal/apperr"
	"github.com/luckyshop/server/internal/auth"
	"github.com/luckyshop/server/internal/middleware"
)

// AuthHandler handles registration, password reset, login and session endpoints
type AuthHandler struct {
	otpService  *auth.OtpService
	authService *auth.AuthService
	cookies     middleware.CookieConfig
	validate    *validator.Validate
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(otpService *auth.OtpService, authService *auth.AuthService, cookies middleware.CookieConfig) *AuthHandler {
	return &AuthHandler{
		otpService:  otpService,
		authService: authService,
		cookies:     cookies,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

// phoneRequest is the request body for POST /register and POST /request-otp
type phoneRequest struct {
	Phone string `json:"phone" validate:"required"`
}

// verifyOTPRequest is the request body for POST /verify-otp and POST /verify-otp-password
type verifyOTPRequest struct {
	Phone string `json:"phone" validate:"required"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
	Token string `json:"token" validate:"required"`
}

// confirmPasswordRequest is the request body for POST /confirm-password and POST /reset-password
type confirmPasswordRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,len=8"`
}

// loginRequest is the request body for POST /login
type loginRequest struct {
	Phone    string `json:"phone" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// challengeResponse carries the token the client must present in the next step
type challengeResponse struct {
	Message string `json:"message"`
	Phone   string `json:"phone"`
	Token   string `json:"token"`
}

// sessionResponse is returned whenever a new session is issued
type sessionResponse struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId"`
}

// authCheckResponse is the JSON response for GET /auth-check
type authCheckResponse struct {
	UserID   int64   `json:"userId"`
	UserName string  `json:"userName"`
	Image    *string `json:"image"`
}

// HandleRegister handles POST /register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	h.requestCode(w, r, auth.PurposeRegister)
}

// HandleRequestOTP handles POST /request-otp
func (h *AuthHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	h.requestCode(w, r, auth.PurposeReset)
}

func (h *AuthHandler) requestCode(w http.ResponseWriter, r *http.Request, purpose auth.Purpose) {
	var req phoneRequest
	if err := h.decode(r, &req); err != nil {
		middleware.RespondError(w, err)
		return
	}

	ch, err := h.otpService.RequestCode(r.Context(), req.Phone, purpose)
	if err != nil {
		middleware.RespondError(w, err)
		return
	}

	middleware.RespondJSON(w, http.StatusOK, challengeResponse{
		Message: "We have sent OTP to " + ch.Phone,
		Phone:   ch.Phone,
		Token:   ch.Token,
	})
}

// HandleVerifyOTP handles POST /verify-otp
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	h.verifyCode(w, r, auth.PurposeRegister)
}

// HandleVerifyOTPPassword handles POST /verify-otp-password
func (h *AuthHandler) HandleVerifyOTPPassword(w http.ResponseWriter, r *http.Request) {
	h.verifyCode(w, r, auth.PurposeReset)
}

func (h *AuthHandler) verifyCode(w http.ResponseWriter, r *http.Request, purpose auth.Purpose) {
	var req verifyOTPRequest
	if err := h.decode(r, &req); err != nil {
		middleware.RespondError(w, err)
		return
	}

	ch, err := h.otpService.VerifyCode(r.Context(), req.Phone, req.OTP, req.Token, purpose)
	if err != nil {
		middleware.RespondError(w, err)
		return
	}

	middleware.RespondJSON(w, http.StatusOK, challengeResponse{
		Message: "OTP is successfully verified.",
		Phone:   ch.Phone,
		Token:   ch.Token,
	})
}

// HandleConfirmPassword handles POST /confirm-password
func (h *AuthHandler) HandleConfirmPassword(w http.ResponseWriter, r *http.Request) {
	h.confirmPassword(w, r, auth.PurposeRegister, http.StatusCreated, "Successfully created an account.")
}

// HandleResetPassword handles POST /reset-password
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	h.confirmPassword(w, r, auth.PurposeReset, http.StatusOK, "Successfully reset your password.")
}

func (h *AuthHandler) confirmPassword(w http.ResponseWriter, r *http.Request, purpose auth.Purpose, status int, message string) {
	var req confirmPasswordRequest
	if err := h.decode(r, &req); err != nil {
		middleware.RespondError(w, err)
		return
	}

	sess, err := h.authService.ConfirmPassword(r.Context(), req.Phone, req.Password, req.Token, purpose)
	if err != nil {
		middleware.RespondError(w, err)
		return
	}

	h.cookies.SetSessionCookies(w, sess.Tokens)
	middleware.RespondJSON(w, status, sessionResponse{Message: message, UserID: sess.UserID})
}

// HandleLogin handles POST /login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(r, &req); err != nil {
		middleware.RespondError(w, err)
		return
	}

	sess, err := h.authService.Login(r.Context(), req.Phone, req.Password)
	if err != nil {
		middleware.RespondError(w, err)
		return
	}

	h.cookies.SetSessionCookies(w, sess.Tokens)
	middleware.RespondJSON(w, http.StatusOK, sessionResponse{Message: "Successfully login.", UserID: sess.UserID})
}

// HandleLogout handles POST /logout. Only the refresh cookie is consulted.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	_, refresh := middleware.SessionTokens(r)
	if err := h.authService.Logout(r.Context(), refresh); err != nil {
		middleware.RespondError(w, err)
		return
	}

	h.cookies.ClearSessionCookies(w)
	middleware.RespondJSON(w, http.StatusOK, map[string]string{"message": "Logout successfully"})
}

// HandleAuthCheck handles GET /auth-check (protected). Returns the authenticated user's profile summary.
func (h *AuthHandler) HandleAuthCheck(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		middleware.RespondError(w, apperr.New(apperr.KindUnauthenticated, "You are not authenticated user."))
		return
	}

	user, err := h.authService.GetUser(r.Context(), userID)
	if err != nil {
		middleware.RespondError(w, err)
		return
	}

	middleware.RespondJSON(w, http.StatusOK, authCheckResponse{
		UserID:   user.ID,
		UserName: user.FullName(),
		Image:    user.ImagePath(),
	})
}

// decode reads a JSON body into dst and validates it. Failures are InvalidInput.
func (h *AuthHandler) decode(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "Invalid request body", err)
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperr.New(apperr.KindInvalidInput, validationMessage(verrs[0]))
		}
		return apperr.Wrap(apperr.KindInvalidInput, "Invalid request body", err)
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "len":
		return fmt.Sprintf("%s must be %s characters", field, fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must be numeric", field)
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
