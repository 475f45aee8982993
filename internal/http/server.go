package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"verity/auth-identity/internal/auth"
	"verity/auth-identity/internal/config"
	"verity/auth-identity/internal/service"
)

const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

type Server struct {
	cfg    config.Config
	svc    *service.AuthService
	logger zerolog.Logger
}

func NewServer(cfg config.Config, svc *service.AuthService, logger zerolog.Logger) *Server {
	return &Server{cfg: cfg, svc: svc, logger: logger}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/verify-email", s.handleVerifyEmail)
	r.Post("/auth/login", s.handleLogin)
	r.With(s.authMiddleware).Delete("/auth/logout", s.handleLogout)
	r.Post("/auth/forgot-password", s.handleForgotPassword)
	r.Post("/auth/reset-password", s.handleResetPassword)

	return r
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, "register", http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" || req.Password == "" {
		s.fail(w, "register", http.StatusBadRequest, "missing_fields")
		return
	}

	if err := s.svc.Register(r.Context(), service.RegisterParams{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	}); err != nil {
		s.failFromService(w, "register", err)
		return
	}

	authRequests.WithLabelValues("register", resultSuccess).Inc()
	writeJSON(w, http.StatusCreated, map[string]string{"msg": "success! please check your mail to verify account"})
}

type verifyEmailRequest struct {
	Email             string `json:"email"`
	VerificationToken string `json:"verificationToken"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, "verify_email", http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.VerificationToken == "" {
		s.fail(w, "verify_email", http.StatusBadRequest, "missing_fields")
		return
	}

	if err := s.svc.VerifyEmail(r.Context(), req.Email, req.VerificationToken); err != nil {
		s.failFromService(w, "verify_email", err)
		return
	}

	authRequests.WithLabelValues("verify_email", resultSuccess).Inc()
	writeJSON(w, http.StatusOK, map[string]string{"msg": "email verification successful"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, "login", http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		s.fail(w, "login", http.StatusBadRequest, "missing_credentials")
		return
	}

	result, err := s.svc.Login(r.Context(), service.LoginParams{
		Email:     req.Email,
		Password:  req.Password,
		UserAgent: r.UserAgent(),
		IPAddress: clientIP(r),
	})
	if err != nil {
		s.failFromService(w, "login", err)
		return
	}

	if err := s.attachAuthCookies(w, result.Claim, result.RefreshToken); err != nil {
		s.fail(w, "login", http.StatusInternalServerError, "token_error")
		return
	}

	authRequests.WithLabelValues("login", resultSuccess).Inc()
	writeJSON(w, http.StatusOK, map[string]any{"user": result.Claim})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		s.fail(w, "logout", http.StatusUnauthorized, "missing_token")
		return
	}

	if err := s.svc.Logout(r.Context(), claims.AccountID); err != nil {
		s.failFromService(w, "logout", err)
		return
	}

	s.clearAuthCookies(w)
	authRequests.WithLabelValues("logout", resultSuccess).Inc()
	writeJSON(w, http.StatusOK, map[string]string{"msg": "user logged out!"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, "forgot_password", http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" {
		s.fail(w, "forgot_password", http.StatusBadRequest, "missing_email")
		return
	}

	if err := s.svc.ForgotPassword(r.Context(), req.Email); err != nil {
		s.failFromService(w, "forgot_password", err)
		return
	}

	authRequests.WithLabelValues("forgot_password", resultSuccess).Inc()
	writeJSON(w, http.StatusOK, map[string]string{"msg": "please check your email for reset password link"})
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, "reset_password", http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Token == "" || req.Email == "" || req.Password == "" {
		s.fail(w, "reset_password", http.StatusBadRequest, "missing_fields")
		return
	}

	if err := s.svc.ResetPassword(r.Context(), req.Token, req.Email, req.Password); err != nil {
		s.failFromService(w, "reset_password", err)
		return
	}

	authRequests.WithLabelValues("reset_password", resultSuccess).Inc()
	writeJSON(w, http.StatusOK, map[string]string{"msg": "password changed successfully"})
}

// attachAuthCookies binds the short-lived access token and the
// long-lived refresh token to the response. Both are signed; the refresh
// cookie additionally embeds the opaque session secret.
func (s *Server) attachAuthCookies(w http.ResponseWriter, claim service.TokenClaim, refreshToken string) error {
	claims := auth.Claims{
		AccountID: claim.AccountID,
		Name:      claim.Name,
		Role:      claim.Role,
		SessionID: claim.SessionID,
	}

	accessToken, err := auth.NewSignedToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, claims)
	if err != nil {
		return err
	}

	claims.RefreshToken = refreshToken
	refreshJWT, err := auth.NewSignedToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.RefreshTokenTTL, claims)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	http.SetCookie(w, s.authCookie(accessCookieName, accessToken, now.Add(s.cfg.AccessTokenTTL)))
	http.SetCookie(w, s.authCookie(refreshCookieName, refreshJWT, now.Add(s.cfg.RefreshTokenTTL)))
	return nil
}

// clearAuthCookies overwrites both cookies with an already-expired value
// so the client drops them immediately.
func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	expired := time.Unix(0, 0).UTC()
	for _, name := range []string{accessCookieName, refreshCookieName} {
		cookie := s.authCookie(name, "logout", expired)
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func (s *Server) authCookie(name, value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(accessCookieName)
		if err != nil || cookie.Value == "" {
			s.fail(w, "auth", http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, cookie.Value)
		if err != nil {
			s.fail(w, "auth", http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func (s *Server) fail(w http.ResponseWriter, operation string, status int, code string) {
	authRequests.WithLabelValues(operation, resultFailure).Inc()
	writeError(w, status, code)
}

func (s *Server) failFromService(w http.ResponseWriter, operation string, err error) {
	switch {
	case errors.Is(err, service.ErrEmailTaken):
		s.fail(w, operation, http.StatusConflict, "email_exists")
	case errors.Is(err, service.ErrInvalidCredentials):
		s.fail(w, operation, http.StatusUnauthorized, "invalid_credentials")
	case errors.Is(err, service.ErrResetTokenExpired):
		s.fail(w, operation, http.StatusForbidden, "reset_token_expired")
	default:
		s.logger.Error().Err(err).Str("operation", operation).Msg("request failed")
		s.fail(w, operation, http.StatusInternalServerError, "server_error")
	}
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
