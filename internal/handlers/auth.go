package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/microblog-hq/microblog/internal/services"
	"github.com/microblog-hq/microblog/internal/session"
	"github.com/microblog-hq/microblog/types"
	"go.uber.org/zap"
)

const (
	formFieldUsername  = services.FieldUsername
	formFieldPassword  = services.FieldPassword
	formFieldPassword2 = services.FieldPasswordConfirmation
	formFieldEmail     = services.FieldEmail
	pathParamRegKey    = "reg_key"
	maxFormBytes       = 64 << 10
)

// AuthHandler serves registration, confirmation, login and logout.
type AuthHandler struct {
	accounts *services.AccountService
	auth     *services.AuthService
	sessions *session.Store
	logger   *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(accounts *services.AccountService, auth *services.AuthService, sessions *session.Store, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		auth:     auth,
		sessions: sessions,
		logger:   logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, h *AuthHandler) {
	r.Post("/register", h.Register)
	r.Get("/confirm/{reg_key}", h.Confirm)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.With(h.RequireAuth).Get("/me", h.Me)
}

// RequireAuth admits requests carrying a logged-in session cookie or a valid
// bearer token and injects the author into the request context.
func (h *AuthHandler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		author, err := h.authenticateRequest(r.Context(), r)
		if err != nil {
			if errors.Is(err, services.ErrNotLoggedIn) {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
			h.logger.Error("failed to resolve author", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to authenticate")
			return
		}

		ctx := context.WithValue(r.Context(), contextAuthorKey, author)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *AuthHandler) authenticateRequest(ctx context.Context, r *http.Request) (types.Author, error) {
	if token, err := bearerToken(r); err == nil {
		return h.auth.AuthorFromToken(ctx, token)
	}
	return h.auth.CurrentAuthor(ctx, h.sessions.Load(r))
}

// Register validates a signup form and starts email confirmation.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	pending, err := h.accounts.Register(r.Context(), services.RegistrationInput{
		Username:             r.PostForm.Get(formFieldUsername),
		Password:             r.PostForm.Get(formFieldPassword),
		PasswordConfirmation: r.PostForm.Get(formFieldPassword2),
		Email:                r.PostForm.Get(formFieldEmail),
	})
	if err != nil && !errors.Is(err, services.ErrNotificationFailed) {
		h.writeServiceError(w, err)
		return
	}

	resp := RegisterResponse{
		Username:  pending.Username,
		Email:     pending.Email,
		CreatedAt: pending.CreatedAt,
		Message:   "check your email for a confirmation link",
	}
	if err != nil {
		resp.Message = ""
		resp.Warning = services.ErrNotificationFailed.Error()
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Confirm turns the pending registration named by reg_key into an author.
func (h *AuthHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	author, err := h.accounts.Confirm(r.Context(), chi.URLParam(r, pathParamRegKey))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, author)
}

// Login verifies credentials, marks the session logged in and returns a
// bearer token for API clients.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	sess := h.sessions.Load(r)
	grant, err := h.auth.Authenticate(
		r.Context(),
		sess,
		r.PostForm.Get(formFieldUsername),
		r.PostForm.Get(formFieldPassword),
	)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	if err := h.sessions.Save(w, r, sess); err != nil {
		h.logger.Error("failed to save session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     grant.Token,
		ExpiresAt: grant.ExpiresAt,
		User:      grant.Author,
	})
}

// Logout clears the session. It succeeds whether or not anyone was logged in.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Load(r)
	h.auth.Logout(sess)
	if err := h.sessions.Save(w, r, sess); err != nil {
		h.logger.Error("failed to clear session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the current authenticated author.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	author, ok := authorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrNotLoggedIn.Error())
		return
	}
	writeJSON(w, http.StatusOK, author)
}

func (h *AuthHandler) writeServiceError(w http.ResponseWriter, err error) {
	var missing *services.MissingFieldError
	var storageErr *services.StorageError
	switch {
	case errors.As(err, &missing),
		errors.Is(err, services.ErrPasswordMismatch),
		errors.Is(err, services.ErrInvalidEmail),
		errors.Is(err, services.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrUnknownToken):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &storageErr):
		h.logger.Error("storage failure", zap.String("op", storageErr.Op), zap.Error(storageErr.Err))
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
	default:
		h.logger.Error("unexpected error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
	}
}

type RegisterResponse struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message,omitempty"`
	Warning   string    `json:"warning,omitempty"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      types.Author `json:"user"`
}
