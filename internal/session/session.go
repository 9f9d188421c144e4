// Package session persists types.Session between requests in a signed
// cookie. Services never see the cookie; handlers load a *types.Session,
// pass it to the core, and save whatever the core left in it.
package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/microblog-hq/microblog/types"
)

// CookieName is the name of the session cookie.
const CookieName = "microblog_session"

const (
	keyLoggedIn = "logged_in"
	keyUser     = "user"
)

// Store loads and saves sessions.
type Store struct {
	store  sessions.Store
	maxAge int
	secure bool
}

// NewCookieStore signs session cookies with secret.
func NewCookieStore(secret string, maxAge time.Duration, secure bool) (*Store, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	return NewStore(sessions.NewCookieStore([]byte(secret)), maxAge, secure), nil
}

// NewStore wraps an existing gorilla sessions store.
func NewStore(store sessions.Store, maxAge time.Duration, secure bool) *Store {
	return &Store{
		store:  store,
		maxAge: int(maxAge / time.Second),
		secure: secure,
	}
}

// Load returns the caller's session. A missing, expired or tampered cookie
// yields a logged-out session rather than an error.
func (s *Store) Load(r *http.Request) *types.Session {
	raw, err := s.store.Get(r, CookieName)
	if err != nil || raw == nil {
		return &types.Session{}
	}

	loggedIn, _ := raw.Values[keyLoggedIn].(bool)
	user, _ := raw.Values[keyUser].(string)
	if !loggedIn || user == "" {
		return &types.Session{}
	}
	return &types.Session{LoggedIn: true, User: user}
}

// Save writes sess back to the response. A logged-out session expires the
// cookie.
func (s *Store) Save(w http.ResponseWriter, r *http.Request, sess *types.Session) error {
	raw, err := s.store.Get(r, CookieName)
	if raw == nil {
		return err
	}

	raw.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   s.maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}

	if sess.IsLoggedIn() {
		raw.Values[keyLoggedIn] = true
		raw.Values[keyUser] = sess.User
	} else {
		delete(raw.Values, keyLoggedIn)
		delete(raw.Values, keyUser)
		raw.Options.MaxAge = -1
	}
	return raw.Save(r, w)
}
