package services

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/microblog-hq/microblog/internal/store"
	"github.com/microblog-hq/microblog/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 24 * time.Hour

// AuthorRepository defines read operations for confirmed authors.
type AuthorRepository interface {
	GetByID(ctx context.Context, id int) (types.Author, error)
	GetByUsername(ctx context.Context, username string) (types.Author, error)
}

// SessionGrant is returned by a successful login.
type SessionGrant struct {
	Author    types.Author
	Token     string
	ExpiresAt time.Time
}

// AuthService verifies credentials and manages session state.
type AuthService struct {
	authors  AuthorRepository
	secret   []byte
	tokenTTL time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewAuthService(authors AuthorRepository, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthService{
		authors:  authors,
		secret:   []byte(jwtSecret),
		tokenTTL: tokenTTL,
		logger:   logger,
		now:      time.Now,
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     []byte
)

// equalizeTiming spends a bcrypt comparison on unknown usernames so they take
// as long as a wrong password.
func equalizeTiming(password string) {
	dummyHashOnce.Do(func() {
		secret := make([]byte, 32)
		_, _ = rand.Read(secret)
		dummyHash, _ = bcrypt.GenerateFromPassword(secret, bcrypt.DefaultCost)
	})
	_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
}

// Authenticate checks username and password and, on success, marks sess as
// logged in. Unknown usernames and wrong passwords both return
// ErrInvalidCredentials and leave sess untouched.
func (s *AuthService) Authenticate(ctx context.Context, sess *types.Session, username, password string) (SessionGrant, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return SessionGrant{}, ErrInvalidCredentials
	}

	author, err := s.authors.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			equalizeTiming(password)
			s.logger.Info("login rejected", zap.String("username", username))
			return SessionGrant{}, ErrInvalidCredentials
		}
		return SessionGrant{}, &StorageError{Op: "load author", Err: err}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(author.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("login rejected", zap.String("username", username))
		return SessionGrant{}, ErrInvalidCredentials
	}

	now := s.now()
	token, err := issueToken(author.ID, s.secret, now, s.tokenTTL)
	if err != nil {
		return SessionGrant{}, err
	}

	if sess != nil {
		sess.LoggedIn = true
		sess.User = author.Username
	}

	s.logger.Info("login succeeded", zap.String("username", author.Username))
	return SessionGrant{
		Author:    author,
		Token:     token,
		ExpiresAt: now.Add(s.tokenTTL),
	}, nil
}

// Logout clears the authenticated identity from sess. It is safe to call on
// a session that is not logged in.
func (s *AuthService) Logout(sess *types.Session) {
	sess.Clear()
}

// CurrentAuthor resolves the author a logged-in session belongs to.
func (s *AuthService) CurrentAuthor(ctx context.Context, sess *types.Session) (types.Author, error) {
	if !sess.IsLoggedIn() {
		return types.Author{}, ErrNotLoggedIn
	}
	author, err := s.authors.GetByUsername(ctx, sess.User)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sess.Clear()
			return types.Author{}, ErrNotLoggedIn
		}
		return types.Author{}, &StorageError{Op: "load author", Err: err}
	}
	return author, nil
}

// AuthorFromToken resolves the author a bearer token was issued to.
func (s *AuthService) AuthorFromToken(ctx context.Context, token string) (types.Author, error) {
	id, err := parseTokenSubject(token, s.secret)
	if err != nil {
		return types.Author{}, ErrNotLoggedIn
	}
	author, err := s.authors.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Author{}, ErrNotLoggedIn
		}
		return types.Author{}, &StorageError{Op: "load author", Err: err}
	}
	return author, nil
}
