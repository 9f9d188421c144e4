package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/microblog-hq/microblog/internal/store"
	"github.com/microblog-hq/microblog/types"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultNotifyTimeout = 10 * time.Second
	maxTokenAttempts     = 3
)

var errNoNotifier = errors.New("no notifier configured")

// RegistrationRepository defines persistence operations for pending
// registrations.
type RegistrationRepository interface {
	UsernameTaken(ctx context.Context, username string) (bool, error)
	CreatePending(ctx context.Context, pending types.PendingRegistration) (types.PendingRegistration, error)
	Promote(ctx context.Context, token string) (types.Author, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier hands a confirmation token off to the address being confirmed.
type Notifier interface {
	SendConfirmation(ctx context.Context, email, token string) error
}

// AccountService runs the signup and email confirmation workflow.
type AccountService struct {
	repo          RegistrationRepository
	notifier      Notifier
	logger        *zap.Logger
	notifyTimeout time.Duration
	hashCost      int
	newToken      func() (string, error)
	now           func() time.Time
}

// NewAccountService constructs an AccountService. notifier may be nil for
// callers that never register accounts, such as maintenance commands.
func NewAccountService(repo RegistrationRepository, notifier Notifier, logger *zap.Logger, notifyTimeout time.Duration) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}
	return &AccountService{
		repo:          repo,
		notifier:      notifier,
		logger:        logger,
		notifyTimeout: notifyTimeout,
		hashCost:      bcrypt.DefaultCost,
		newToken:      newConfirmationToken,
		now:           time.Now,
	}
}

// Register validates a signup, stores it as a pending registration and sends
// the confirmation message. When only the send fails, the stored registration
// is returned together with an error wrapping ErrNotificationFailed.
func (s *AccountService) Register(ctx context.Context, in RegistrationInput) (types.PendingRegistration, error) {
	in = in.normalized()
	if err := checkRequired(in); err != nil {
		return types.PendingRegistration{}, err
	}

	taken, err := s.repo.UsernameTaken(ctx, in.Username)
	if err != nil {
		return types.PendingRegistration{}, &StorageError{Op: "check username", Err: err}
	}
	if taken {
		return types.PendingRegistration{}, ErrUsernameTaken
	}

	if err := checkCredentials(in); err != nil {
		return types.PendingRegistration{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return types.PendingRegistration{}, fmt.Errorf("hash password: %w", err)
	}

	pending, err := s.createPending(ctx, types.PendingRegistration{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hashed),
		CreatedAt:    s.now(),
	})
	if err != nil {
		return types.PendingRegistration{}, err
	}

	s.logger.Info("registration pending confirmation", zap.String("username", pending.Username))

	if err := s.sendConfirmation(ctx, pending); err != nil {
		return pending, err
	}
	return pending, nil
}

func (s *AccountService) createPending(ctx context.Context, pending types.PendingRegistration) (types.PendingRegistration, error) {
	for attempt := 1; ; attempt++ {
		token, err := s.newToken()
		if err != nil {
			return types.PendingRegistration{}, fmt.Errorf("generate confirmation token: %w", err)
		}
		pending.Token = token

		created, err := s.repo.CreatePending(ctx, pending)
		switch {
		case err == nil:
			return created, nil
		case errors.Is(err, store.ErrUsernameTaken):
			return types.PendingRegistration{}, ErrUsernameTaken
		case errors.Is(err, store.ErrDuplicateToken) && attempt < maxTokenAttempts:
			s.logger.Warn("confirmation token collision, retrying", zap.Int("attempt", attempt))
			continue
		default:
			return types.PendingRegistration{}, &StorageError{Op: "create pending registration", Err: err}
		}
	}
}

// sendConfirmation runs on a context detached from the caller's cancellation
// so an aborted request does not cut off a message for a committed signup.
func (s *AccountService) sendConfirmation(ctx context.Context, pending types.PendingRegistration) error {
	if s.notifier == nil {
		return fmt.Errorf("%w: %w", ErrNotificationFailed, errNoNotifier)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	if err := s.notifier.SendConfirmation(ctx, pending.Email, pending.Token); err != nil {
		s.logger.Error("confirmation dispatch failed",
			zap.String("username", pending.Username),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}
	return nil
}

// Confirm promotes the pending registration identified by token into an
// author. Tokens are single-use.
func (s *AccountService) Confirm(ctx context.Context, token string) (types.Author, error) {
	if token == "" {
		return types.Author{}, ErrUnknownToken
	}

	author, err := s.repo.Promote(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Author{}, ErrUnknownToken
		}
		return types.Author{}, &StorageError{Op: "promote registration", Err: err}
	}

	s.logger.Info("registration confirmed",
		zap.String("username", author.Username),
		zap.Int("author_id", author.ID),
	)
	return author, nil
}

// PruneExpired removes pending registrations older than ttl, freeing their
// usernames.
func (s *AccountService) PruneExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, errors.New("ttl must be positive")
	}
	cutoff := s.now().Add(-ttl)
	n, err := s.repo.PruneBefore(ctx, cutoff)
	if err != nil {
		return 0, &StorageError{Op: "prune pending registrations", Err: err}
	}
	s.logger.Info("pruned pending registrations", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	return n, nil
}
