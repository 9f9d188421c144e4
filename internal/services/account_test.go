package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/microblog-hq/microblog/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func validInput(username string) RegistrationInput {
	return RegistrationInput{
		Username:             username,
		Password:             "pw1",
		PasswordConfirmation: "pw1",
		Email:                username + "@x.com",
	}
}

func TestRegister_CreatesPendingAndNotifies(t *testing.T) {
	repo := newMemoryStore()
	notifier := &fakeNotifier{}
	svc := newTestAccountService(repo, notifier)

	pending, err := svc.Register(context.Background(), validInput("alice"))
	require.NoError(t, err)

	assert.Equal(t, "alice", pending.Username)
	assert.Equal(t, "alice@x.com", pending.Email)
	assert.Len(t, pending.Token, confirmationTokenDigits)
	assert.False(t, pending.CreatedAt.IsZero())

	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "alice@x.com", notifier.sent[0].email)
	assert.Equal(t, pending.Token, notifier.sent[0].token)
	assert.True(t, notifier.sent[0].hadDeadline)

	stored, ok := repo.pendingByUsername("alice")
	require.True(t, ok)
	assert.Equal(t, pending.Token, stored.Token)
}

func TestRegister_HashesPasswordAtSignup(t *testing.T) {
	repo := newMemoryStore()
	svc := newTestAccountService(repo, &fakeNotifier{})

	pending, err := svc.Register(context.Background(), validInput("alice"))
	require.NoError(t, err)

	assert.NotEqual(t, "pw1", pending.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(pending.PasswordHash), []byte("pw1")))
}

func TestRegister_TrimsUsernameAndEmail(t *testing.T) {
	repo := newMemoryStore()
	svc := newTestAccountService(repo, &fakeNotifier{})

	in := validInput("alice")
	in.Username = "  alice "
	in.Email = " alice@x.com\n"
	pending, err := svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "alice", pending.Username)
	assert.Equal(t, "alice@x.com", pending.Email)
}

func TestRegister_MissingField(t *testing.T) {
	cases := []struct {
		field string
		edit  func(*RegistrationInput)
	}{
		{FieldUsername, func(in *RegistrationInput) { in.Username = "   " }},
		{FieldPassword, func(in *RegistrationInput) { in.Password = "" }},
		{FieldPasswordConfirmation, func(in *RegistrationInput) { in.PasswordConfirmation = "" }},
		{FieldEmail, func(in *RegistrationInput) { in.Email = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			repo := newMemoryStore()
			notifier := &fakeNotifier{}
			svc := newTestAccountService(repo, notifier)

			in := validInput("alice")
			tc.edit(&in)
			_, err := svc.Register(context.Background(), in)

			var missing *MissingFieldError
			require.ErrorAs(t, err, &missing)
			assert.Equal(t, tc.field, missing.Field)
			assert.Empty(t, repo.pending)
			assert.Zero(t, notifier.count())
		})
	}
}

func TestRegister_UsernameTaken(t *testing.T) {
	t.Run("by author", func(t *testing.T) {
		repo := newMemoryStore()
		repo.addAuthor("alice", "secret")
		notifier := &fakeNotifier{}
		svc := newTestAccountService(repo, notifier)

		_, err := svc.Register(context.Background(), validInput("alice"))
		require.ErrorIs(t, err, ErrUsernameTaken)
		assert.Empty(t, repo.pending)
		assert.Zero(t, notifier.count())
	})

	t.Run("by pending registration", func(t *testing.T) {
		repo := newMemoryStore()
		notifier := &fakeNotifier{}
		svc := newTestAccountService(repo, notifier)

		_, err := svc.Register(context.Background(), validInput("alice"))
		require.NoError(t, err)

		again := validInput("alice")
		again.Email = "other@x.com"
		_, err = svc.Register(context.Background(), again)
		require.ErrorIs(t, err, ErrUsernameTaken)
		assert.Len(t, repo.pending, 1)
		assert.Equal(t, 1, notifier.count())
	})

	t.Run("checked before password match", func(t *testing.T) {
		repo := newMemoryStore()
		repo.addAuthor("alice", "secret")
		svc := newTestAccountService(repo, &fakeNotifier{})

		in := validInput("alice")
		in.PasswordConfirmation = "different"
		_, err := svc.Register(context.Background(), in)
		require.ErrorIs(t, err, ErrUsernameTaken)
	})
}

func TestRegister_LostClaimRaceIsUsernameTaken(t *testing.T) {
	repo := newMemoryStore()
	repo.createErrs = []error{store.ErrUsernameTaken}
	notifier := &fakeNotifier{}
	svc := newTestAccountService(repo, notifier)

	_, err := svc.Register(context.Background(), validInput("alice"))
	require.ErrorIs(t, err, ErrUsernameTaken)
	assert.Zero(t, notifier.count())
}

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	repo := newMemoryStore()
	notifier := &fakeNotifier{}
	svc := newTestAccountService(repo, notifier)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Register(context.Background(), validInput("alice"))
		}(i)
	}
	wg.Wait()

	var ok, taken int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrUsernameTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, taken)
	assert.Len(t, repo.pending, 1)
	assert.Equal(t, 1, notifier.count())
}

func TestRegister_PasswordMismatch(t *testing.T) {
	repo := newMemoryStore()
	notifier := &fakeNotifier{}
	svc := newTestAccountService(repo, notifier)

	_, err := svc.Register(context.Background(), RegistrationInput{
		Username:             "bob",
		Password:             "a",
		PasswordConfirmation: "b",
		Email:                "bob@x.com",
	})
	require.ErrorIs(t, err, ErrPasswordMismatch)

	_, exists := repo.pendingByUsername("bob")
	assert.False(t, exists)
	assert.Zero(t, notifier.count())
}

func TestRegister_InvalidEmail(t *testing.T) {
	repo := newMemoryStore()
	notifier := &fakeNotifier{}
	svc := newTestAccountService(repo, notifier)

	in := validInput("alice")
	in.Email = "alice@localhost"
	_, err := svc.Register(context.Background(), in)
	require.ErrorIs(t, err, ErrInvalidEmail)
	assert.Empty(t, repo.pending)
	assert.Zero(t, notifier.count())
}

func TestRegister_RetriesTokenCollision(t *testing.T) {
	repo := newMemoryStore()
	repo.createErrs = []error{store.ErrDuplicateToken, store.ErrDuplicateToken}
	svc := newTestAccountService(repo, &fakeNotifier{})

	var drawn int
	svc.newToken = func() (string, error) {
		drawn++
		return newConfirmationToken()
	}

	_, err := svc.Register(context.Background(), validInput("alice"))
	require.NoError(t, err)
	assert.Equal(t, 3, drawn)
}

func TestRegister_GivesUpAfterRepeatedCollisions(t *testing.T) {
	repo := newMemoryStore()
	repo.createErrs = []error{store.ErrDuplicateToken, store.ErrDuplicateToken, store.ErrDuplicateToken}
	notifier := &fakeNotifier{}
	svc := newTestAccountService(repo, notifier)

	_, err := svc.Register(context.Background(), validInput("alice"))

	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.ErrorIs(t, err, store.ErrDuplicateToken)
	assert.Zero(t, notifier.count())
}

func TestRegister_StorageErrorsPropagate(t *testing.T) {
	t.Run("username check", func(t *testing.T) {
		repo := newMemoryStore()
		repo.takenErr = errors.New("connection reset")
		svc := newTestAccountService(repo, &fakeNotifier{})

		_, err := svc.Register(context.Background(), validInput("alice"))
		var storageErr *StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.Equal(t, "check username", storageErr.Op)
	})

	t.Run("insert", func(t *testing.T) {
		repo := newMemoryStore()
		repo.createErrs = []error{errors.New("commit failed")}
		notifier := &fakeNotifier{}
		svc := newTestAccountService(repo, notifier)

		_, err := svc.Register(context.Background(), validInput("alice"))
		var storageErr *StorageError
		require.ErrorAs(t, err, &storageErr)
		assert.EqualError(t, storageErr.Err, "commit failed")
		assert.Zero(t, notifier.count())
	})
}

func TestRegister_NotificationFailureKeepsPending(t *testing.T) {
	repo := newMemoryStore()
	transportErr := errors.New("broker unreachable")
	notifier := &fakeNotifier{err: transportErr}
	svc := newTestAccountService(repo, notifier)

	pending, err := svc.Register(context.Background(), validInput("alice"))
	require.ErrorIs(t, err, ErrNotificationFailed)
	assert.ErrorIs(t, err, transportErr)
	assert.Equal(t, "alice", pending.Username)

	_, exists := repo.pendingByUsername("alice")
	assert.True(t, exists)
	assert.Equal(t, 1, notifier.count())
}

func TestRegister_NotificationSurvivesCanceledRequest(t *testing.T) {
	repo := newMemoryStore()
	notifier := &fakeNotifier{}
	svc := newTestAccountService(repo, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Register(ctx, validInput("alice"))
	require.NoError(t, err)
	require.Equal(t, 1, notifier.count())
	assert.NoError(t, notifier.sent[0].ctxErr)
	assert.True(t, notifier.sent[0].hadDeadline)
}

func TestConfirm_RoundTrip(t *testing.T) {
	repo := newMemoryStore()
	notifier := &fakeNotifier{}
	svc := newTestAccountService(repo, notifier)

	_, err := svc.Register(context.Background(), validInput("alice"))
	require.NoError(t, err)
	token := notifier.sent[0].token

	author, err := svc.Confirm(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", author.Username)
	assert.Equal(t, "alice@x.com", author.Email)
	assert.NotZero(t, author.ID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(author.PasswordHash), []byte("pw1")))

	_, exists := repo.pendingByUsername("alice")
	assert.False(t, exists)

	_, err = svc.Confirm(context.Background(), token)
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestConfirm_UnknownToken(t *testing.T) {
	svc := newTestAccountService(newMemoryStore(), &fakeNotifier{})

	_, err := svc.Confirm(context.Background(), "000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrUnknownToken)
	assert.EqualError(t, err, "we don't recognize this confirmation link")

	_, err = svc.Confirm(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnknownToken)
}

func TestConfirm_ConcurrentSingleWinner(t *testing.T) {
	repo := newMemoryStore()
	notifier := &fakeNotifier{}
	svc := newTestAccountService(repo, notifier)

	_, err := svc.Register(context.Background(), validInput("alice"))
	require.NoError(t, err)
	token := notifier.sent[0].token

	const n = 10
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Confirm(context.Background(), token)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		require.ErrorIs(t, err, ErrUnknownToken)
		lost++
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, n-1, lost)
	assert.Len(t, repo.authors, 1)
}

func TestConfirm_StorageError(t *testing.T) {
	repo := newMemoryStore()
	repo.promoteErr = errors.New("serialization failure")
	svc := newTestAccountService(repo, &fakeNotifier{})

	_, err := svc.Confirm(context.Background(), "123")
	var storageErr *StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.NotErrorIs(t, err, ErrUnknownToken)
}

func TestPruneExpired(t *testing.T) {
	repo := newMemoryStore()
	svc := newTestAccountService(repo, &fakeNotifier{})

	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now.Add(-72 * time.Hour) }
	_, err := svc.Register(context.Background(), validInput("old"))
	require.NoError(t, err)

	svc.now = func() time.Time { return now }
	_, err = svc.Register(context.Background(), validInput("fresh"))
	require.NoError(t, err)

	n, err := svc.PruneExpired(context.Background(), 48*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, now.Add(-48*time.Hour), repo.pruned)

	_, exists := repo.pendingByUsername("fresh")
	assert.True(t, exists)

	// The pruned username is free again.
	_, err = svc.Register(context.Background(), validInput("old"))
	assert.NoError(t, err)
}

func TestPruneExpired_RejectsNonPositiveTTL(t *testing.T) {
	svc := newTestAccountService(newMemoryStore(), &fakeNotifier{})
	_, err := svc.PruneExpired(context.Background(), 0)
	assert.Error(t, err)
}

func TestRegister_WithoutNotifierKeepsPending(t *testing.T) {
	repo := newMemoryStore()
	svc := newTestAccountService(repo, nil)

	pending, err := svc.Register(context.Background(), validInput("alice"))
	require.ErrorIs(t, err, ErrNotificationFailed)
	assert.Equal(t, "alice", pending.Username)

	_, ok := repo.pendingByUsername("alice")
	assert.True(t, ok)
}
