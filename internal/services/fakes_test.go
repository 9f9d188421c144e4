package services

import (
	"context"
	"sync"
	"time"

	"github.com/microblog-hq/microblog/internal/store"
	"github.com/microblog-hq/microblog/types"
	"golang.org/x/crypto/bcrypt"
)

// memoryStore mirrors the guarantees of the Postgres repositories: username
// claims are unique across both tables and promotion is atomic.
type memoryStore struct {
	mu      sync.Mutex
	claims  map[string]bool
	pending map[string]types.PendingRegistration
	authors map[string]types.Author
	nextID  int

	takenErr   error
	createErrs []error
	promoteErr error
	pruneErr   error
	pruned     time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		claims:  map[string]bool{},
		pending: map[string]types.PendingRegistration{},
		authors: map[string]types.Author{},
	}
}

func (m *memoryStore) UsernameTaken(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.takenErr != nil {
		return false, m.takenErr
	}
	return m.claims[username], nil
}

func (m *memoryStore) CreatePending(_ context.Context, p types.PendingRegistration) (types.PendingRegistration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createErrs) > 0 {
		err := m.createErrs[0]
		m.createErrs = m.createErrs[1:]
		if err != nil {
			return types.PendingRegistration{}, err
		}
	}
	if m.claims[p.Username] {
		return types.PendingRegistration{}, store.ErrUsernameTaken
	}
	if _, ok := m.pending[p.Token]; ok {
		return types.PendingRegistration{}, store.ErrDuplicateToken
	}
	m.nextID++
	p.ID = m.nextID
	m.claims[p.Username] = true
	m.pending[p.Token] = p
	return p, nil
}

func (m *memoryStore) Promote(_ context.Context, token string) (types.Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.promoteErr != nil {
		return types.Author{}, m.promoteErr
	}
	p, ok := m.pending[token]
	if !ok {
		return types.Author{}, store.ErrNotFound
	}
	delete(m.pending, token)
	m.nextID++
	author := types.Author{
		ID:           m.nextID,
		Username:     p.Username,
		Email:        p.Email,
		PasswordHash: p.PasswordHash,
		CreatedAt:    time.Now(),
	}
	m.authors[author.Username] = author
	return author, nil
}

func (m *memoryStore) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pruneErr != nil {
		return 0, m.pruneErr
	}
	m.pruned = cutoff
	var n int64
	for token, p := range m.pending {
		if p.CreatedAt.Before(cutoff) {
			delete(m.pending, token)
			delete(m.claims, p.Username)
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) GetByID(_ context.Context, id int) (types.Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.authors {
		if a.ID == id {
			return a, nil
		}
	}
	return types.Author{}, store.ErrNotFound
}

func (m *memoryStore) GetByUsername(_ context.Context, username string) (types.Author, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.authors[username]
	if !ok {
		return types.Author{}, store.ErrNotFound
	}
	return a, nil
}

func (m *memoryStore) pendingByUsername(username string) (types.PendingRegistration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pending {
		if p.Username == username {
			return p, true
		}
	}
	return types.PendingRegistration{}, false
}

// addAuthor seeds a confirmed author directly.
func (m *memoryStore) addAuthor(username, password string) types.Author {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a := types.Author{ID: m.nextID, Username: username, Email: username + "@x.com", PasswordHash: string(hash)}
	m.claims[username] = true
	m.authors[username] = a
	return a
}

type sentConfirmation struct {
	email       string
	token       string
	hadDeadline bool
	ctxErr      error
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentConfirmation
	err  error
}

func (f *fakeNotifier) SendConfirmation(ctx context.Context, email, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, hasDeadline := ctx.Deadline()
	f.sent = append(f.sent, sentConfirmation{email: email, token: token, hadDeadline: hasDeadline, ctxErr: ctx.Err()})
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestAccountService(repo RegistrationRepository, notifier Notifier) *AccountService {
	svc := NewAccountService(repo, notifier, nil, time.Second)
	svc.hashCost = bcrypt.MinCost
	return svc
}
