package db

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kube-rca/authcore/internal/model"
)

// Memory is a mutex-guarded store with the same semantics as Postgres,
// including the cascade from accounts to refresh records. Callers always
// receive copies.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]model.Account
	refresh  map[string]model.RefreshTokenRecord
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]model.Account),
		refresh:  make(map[string]model.RefreshTokenRecord),
		now:      time.Now,
	}
}

func (m *Memory) FindAccountByEmail(_ context.Context, email string) (*model.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	account, ok := m.accounts[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &account, nil
}

func (m *Memory) SaveAccount(_ context.Context, account *model.Account) (*model.Account, error) {
	if err := account.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[account.Email]; exists {
		return nil, ErrDuplicate
	}
	cp := *account
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := m.now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.accounts[cp.Email] = cp
	return &cp, nil
}

func (m *Memory) DeleteAccount(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[email]; !ok {
		return ErrNotFound
	}
	delete(m.accounts, email)
	delete(m.refresh, email)
	return nil
}

func (m *Memory) FindRefreshRecord(_ context.Context, subject string) (*model.RefreshTokenRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.refresh[subject]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (m *Memory) UpsertRefreshRecord(_ context.Context, subject, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	record, ok := m.refresh[subject]
	if !ok {
		record = model.RefreshTokenRecord{Subject: subject, CreatedAt: now}
	}
	record.Token = token
	record.UpdatedAt = now
	m.refresh[subject] = record
	return nil
}

func (m *Memory) DeleteRefreshRecord(_ context.Context, subject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.refresh, subject)
	return nil
}

// RefreshRecordCount reports how many refresh records are stored.
func (m *Memory) RefreshRecordCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.refresh)
}

// AccountCount reports how many accounts are stored.
func (m *Memory) AccountCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts)
}
