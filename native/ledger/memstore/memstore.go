// Package memstore is an in-memory ledger.Store, promoted from the
// teacher's test-only mockEngineState double to a production
// implementation: spec.md places durable storage out of scope, so the
// reference host here simply keeps everything in process memory.
package memstore

import (
	"sync"

	"github.com/coreledger/marginbank/identity"
	"github.com/coreledger/marginbank/native/ledger"
)

// Store is a concurrency-safe, in-memory ledger.Store. It is the store used
// by cmd/ledgerd and the snapshot package; the ledger package's own tests
// use a package-local double, since importing memstore there would cycle.
type Store struct {
	mu       sync.Mutex
	groups   map[string]ledger.Group
	banks    map[identity.Principal]ledger.Bank
	accounts map[string]ledger.Account
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		groups:   make(map[string]ledger.Group),
		banks:    make(map[identity.Principal]ledger.Bank),
		accounts: make(map[string]ledger.Account),
	}
}

func (s *Store) GetGroup(id string) (ledger.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return ledger.Group{}, ledger.ErrAccountNotInitialized
	}
	return g.Clone(), nil
}

func (s *Store) PutGroup(group ledger.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[group.ID] = group.Clone()
	return nil
}

func (s *Store) GetBank(key identity.Principal) (ledger.Bank, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.banks[key]
	if !ok {
		return ledger.Bank{}, ledger.ErrAccountNotInitialized
	}
	return b.Clone(), nil
}

func (s *Store) PutBank(bank ledger.Bank) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banks[bank.Key] = bank.Clone()
	return nil
}

func (s *Store) GetAccount(id string) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, ledger.ErrAccountNotInitialized
	}
	return a.Clone(), nil
}

func (s *Store) PutAccount(account ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account.Clone()
	return nil
}

// AllGroups returns a snapshot of every stored group, for bulk export by the
// snapshot package. The demo/fixture snapshot facility is the only consumer:
// the transactional core never enumerates the store.
func (s *Store) AllGroups() []ledger.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.Clone())
	}
	return out
}

// AllBanks returns a snapshot of every stored bank.
func (s *Store) AllBanks() []ledger.Bank {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Bank, 0, len(s.banks))
	for _, b := range s.banks {
		out = append(out, b.Clone())
	}
	return out
}

// AllAccounts returns a snapshot of every stored account.
func (s *Store) AllAccounts() []ledger.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	return out
}
