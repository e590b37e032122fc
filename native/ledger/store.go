package ledger

import "github.com/coreledger/marginbank/identity"

// Store is the persistence collaborator every instruction handler reads
// from and writes back to, the same shape as the teacher's engineState
// interface: narrow getters/putters keyed by identity, no transaction
// object. Durable storage itself is the host's job (spec.md §1); the core
// only ever talks to this interface. See memstore for the in-memory
// reference implementation used by cmd/ledgerd; this package's tests use
// their own package-local double.
type Store interface {
	GetGroup(id string) (Group, error)
	PutGroup(group Group) error

	GetBank(key identity.Principal) (Bank, error)
	PutBank(bank Bank) error

	GetAccount(id string) (Account, error)
	PutAccount(account Account) error
}
