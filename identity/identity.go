// Package identity provides the principal and key-derivation primitives the
// ledger uses to address groups, accounts, banks, and vaults. It generalizes
// the teacher's chain-specific address encoding to a single ledger-wide
// principal prefix.
package identity

import (
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// Prefix is the human-readable bech32 prefix used for every principal this
// ledger addresses: group admins, account owners, and derived bank keys all
// share one namespace rather than the teacher's per-asset prefix split.
const Prefix = "ldgr"

// Principal is an opaque 20-byte identity. It is comparable and usable as a
// map key.
type Principal struct {
	bytes [20]byte
}

// New constructs a Principal from exactly 20 bytes.
func New(b []byte) (Principal, error) {
	if len(b) != 20 {
		return Principal{}, fmt.Errorf("identity: principal must be 20 bytes, got %d", len(b))
	}
	var p Principal
	copy(p.bytes[:], b)
	return p, nil
}

// MustNew is New but panics on invalid input; used for constants and tests.
func MustNew(b []byte) Principal {
	p, err := New(b)
	if err != nil {
		panic(err)
	}
	return p
}

// Bytes returns a defensive copy of the underlying identity bytes.
func (p Principal) Bytes() []byte {
	return append([]byte(nil), p.bytes[:]...)
}

// IsZero reports whether this is the zero principal, used as a sentinel for
// "no target configured" the way the teacher's CollateralRouting treats an
// empty address.
func (p Principal) IsZero() bool {
	return p == Principal{}
}

// String renders the principal as a bech32 string under the ledger prefix.
func (p Principal) String() string {
	conv, err := bech32.ConvertBits(p.bytes[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(Prefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Parse decodes a bech32-encoded principal produced by String.
func Parse(s string) (Principal, error) {
	prefix, decoded, err := bech32.Decode(s)
	if err != nil {
		return Principal{}, fmt.Errorf("identity: invalid bech32 string: %w", err)
	}
	if prefix != Prefix {
		return Principal{}, fmt.Errorf("identity: unexpected prefix %q", prefix)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Principal{}, fmt.Errorf("identity: error converting bits: %w", err)
	}
	return New(conv)
}

// DeriveBankKey derives a canonical, deterministic Bank identity from the
// owning group and the asset mint, the Go analogue of a program-derived
// address seed hash: two banks with the same (group, asset) seed always
// collide to the same key, and distinct seeds practically never collide.
func DeriveBankKey(group string, assetMint string) Principal {
	seed := make([]byte, 0, len(group)+len(assetMint)+len("bank"))
	seed = append(seed, []byte("bank")...)
	seed = append(seed, []byte(group)...)
	seed = append(seed, []byte(assetMint)...)
	hash := crypto.Keccak256(seed)
	return MustNew(hash[12:])
}
