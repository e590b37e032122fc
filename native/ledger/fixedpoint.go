package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// ErrMathOverflow is returned by every fixed-point operation that would
// produce a value outside the representable range, divide by zero, or
// require a negative result where one is not permitted.
var ErrMathOverflow = errors.New("ledger: fixed-point overflow")

// fracBits is the number of fractional bits in the I80F48 representation:
// 80 integer bits and 48 fractional bits, signed, stored as a raw two's
// complement integer scaled by 2^48.
const fracBits = 48

// Fixed is a signed fixed-point number with 80 integer bits and 48
// fractional bits (I80F48), matching the precision the on-chain risk and
// share math in spec.md's fixed-point kernel is defined against. The raw
// value is a two's complement integer bounded to 128 bits; every arithmetic
// operation is checked and returns ErrMathOverflow rather than wrapping.
type Fixed struct {
	raw *big.Int
}

var (
	scale = new(big.Int).Lsh(big.NewInt(1), fracBits)

	// maxRaw / minRaw bound the raw two's complement value to 128 bits
	// (80 integer + 48 fractional), matching I80F48's total width.
	maxRaw = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minRaw = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// Zero is the additive identity.
func Zero() Fixed { return Fixed{raw: big.NewInt(0)} }

// One is the multiplicative identity.
func One() Fixed { return Fixed{raw: new(big.Int).Set(scale)} }

func fromRaw(raw *big.Int) (Fixed, error) {
	if raw.Cmp(minRaw) < 0 || raw.Cmp(maxRaw) > 0 {
		return Fixed{}, ErrMathOverflow
	}
	return Fixed{raw: raw}, nil
}

// FromInt64 builds a Fixed from a whole number.
func FromInt64(v int64) Fixed {
	return Fixed{raw: new(big.Int).Mul(big.NewInt(v), scale)}
}

// FromUint64 is an exact, non-rounding conversion from an integer token
// amount, matching §4.1's "conversions from integer token amounts are
// exact."
func FromUint64(v uint64) Fixed {
	raw := new(big.Int).Mul(new(big.Int).SetUint64(v), scale)
	return Fixed{raw: raw}
}

// ToUint64Floor converts back to an integer amount, rounding down. It fails
// with ErrMathOverflow on a negative value or on overflow of uint64, per
// §4.1.
func (f Fixed) ToUint64Floor() (uint64, error) {
	if f.raw == nil || f.raw.Sign() < 0 {
		return 0, ErrMathOverflow
	}
	q := new(big.Int).Quo(f.raw, scale)
	if !q.IsUint64() {
		return 0, ErrMathOverflow
	}
	return q.Uint64(), nil
}

// IsZero reports whether the value is exactly zero.
func (f Fixed) IsZero() bool { return f.raw == nil || f.raw.Sign() == 0 }

// Sign returns -1, 0, or 1.
func (f Fixed) Sign() int {
	if f.raw == nil {
		return 0
	}
	return f.raw.Sign()
}

// Cmp compares two Fixed values the way big.Int.Cmp does.
func (f Fixed) Cmp(o Fixed) int {
	return rawOf(f).Cmp(rawOf(o))
}

func rawOf(f Fixed) *big.Int {
	if f.raw == nil {
		return big.NewInt(0)
	}
	return f.raw
}

// Add returns f+o, failing on overflow of the 128-bit raw range.
func (f Fixed) Add(o Fixed) (Fixed, error) {
	return fromRaw(new(big.Int).Add(rawOf(f), rawOf(o)))
}

// Sub returns f-o, failing on overflow of the 128-bit raw range.
func (f Fixed) Sub(o Fixed) (Fixed, error) {
	return fromRaw(new(big.Int).Sub(rawOf(f), rawOf(o)))
}

// roundDir controls how Mul/Div resolve the fractional remainder of a
// widened computation.
type roundDir int

const (
	roundDown roundDir = iota
	roundUp
)

// Mul multiplies two fixed-point values, rounding the result toward zero
// (roundDown) by default; use MulRound for the asymmetric share-issuance
// rounding spec.md's §4.2 table requires.
func (f Fixed) Mul(o Fixed) (Fixed, error) {
	return f.MulRound(o, roundDown)
}

// MulRound multiplies two fixed-point values using a widened 256-bit
// intermediate (via uint256.Int) so the 128-bit*128-bit product never
// silently truncates before the overflow check runs, then narrows back to
// 128 bits with the requested rounding direction.
func (f Fixed) MulRound(o Fixed, dir roundDir) (Fixed, error) {
	a, b := rawOf(f), rawOf(o)
	neg := (a.Sign() < 0) != (b.Sign() < 0)

	aAbs, err := bigToUint256(new(big.Int).Abs(a))
	if err != nil {
		return Fixed{}, err
	}
	bAbs, err := bigToUint256(new(big.Int).Abs(b))
	if err != nil {
		return Fixed{}, err
	}

	product, overflow := new(uint256.Int).MulOverflow(aAbs, bAbs)
	if overflow {
		return Fixed{}, ErrMathOverflow
	}

	scaleU256, _ := bigToUint256(scale)
	quotient := new(uint256.Int)
	remainder := new(uint256.Int)
	quotient.DivMod(product, scaleU256, remainder)

	if !remainder.IsZero() && dir == roundUp {
		quotient.AddOverflow(quotient, uint256.NewInt(1))
	}

	raw := quotient.ToBig()
	if neg {
		raw.Neg(raw)
	}
	return fromRaw(raw)
}

// Div divides f by o, rounding the result down; fails with ErrMathOverflow
// on division by zero.
func (f Fixed) Div(o Fixed) (Fixed, error) {
	return f.DivRound(o, roundDown)
}

// DivRound divides f by o using the same widened-256-bit technique as
// MulRound, rounding toward the requested direction.
func (f Fixed) DivRound(o Fixed, dir roundDir) (Fixed, error) {
	a, b := rawOf(f), rawOf(o)
	if b.Sign() == 0 {
		return Fixed{}, ErrMathOverflow
	}
	neg := (a.Sign() < 0) != (b.Sign() < 0)

	aAbs, err := bigToUint256(new(big.Int).Abs(a))
	if err != nil {
		return Fixed{}, err
	}
	bAbs, err := bigToUint256(new(big.Int).Abs(b))
	if err != nil {
		return Fixed{}, err
	}

	scaleU256, _ := bigToUint256(scale)
	numerator, overflow := new(uint256.Int).MulOverflow(aAbs, scaleU256)
	if overflow {
		return Fixed{}, ErrMathOverflow
	}

	quotient := new(uint256.Int)
	remainder := new(uint256.Int)
	quotient.DivMod(numerator, bAbs, remainder)

	if !remainder.IsZero() && dir == roundUp {
		quotient.AddOverflow(quotient, uint256.NewInt(1))
	}

	raw := quotient.ToBig()
	if neg {
		raw.Neg(raw)
	}
	return fromRaw(raw)
}

func bigToUint256(v *big.Int) (*uint256.Int, error) {
	if v.Sign() < 0 || v.BitLen() > 256 {
		return nil, ErrMathOverflow
	}
	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, ErrMathOverflow
	}
	return u, nil
}

// FromDecimalString parses an exact base-10 decimal string (e.g. "1000000.5",
// "-0.025") into a Fixed without ever passing the value through a float,
// matching the ambient-stack requirement that configuration values reach the
// fixed-point kernel without floating-point round-trip. Precision beyond 48
// fractional bits is truncated toward zero (consistent with the kernel's
// default rounding). Returns ErrMathOverflow on malformed input or on a
// magnitude outside the I80F48 range.
func FromDecimalString(s string) (Fixed, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Fixed{}, fmt.Errorf("ledger: empty decimal string: %w", ErrMathOverflow)
	}
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}

	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if hasFrac && strings.Contains(fracPart, ".") {
		return Fixed{}, fmt.Errorf("ledger: malformed decimal string %q: %w", s, ErrMathOverflow)
	}
	if intPart == "" {
		intPart = "0"
	}
	digits := intPart + fracPart
	if digits == "" {
		return Fixed{}, fmt.Errorf("ledger: malformed decimal string %q: %w", s, ErrMathOverflow)
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return Fixed{}, fmt.Errorf("ledger: malformed decimal string %q: %w", s, ErrMathOverflow)
		}
	}

	numerator, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return Fixed{}, fmt.Errorf("ledger: malformed decimal string %q: %w", s, ErrMathOverflow)
	}
	denominator := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(len(fracPart))), nil)

	raw := new(big.Int).Mul(numerator, scale)
	raw.Quo(raw, denominator)
	if neg {
		raw.Neg(raw)
	}
	return fromRaw(raw)
}

// String renders the value as an exact decimal string for logs, diagnostics,
// and FromDecimalString round-trips. A 2^-48 fraction always terminates
// within 48 decimal places, so no digits are lost.
func (f Fixed) String() string {
	r := rawOf(f)
	q := new(big.Int).Quo(r, scale)
	rem := new(big.Int).Mod(new(big.Int).Abs(r), scale)
	if rem.Sign() == 0 {
		return q.String()
	}
	sign := ""
	if r.Sign() < 0 && q.Sign() == 0 {
		sign = "-"
	}
	frac := new(big.Rat).SetFrac(rem, scale)
	return sign + q.String() + "." + strings.TrimPrefix(frac.FloatString(fracBits), "0.")
}
