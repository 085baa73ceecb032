// Package amount provides 128-bit unsigned fixed-point token amounts.
//
// Token amounts cross the contract boundary as decimal strings and are
// limited to 128 bits. Arithmetic is done on 256-bit words so an overflow
// past 128 bits can be detected instead of wrapping silently.
package amount

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// Bits is the width of a token amount.
const Bits = 128

var (
	// ErrOverflow is returned when a result does not fit in 128 bits.
	ErrOverflow = errors.New("amount: overflow")

	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("amount: underflow")

	// ErrDivideByZero is returned when dividing by a zero amount.
	ErrDivideByZero = errors.New("amount: divide by zero")
)

// Uint128 is an immutable unsigned 128-bit amount.
// The zero value is 0 and ready to use.
type Uint128 struct {
	v uint256.Int
}

// Zero returns the zero amount.
func Zero() Uint128 {
	return Uint128{}
}

// New returns an amount holding n.
func New(n uint64) Uint128 {
	var a Uint128
	a.v.SetUint64(n)
	return a
}

// Parse reads a base-10 amount. Leading signs, hex and values wider than
// 128 bits are rejected.
func Parse(s string) (Uint128, error) {
	if s == "" {
		return Uint128{}, fmt.Errorf("amount: empty string")
	}
	var a Uint128
	if err := a.v.SetFromDecimal(s); err != nil {
		return Uint128{}, fmt.Errorf("amount: parse %q: %w", s, err)
	}
	if a.v.BitLen() > Bits {
		return Uint128{}, fmt.Errorf("amount: parse %q: %w", s, ErrOverflow)
	}
	return a, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or for constants.
func MustParse(s string) Uint128 {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the base-10 representation.
func (a Uint128) String() string {
	return a.v.Dec()
}

// IsZero reports whether a is 0.
func (a Uint128) IsZero() bool {
	return a.v.IsZero()
}

// Cmp returns -1, 0 or +1 depending on whether a is less than, equal to or
// greater than b.
func (a Uint128) Cmp(b Uint128) int {
	return a.v.Cmp(&b.v)
}

// Equal reports whether a == b.
func (a Uint128) Equal(b Uint128) bool {
	return a.v.Eq(&b.v)
}

// Min returns the smaller of a and b.
func Min(a, b Uint128) Uint128 {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Uint64 returns the low 64 bits and whether the amount fits in them.
func (a Uint128) Uint64() (uint64, bool) {
	return a.v.Uint64(), a.v.IsUint64()
}

// CheckedAdd returns a+b or ErrOverflow.
func (a Uint128) CheckedAdd(b Uint128) (Uint128, error) {
	var z Uint128
	if _, overflow := z.v.AddOverflow(&a.v, &b.v); overflow || z.v.BitLen() > Bits {
		return Uint128{}, ErrOverflow
	}
	return z, nil
}

// CheckedSub returns a-b or ErrUnderflow.
func (a Uint128) CheckedSub(b Uint128) (Uint128, error) {
	var z Uint128
	if _, underflow := z.v.SubOverflow(&a.v, &b.v); underflow {
		return Uint128{}, ErrUnderflow
	}
	return z, nil
}

// CheckedMul returns a*b or ErrOverflow.
func (a Uint128) CheckedMul(b Uint128) (Uint128, error) {
	var z Uint128
	if _, overflow := z.v.MulOverflow(&a.v, &b.v); overflow || z.v.BitLen() > Bits {
		return Uint128{}, ErrOverflow
	}
	return z, nil
}

// CheckedDiv returns a/b truncated toward zero, or ErrDivideByZero.
func (a Uint128) CheckedDiv(b Uint128) (Uint128, error) {
	if b.IsZero() {
		return Uint128{}, ErrDivideByZero
	}
	var z Uint128
	z.v.Div(&a.v, &b.v)
	return z, nil
}

// MulOrZero returns a*b, or 0 when the product overflows 128 bits.
func (a Uint128) MulOrZero(b Uint128) Uint128 {
	z, err := a.CheckedMul(b)
	if err != nil {
		return Uint128{}
	}
	return z
}

// DivOrZero returns a/b, or 0 when b is 0.
func (a Uint128) DivOrZero(b Uint128) Uint128 {
	z, err := a.CheckedDiv(b)
	if err != nil {
		return Uint128{}
	}
	return z
}

// MarshalText encodes the amount as a decimal string, which makes JSON and
// YAML carry it quoted.
func (a Uint128) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a decimal string.
func (a *Uint128) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
