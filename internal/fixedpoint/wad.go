// Package fixedpoint implements deterministic 18-decimal ("WAD") fixed-point
// arithmetic over 256-bit integers.
//
// Unsigned helpers take plain *uint256.Int values. Signed helpers interpret
// their operands as two's complement int256, the same convention the EVM
// uses, so values can be moved between the two without conversion.
//
// Every function allocates its result and never mutates its arguments.
package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the number of decimal places carried by a WAD value.
const Decimals = 18

var (
	ErrOverflow       = errors.New("fixedpoint: overflow")
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")
	ErrUndefined      = errors.New("fixedpoint: undefined")
)

var (
	wad     = uint256.NewInt(1_000_000_000_000_000_000)
	halfWad = uint256.NewInt(500_000_000_000_000_000)
	bpsUnit = uint256.NewInt(100_000_000_000_000)

	// 2^255: magnitude of the smallest int256.
	minInt256 = new(uint256.Int).Lsh(uint256.NewInt(1), 255)
)

// One returns 1.0 (10^18).
func One() *uint256.Int { return new(uint256.Int).Set(wad) }

// Half returns 0.5.
func Half() *uint256.Int { return new(uint256.Int).Set(halfWad) }

// FromUint64 returns n as a WAD value.
func FromUint64(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), wad)
}

// FromInt64 returns n as a signed WAD value.
func FromInt64(n int64) *uint256.Int {
	if n >= 0 {
		return FromUint64(uint64(n))
	}
	mag := FromUint64(uint64(-(n + 1)) + 1)
	return mag.Neg(mag)
}

// FromBps converts basis points (1/10000) to WAD.
func FromBps(bps uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(bps), bpsUnit)
}

// IsNegative reports whether x is negative when read as int256.
func IsNegative(x *uint256.Int) bool { return x.Sign() < 0 }

// MulWad returns x*y/WAD, rounded toward zero.
func MulWad(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, wad)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// DivWad returns x*WAD/y, rounded toward zero.
func DivWad(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, wad, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// SMulWad is the signed form of MulWad.
func SMulWad(x, y *uint256.Int) (*uint256.Int, error) {
	ax, nx := abs(x)
	ay, ny := abs(y)
	z, overflow := new(uint256.Int).MulDivOverflow(ax, ay, wad)
	if overflow {
		return nil, ErrOverflow
	}
	return withSign(z, nx != ny)
}

// SDivWad is the signed form of DivWad.
func SDivWad(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return nil, ErrDivisionByZero
	}
	ax, nx := abs(x)
	ay, ny := abs(y)
	z, overflow := new(uint256.Int).MulDivOverflow(ax, wad, ay)
	if overflow {
		return nil, ErrOverflow
	}
	return withSign(z, nx != ny)
}

// SAdd returns x+y as int256.
func SAdd(x, y *uint256.Int) (*uint256.Int, error) {
	z := new(uint256.Int).Add(x, y)
	nx, ny := IsNegative(x), IsNegative(y)
	if nx == ny && IsNegative(z) != nx {
		return nil, ErrOverflow
	}
	return z, nil
}

// SSub returns x-y as int256.
func SSub(x, y *uint256.Int) (*uint256.Int, error) {
	z := new(uint256.Int).Sub(x, y)
	nx, ny := IsNegative(x), IsNegative(y)
	if nx != ny && IsNegative(z) != nx {
		return nil, ErrOverflow
	}
	return z, nil
}

// SqrtWad returns floor(sqrt(x*WAD)), i.e. the square root of x in WAD.
func SqrtWad(x *uint256.Int) (*uint256.Int, error) {
	p, overflow := new(uint256.Int).MulOverflow(x, wad)
	if overflow {
		return nil, ErrOverflow
	}
	return new(uint256.Int).Sqrt(p), nil
}

// ParseDecimal parses a decimal string such as "0.3" or "-1.25" into WAD.
// Digits beyond the 18th decimal place are truncated.
func ParseDecimal(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("fixedpoint: parse %q: %w", s, err)
	}
	b := d.Shift(Decimals).BigInt()
	neg := b.Sign() < 0
	b.Abs(b)
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, ErrOverflow
	}
	return withSign(z, neg)
}

// Format renders a signed WAD value as a plain decimal string.
func Format(x *uint256.Int) string {
	ax, neg := abs(x)
	b := ax.ToBig()
	if neg {
		b.Neg(b)
	}
	return decimal.NewFromBigInt(b, -Decimals).String()
}

func abs(x *uint256.Int) (*uint256.Int, bool) {
	if x.Sign() < 0 {
		return new(uint256.Int).Neg(x), true
	}
	return new(uint256.Int).Set(x), false
}

func withSign(mag *uint256.Int, neg bool) (*uint256.Int, error) {
	if neg {
		if mag.Gt(minInt256) {
			return nil, ErrOverflow
		}
		return mag.Neg(mag), nil
	}
	if !mag.Lt(minInt256) {
		return nil, ErrOverflow
	}
	return mag, nil
}
