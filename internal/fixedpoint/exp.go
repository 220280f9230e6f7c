package fixedpoint

import "github.com/holiman/uint256"

// The exp and ln series run at 36 decimals and are rounded to WAD once at
// the end.
var (
	e36       = new(uint256.Int).Mul(wad, wad)
	ln2E36    = uint256.MustFromDecimal("693147180559945309417232121458176568")
	halfLn2E36 = new(uint256.Int).Rsh(ln2E36, 1)
	twoWad    = uint256.NewInt(2_000_000_000_000_000_000)
	one       = uint256.NewInt(1)
	two       = uint256.NewInt(2)

	// e^x rounds to zero at or below -expMin and no longer fits int256 at
	// or above expMax. Both are magnitudes at 36 decimals.
	expMin = uint256.MustFromDecimal("42139678854452767551000000000000000000")
	expMax = uint256.MustFromDecimal("135305999368893231589000000000000000000")
)

const maxSeriesTerms = 64

// ExpWad returns e^x for a signed WAD exponent, rounded to the nearest wei.
// Exponents at or below -42.139678854452767551 saturate to zero.
func ExpWad(x *uint256.Int) (*uint256.Int, error) {
	ax, neg := abs(x)
	xe, overflow := new(uint256.Int).MulOverflow(ax, wad)
	if overflow {
		if neg {
			return new(uint256.Int), nil
		}
		return nil, ErrOverflow
	}
	return exp36(xe, neg)
}

// exp36 computes e^(±ax) where ax carries 36 decimals.
func exp36(ax *uint256.Int, neg bool) (*uint256.Int, error) {
	if neg && !ax.Lt(expMin) {
		return new(uint256.Int), nil
	}
	if !neg && !ax.Lt(expMax) {
		return nil, ErrOverflow
	}

	// x = k*ln2 + r with |r| <= ln2/2, so e^x = 2^k * e^r.
	k := new(uint256.Int).Add(ax, halfLn2E36)
	k.Div(k, ln2E36)
	kl := new(uint256.Int).Mul(k, ln2E36)
	var r *uint256.Int
	rneg := neg
	if ax.Lt(kl) {
		r = new(uint256.Int).Sub(kl, ax)
		rneg = !neg
	} else {
		r = new(uint256.Int).Sub(ax, kl)
	}

	sum := new(uint256.Int).Set(e36)
	term := new(uint256.Int).Set(e36)
	termNeg := false
	for n := uint64(1); n <= maxSeriesTerms; n++ {
		term, _ = new(uint256.Int).MulDivOverflow(term, r, e36)
		term.Div(term, uint256.NewInt(n))
		if term.IsZero() {
			break
		}
		termNeg = termNeg != rneg
		if termNeg {
			sum.Sub(sum, term)
		} else {
			sum.Add(sum, term)
		}
	}

	shift := uint(k.Uint64())
	var (
		doubled  *uint256.Int
		overflow bool
	)
	if neg {
		doubled, overflow = new(uint256.Int).MulDivOverflow(sum, two, new(uint256.Int).Lsh(wad, shift))
	} else {
		doubled, overflow = new(uint256.Int).MulDivOverflow(sum, new(uint256.Int).Lsh(two, shift), wad)
	}
	if overflow {
		return nil, ErrOverflow
	}
	return halve(doubled)
}

// halve turns 2*v, truncated, into v rounded half up.
func halve(doubled *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(doubled, one)
	if overflow {
		return nil, ErrOverflow
	}
	z.Rsh(z, 1)
	if !z.Lt(minInt256) {
		return nil, ErrOverflow
	}
	return z, nil
}

// LnWad returns the natural logarithm of a positive WAD value as a signed WAD,
// rounded to the nearest wei.
func LnWad(x *uint256.Int) (*uint256.Int, error) {
	l, err := ln36(x)
	if err != nil {
		return nil, err
	}
	al, neg := abs(l)
	doubled, _ := new(uint256.Int).MulDivOverflow(al, two, wad)
	z, err := halve(doubled)
	if err != nil {
		return nil, err
	}
	return withSign(z, neg)
}

// ln36 returns ln(x) for a WAD x as a signed value with 36 decimals.
func ln36(x *uint256.Int) (*uint256.Int, error) {
	if x.Sign() <= 0 {
		return nil, ErrUndefined
	}

	// x = 2^k * m with m in [1, 2).
	scaled := new(uint256.Int).Set(x)
	k := 0
	for !scaled.Lt(twoWad) {
		scaled.Rsh(scaled, 1)
		k++
	}
	for scaled.Lt(wad) {
		scaled.Lsh(scaled, 1)
		k--
	}
	var m *uint256.Int
	if k >= 0 {
		m, _ = new(uint256.Int).MulDivOverflow(x, wad, new(uint256.Int).Lsh(one, uint(k)))
	} else {
		m = new(uint256.Int).Mul(x, wad)
		m.Lsh(m, uint(-k))
	}

	// ln(m) = 2*atanh(s), s = (m-1)/(m+1), s in [0, 1/3).
	num := new(uint256.Int).Sub(m, e36)
	den := new(uint256.Int).Add(m, e36)
	s, _ := new(uint256.Int).MulDivOverflow(num, e36, den)
	s2, _ := new(uint256.Int).MulDivOverflow(s, s, e36)
	sum := new(uint256.Int).Set(s)
	term := new(uint256.Int).Set(s)
	for n := uint64(3); n < 4*maxSeriesTerms; n += 2 {
		term, _ = new(uint256.Int).MulDivOverflow(term, s2, e36)
		if term.IsZero() {
			break
		}
		sum.Add(sum, new(uint256.Int).Div(term, uint256.NewInt(n)))
	}
	sum.Lsh(sum, 1)

	kl := new(uint256.Int).Mul(uint256.NewInt(uint64(absInt(k))), ln2E36)
	if k >= 0 {
		return sum.Add(sum, kl), nil
	}
	return sum.Sub(sum, kl), nil
}

// PowWad returns x^y for x >= 0 and a signed WAD exponent y, computed as
// e^(y*ln x) at 36 decimals.
func PowWad(x, y *uint256.Int) (*uint256.Int, error) {
	if y.IsZero() {
		return One(), nil
	}
	if x.IsZero() {
		if IsNegative(y) {
			return nil, ErrDivisionByZero
		}
		return new(uint256.Int), nil
	}
	l, err := ln36(x)
	if err != nil {
		return nil, err
	}
	al, nl := abs(l)
	ay, ny := abs(y)
	p, overflow := new(uint256.Int).MulDivOverflow(al, ay, wad)
	if overflow {
		if nl != ny {
			return new(uint256.Int), nil
		}
		return nil, ErrOverflow
	}
	return exp36(p, nl != ny)
}

func negate(x *uint256.Int) *uint256.Int { return new(uint256.Int).Neg(x) }

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
