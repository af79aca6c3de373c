package csdb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// FractionScale is the number of fractional units in one whole unit
// (10^18, matching the wire layout's u64 fraction field).
const FractionScale = 1_000_000_000_000_000_000

// Amount is a 128-bit-class fixed-point value: a signed 32-bit integral
// part and an unsigned 64-bit fractional part where FractionScale equals
// one whole unit. Integral add/sub use Go's wrapping int32 semantics
// deliberately (spec §9); multiplication by an integer (MulInt64) routes
// the value through a 256-bit intermediate via uint256 so overflow is
// detected instead of silently truncated. Amount has no division.
type Amount struct {
	Integral int32
	Fraction uint64
}

// Zero is the additive identity.
var Zero = Amount{}

// NewAmount constructs an Amount, rejecting a fraction that is not
// strictly less than FractionScale (spec §3 invariant).
func NewAmount(integral int32, fraction uint64) (Amount, error) {
	if fraction >= FractionScale {
		return Amount{}, fmt.Errorf("csdb: fraction %d >= scale %d", fraction, FractionScale)
	}
	return Amount{Integral: integral, Fraction: fraction}, nil
}

// Add returns a+b. The integral part wraps on overflow; the fractional
// part carries into the integral part exactly as decimal addition would.
func (a Amount) Add(b Amount) Amount {
	sum := a.Fraction + b.Fraction
	carry := int32(0)
	if sum >= FractionScale {
		sum -= FractionScale
		carry = 1
	}
	return Amount{Integral: a.Integral + b.Integral + carry, Fraction: sum}
}

// Sub returns a-b, borrowing from the integral part when b's fraction
// exceeds a's.
func (a Amount) Sub(b Amount) Amount {
	if a.Fraction >= b.Fraction {
		return Amount{Integral: a.Integral - b.Integral, Fraction: a.Fraction - b.Fraction}
	}
	borrowed := a.Fraction + FractionScale - b.Fraction
	return Amount{Integral: a.Integral - b.Integral - 1, Fraction: borrowed}
}

// MulInt64 returns a*k, checked: it reports ok=false instead of silently
// truncating if the result's integral part would not fit in int32. The
// multiplication itself runs on 256-bit intermediates to avoid overflow
// while combining the integral and fractional parts.
func (a Amount) MulInt64(k int64) (result Amount, ok bool) {
	total := amountToUint256(a)
	factor := uint256.NewInt(0)
	neg := k < 0
	if neg {
		k = -k
	}
	if a.Integral < 0 {
		neg = !neg
	}
	factor.SetUint64(uint64(k))
	total.Mul(total, factor)
	if neg {
		return fromUint256Signed(total, true)
	}
	return fromUint256Signed(total, false)
}

// amountToUint256 packs the amount's absolute value into a single
// 256-bit unsigned scale-FractionScale integer: |integral|*scale+fraction.
func amountToUint256(a Amount) *uint256.Int {
	integral := int64(a.Integral)
	neg := integral < 0
	if neg {
		integral = -integral
	}
	scale := uint256.NewInt(FractionScale)
	whole := uint256.NewInt(uint64(integral))
	whole.Mul(whole, scale)
	frac := uint256.NewInt(a.Fraction)
	whole.Add(whole, frac)
	return whole
}

// fromUint256Signed unpacks a scale-FractionScale magnitude back into an
// Amount, applying the given sign. ok is false if the integral part
// overflows int32.
func fromUint256Signed(mag *uint256.Int, negative bool) (Amount, bool) {
	scale := uint256.NewInt(FractionScale)
	whole, frac := new(uint256.Int).DivMod(mag, scale, new(uint256.Int))
	limit := uint64(1) << 31
	if !negative {
		limit--
	}
	if !whole.IsUint64() || whole.Uint64() > limit {
		return Amount{}, false
	}
	integral := int32(whole.Uint64())
	if negative {
		integral = -integral
	}
	return Amount{Integral: integral, Fraction: frac.Uint64()}, true
}

// String renders the amount in decimal with all 18 fractional digits,
// trailing zeros included (FormatDecimals(18)).
func (a Amount) String() string {
	return a.FormatDecimals(18)
}

// FormatDecimals renders the amount with exactly k fractional digits.
func (a Amount) FormatDecimals(k int) string {
	sign := ""
	integral := a.Integral
	if integral < 0 {
		sign = "-"
		integral = -integral
	}
	fracStr := fmt.Sprintf("%018d", a.Fraction)
	if k < 18 {
		fracStr = fracStr[:k]
	} else if k > 18 {
		fracStr += strings.Repeat("0", k-18)
	}
	return fmt.Sprintf("%s%d.%s", sign, integral, fracStr)
}

// ParseAmount parses a decimal string of the form produced by String,
// satisfying the round-trip law ParseAmount(a.FormatDecimals(k)) == a for
// k >= 18.
func ParseAmount(s string) (Amount, error) {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	parts := strings.SplitN(s, ".", 2)
	integral, err := strconv.ParseInt(parts[0], 10, 32)
	if err != nil {
		return Amount{}, fmt.Errorf("csdb: invalid amount %q: %w", s, err)
	}
	var fracStr string
	if len(parts) == 2 {
		fracStr = parts[1]
	}
	if len(fracStr) > 18 {
		fracStr = fracStr[:18]
	} else {
		fracStr += strings.Repeat("0", 18-len(fracStr))
	}
	fraction, err := strconv.ParseUint(fracStr, 10, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("csdb: invalid amount %q: %w", s, err)
	}
	if neg {
		integral = -integral
	}
	return Amount{Integral: int32(integral), Fraction: fraction}, nil
}
