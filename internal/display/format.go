package display

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// fixed2 formats v with exactly two decimals. Ties are decided on the exact
// binary value of v and round away from zero, which is what browsers print
// for toFixed(2); strconv rounds exact halves to even instead. Negative
// values that round to zero keep their sign.
func fixed2(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case math.Abs(v) >= 1e21:
		return strconv.FormatFloat(v, 'g', -1, 64)
	}

	neg := v < 0
	f := new(big.Float).SetPrec(256).SetFloat64(math.Abs(v))
	f.Mul(f, big.NewFloat(100).SetPrec(256))

	n, _ := f.Int(nil)
	frac := new(big.Float).SetPrec(256).Sub(f, new(big.Float).SetPrec(256).SetInt(n))
	if frac.Cmp(big.NewFloat(0.5)) >= 0 {
		n.Add(n, big.NewInt(1))
	}

	digits := n.String()
	if len(digits) < 3 {
		digits = strings.Repeat("0", 3-len(digits)) + digits
	}
	s := digits[:len(digits)-2] + "." + digits[len(digits)-2:]
	if neg {
		s = "-" + s
	}
	return s
}
