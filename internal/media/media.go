// Package media defines the data model shared by the avpump pipeline:
// media types, time bases, sample formats, packets and decoded frames.
//
// Packets and frames handed to a sink during a callback are borrowed. They
// are only valid until the callback returns; call Clone to keep a copy.
package media

import (
	"fmt"
	"math"
	"math/big"
)

// MediaType identifies the kind of data carried by a stream.
type MediaType int

// Media type constants.
const (
	MediaTypeUnknown MediaType = iota
	MediaTypeAudio
	MediaTypeVideo
	MediaTypeData
	MediaTypeSubtitle
)

// String returns the lower-case name of the media type.
func (m MediaType) String() string {
	switch m {
	case MediaTypeAudio:
		return "audio"
	case MediaTypeVideo:
		return "video"
	case MediaTypeData:
		return "data"
	case MediaTypeSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// NoPTS marks an unset timestamp. Rescale leaves it untouched.
const NoPTS int64 = math.MinInt64

// NoStream is the stream index used when a stream kind is absent.
const NoStream = -1

// Rational is a fraction used for time bases and frame rates.
type Rational struct {
	Num int
	Den int
}

// NewRational creates a new rational.
func NewRational(num, den int) Rational {
	return Rational{Num: num, Den: den}
}

// Valid reports whether both terms are non-zero.
func (r Rational) Valid() bool {
	return r.Num != 0 && r.Den != 0
}

// Float64 returns the value as a float.
func (r Rational) Float64() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// String returns the rational as "num/den".
func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// Rounding selects how RescaleRnd rounds inexact results.
type Rounding int

// Rounding modes.
const (
	// RoundNearInf rounds to nearest, halfway cases away from zero.
	RoundNearInf Rounding = iota
	// RoundDown rounds toward negative infinity.
	RoundDown
	// RoundUp rounds toward positive infinity.
	RoundUp
	// RoundZero rounds toward zero.
	RoundZero
)

// RescaleRnd computes a*b/c with the requested rounding. The intermediate
// product is computed exactly so large timestamps do not overflow.
func RescaleRnd(a, b, c int64, rnd Rounding) int64 {
	if c == 0 {
		return 0
	}
	num := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	den := big.NewInt(c)
	if den.Sign() < 0 {
		num.Neg(num)
		den.Neg(den)
	}

	// Euclidean division: q = floor(num/den), 0 <= m < den.
	q, m := new(big.Int).DivMod(num, den, new(big.Int))
	if m.Sign() != 0 {
		switch rnd {
		case RoundUp:
			q.Add(q, big.NewInt(1))
		case RoundZero:
			if num.Sign() < 0 {
				q.Add(q, big.NewInt(1))
			}
		case RoundNearInf:
			twice := new(big.Int).Lsh(m, 1)
			cmp := twice.Cmp(den)
			if cmp > 0 || (cmp == 0 && num.Sign() > 0) {
				q.Add(q, big.NewInt(1))
			}
		case RoundDown:
		}
	}

	if !q.IsInt64() {
		if q.Sign() < 0 {
			return math.MinInt64 + 1
		}
		return math.MaxInt64
	}
	return q.Int64()
}

// Rescale converts ts from time base from to time base to, rounding to the
// nearest tick. NoPTS is preserved.
func Rescale(ts int64, from, to Rational) int64 {
	if ts == NoPTS {
		return NoPTS
	}
	if !from.Valid() || !to.Valid() {
		return ts
	}
	return RescaleRnd(ts, int64(from.Num)*int64(to.Den), int64(from.Den)*int64(to.Num), RoundNearInf)
}
