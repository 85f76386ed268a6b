// Package bytesize parses and formats byte sizes such as "64KiB" or
// "1.5MB". Every unit is binary: K, KB and KiB all mean 1024 bytes.
package bytesize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Size is a number of bytes.
type Size int64

// Binary size units.
const (
	B  Size = 1
	KB Size = 1 << (10 * iota)
	MB
	GB
	TB
)

var units = []struct {
	size  Size
	names []string
}{
	{TB, []string{"t", "tb", "tib"}},
	{GB, []string{"g", "gb", "gib"}},
	{MB, []string{"m", "mb", "mib"}},
	{KB, []string{"k", "kb", "kib"}},
	{B, []string{"", "b", "byte", "bytes"}},
}

// Parse parses a size made of a decimal number and an optional unit. A
// bare number is a count of bytes.
func Parse(s string) (Size, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	split := strings.IndexFunc(trimmed, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	number, unit := trimmed, ""
	if split >= 0 {
		number, unit = trimmed[:split], strings.ToLower(strings.TrimSpace(trimmed[split:]))
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid number in %q: %w", s, err)
	}

	for _, u := range units {
		for _, name := range u.names {
			if name != unit {
				continue
			}
			bytes := value * float64(u.size)
			if bytes > math.MaxInt64 {
				return 0, fmt.Errorf("bytesize: %q overflows", s)
			}
			return Size(bytes), nil
		}
	}
	return 0, fmt.Errorf("bytesize: unknown unit %q in %q", unit, s)
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Size {
	size, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return size
}

// Format returns s in the largest unit that keeps the value at or above
// one, with at most two decimals.
func Format(s Size) string {
	sign := ""
	if s < 0 {
		sign, s = "-", -s
	}
	for _, u := range units {
		if s < u.size || u.size == B {
			continue
		}
		value := strconv.FormatFloat(float64(s)/float64(u.size), 'f', 2, 64)
		value = strings.TrimRight(strings.TrimRight(value, "0"), ".")
		return sign + value + strings.ToUpper(u.names[1])
	}
	return fmt.Sprintf("%s%dB", sign, s)
}

// Bytes returns the size in bytes.
func (s Size) Bytes() int64 {
	return int64(s)
}

// String returns Format(s).
func (s Size) String() string {
	return Format(s)
}
