// Package indicator defines malware hash indicators and the records that carry
// their provenance through collection, storage and publishing.
package indicator

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned when a string is not a valid MD5, SHA1 or SHA256 digest.
var ErrInvalid = errors.New("indicator: invalid hash")

// Algorithm is the hash algorithm of an indicator, inferred from its length.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	SHA1   Algorithm = "sha1"
	SHA256 Algorithm = "sha256"
)

// Algorithms lists every supported algorithm, shortest digest first.
var Algorithms = []Algorithm{MD5, SHA1, SHA256}

// HexLen returns the length in hex characters of a digest of this algorithm.
func (a Algorithm) HexLen() int {
	switch a {
	case MD5:
		return 32
	case SHA1:
		return 40
	case SHA256:
		return 64
	}
	return 0
}

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool { return a.HexLen() > 0 }

// ParseAlgorithm accepts "md5", "sha1", "sha-1", "sha256" or "sha-256" in any case.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "") {
	case "md5":
		return MD5, nil
	case "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	}
	return "", fmt.Errorf("unknown hash algorithm %q", s)
}

// AlgorithmForLen maps a hex length to its algorithm.
func AlgorithmForLen(n int) (Algorithm, bool) {
	switch n {
	case 32:
		return MD5, true
	case 40:
		return SHA1, true
	case 64:
		return SHA256, true
	}
	return "", false
}

// Indicator is a normalized hash: lowercase hex of exactly Algorithm.HexLen() characters.
type Indicator struct {
	Value     string    `json:"value"`
	Algorithm Algorithm `json:"algorithm"`
}

func (i Indicator) String() string { return i.Value }

// Parse trims, lowercases and validates s.
func Parse(s string) (Indicator, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	algo, ok := AlgorithmForLen(len(v))
	if !ok {
		return Indicator{}, fmt.Errorf("%w: length %d", ErrInvalid, len(v))
	}
	if !isHex(v) {
		return Indicator{}, fmt.Errorf("%w: non-hex characters", ErrInvalid)
	}
	return Indicator{Value: v, Algorithm: algo}, nil
}

// MustParse is Parse for literals in tests and tables. It panics on invalid input.
func MustParse(s string) Indicator {
	ind, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return ind
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
