package filter

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"malware-hash-feed/indicator"
)

// Reasons a candidate is rejected.
const (
	ReasonAllowlisted = "allowlisted"
	ReasonLowEntropy  = "low entropy"
	ReasonAllDigits   = "all digits"
)

// emptyDigests are the MD5, SHA1 and SHA256 of zero bytes. Pages list them
// often and they never identify malware.
var emptyDigests = []string{
	"d41d8cd98f00b204e9800998ecf8427e",
	"da39a3ee5e6b4b0d3255bfef95601890afd80709",
	"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
}

// Filter drops candidates that are known benign or cannot plausibly be digests.
type Filter struct {
	allow map[string]bool
}

// New returns a Filter whose allowlist holds the empty-input digests plus extra.
func New(extra ...string) *Filter {
	f := &Filter{allow: make(map[string]bool, len(emptyDigests)+len(extra))}
	for _, v := range emptyDigests {
		f.allow[v] = true
	}
	for _, v := range extra {
		f.allow[strings.ToLower(strings.TrimSpace(v))] = true
	}
	return f
}

// Load builds a Filter from an allowlist file: one hash per line, '#' starts a comment.
// An empty path yields the built-in allowlist only.
func Load(path string) (*Filter, error) {
	if path == "" {
		return New(), nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open allowlist: %w", err)
	}
	defer file.Close()

	var extra []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if _, err := indicator.Parse(line); err != nil {
			return nil, fmt.Errorf("allowlist %s: %q: %w", path, line, err)
		}
		extra = append(extra, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read allowlist: %w", err)
	}
	return New(extra...), nil
}

// Len returns the number of allowlisted values.
func (f *Filter) Len() int { return len(f.allow) }

// Check returns "" when ind should be kept, else the rejection reason.
func (f *Filter) Check(ind indicator.Indicator) string {
	if f.allow[ind.Value] {
		return ReasonAllowlisted
	}
	distinct := make(map[byte]struct{}, 16)
	digits := true
	for i := 0; i < len(ind.Value); i++ {
		c := ind.Value[i]
		distinct[c] = struct{}{}
		if c < '0' || c > '9' {
			digits = false
		}
	}
	if digits {
		return ReasonAllDigits
	}
	if len(distinct) < 4 {
		return ReasonLowEntropy
	}
	return ""
}

// Apply splits records into kept ones and a count of rejections per reason.
func (f *Filter) Apply(records []indicator.Record) ([]indicator.Record, map[string]int) {
	kept := records[:0:0]
	rejected := make(map[string]int)
	for _, r := range records {
		if reason := f.Check(r.Indicator); reason != "" {
			rejected[reason]++
			continue
		}
		kept = append(kept, r)
	}
	return kept, rejected
}
