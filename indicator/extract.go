package indicator

import "regexp"

// candidatePattern matches standalone hex runs between MD5 and SHA256 length.
// Word boundaries on both sides keep longer runs such as SHA-512 digests out.
var candidatePattern = regexp.MustCompile(`\b[A-Fa-f0-9]{32,64}\b`)

// Extract returns the distinct indicators found in text, in order of first
// appearance. Only algorithms in allow are kept; an empty allow keeps all.
func Extract(text string, allow ...Algorithm) []Indicator {
	var out []Indicator
	seen := make(map[string]struct{})
	for _, m := range candidatePattern.FindAllString(text, -1) {
		ind, err := Parse(m)
		if err != nil {
			continue
		}
		if !allowed(ind.Algorithm, allow) {
			continue
		}
		if _, ok := seen[ind.Value]; ok {
			continue
		}
		seen[ind.Value] = struct{}{}
		out = append(out, ind)
	}
	return out
}

func allowed(a Algorithm, allow []Algorithm) bool {
	if len(allow) == 0 {
		return true
	}
	for _, x := range allow {
		if x == a {
			return true
		}
	}
	return false
}
