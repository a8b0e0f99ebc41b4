package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"malware-hash-feed/indicator"
)

// MalpediaCollector reads Malpedia's recent-samples endpoint, a JSON array of
// sample objects. Items that are not objects or carry no sha256 are skipped.
type MalpediaCollector struct {
	baseCollector
}

func (c *MalpediaCollector) Collect(ctx context.Context) ([]indicator.Record, error) {
	resp, err := c.env.Client.Get(ctx, c.src.URL, nil)
	if err != nil {
		return nil, err
	}

	var items []any
	if err := json.Unmarshal(resp.Body, &items); err != nil {
		return nil, fmt.Errorf("decode malpedia response: %w", err)
	}

	var records []indicator.Record
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ind, err := indicator.Parse(stringField(obj, "sha256"))
		if err != nil || !c.allows(ind.Algorithm) {
			continue
		}

		family := stringField(obj, "family")
		if family == "" {
			family = indicator.Unknown
		}
		r := indicator.NewRecord(ind, c.src.Name, c.classification("Malware."+family), c.env.Today)
		r.AdditionalInfo = "Malpedia family: " + family
		if ft := stringField(obj, "fileType"); ft != "" {
			r.FileType = ft
		}
		if d, ok := dateOf(stringField(obj, "timestamp")); ok {
			r.FirstSeen = d
		}
		records = append(records, r)

		if n := c.limit(0); n > 0 && len(records) >= n {
			break
		}
	}
	return records, nil
}

// stringField returns obj[key] when it is a string.
func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}
