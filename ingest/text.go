package ingest

import (
	"context"

	"malware-hash-feed/indicator"
)

// TextCollector treats the response body as plain text and keeps every hash in it.
// Suits published IOC lists and hash dumps.
type TextCollector struct {
	baseCollector
}

func (c *TextCollector) Collect(ctx context.Context) ([]indicator.Record, error) {
	resp, err := c.env.Client.Get(ctx, c.src.URL, nil)
	if err != nil {
		return nil, err
	}
	records := c.fromText(string(resp.Body), c.classification(indicator.DefaultClassification), "Listed at "+c.src.URL)
	if n := c.limit(0); n > 0 && len(records) > n {
		records = records[:n]
	}
	return records, nil
}
