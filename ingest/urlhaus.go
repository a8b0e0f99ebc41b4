package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"malware-hash-feed/indicator"
)

// URLhaus payload CSV columns.
const (
	urlhausFirstSeen = 0
	urlhausMD5       = 3
	urlhausSHA256    = 4
	urlhausFileType  = 5
	urlhausSignature = 6
	urlhausMinFields = 5
)

// URLhausCollector reads the URLhaus payload CSV dump.
type URLhausCollector struct {
	baseCollector
}

func (c *URLhausCollector) Collect(ctx context.Context) ([]indicator.Record, error) {
	resp, err := c.env.Client.Get(ctx, c.src.URL, nil)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(resp.Body))
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	maxRecords := c.limit(0)
	var records []indicator.Record
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse urlhaus csv: %w", err)
		}
		if len(row) < urlhausMinFields {
			continue
		}

		fileType := field(row, urlhausFileType)
		signature := field(row, urlhausSignature)
		classification, name := "Malware.URLhaus", "Malware.URLhaus.Generic"
		if signature != "" && !strings.EqualFold(signature, "none") {
			classification, name = signature, "Malware."+indicator.DottedName(signature)
		}

		for _, col := range []int{urlhausSHA256, urlhausMD5} {
			ind, err := indicator.Parse(row[col])
			if err != nil || !c.allows(ind.Algorithm) {
				continue
			}
			r := indicator.NewRecord(ind, c.src.Name, c.classification(classification), c.env.Today)
			if c.src.Classification == "" {
				r.Name = name
			}
			if fileType != "" {
				r.FileType = fileType
			}
			r.AdditionalInfo = "Downloaded from malicious URL. File type: " + r.FileType
			if d, ok := dateOf(field(row, urlhausFirstSeen)); ok {
				r.FirstSeen = d
			}
			records = append(records, r)
		}
		if maxRecords > 0 && len(records) >= maxRecords {
			break
		}
	}
	return records, nil
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
