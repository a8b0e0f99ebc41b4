package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"malware-hash-feed/indicator"
)

type bazaarResponse struct {
	QueryStatus string         `json:"query_status"`
	Data        []bazaarSample `json:"data"`
}

type bazaarSample struct {
	SHA256       string         `json:"sha256_hash"`
	SHA1         string         `json:"sha1_hash"`
	MD5          string         `json:"md5_hash"`
	FirstSeen    string         `json:"first_seen"`
	FileType     string         `json:"file_type"`
	Signature    *string        `json:"signature"`
	Tags         []string       `json:"tags"`
	Intelligence map[string]any `json:"intelligence"`
}

// BazaarCollector queries the MalwareBazaar API for its most recent samples.
// Each sample contributes its SHA256, SHA1 and MD5, filtered by the source's algorithms.
type BazaarCollector struct {
	baseCollector
}

func (c *BazaarCollector) Collect(ctx context.Context) ([]indicator.Record, error) {
	form := url.Values{
		"query":    {"get_recent"},
		"selector": {strconv.Itoa(c.limit(100))},
	}
	header := http.Header{}
	if key := c.src.Key(); key != "" {
		header.Set("Auth-Key", key)
	}

	resp, err := c.env.Client.PostForm(ctx, c.src.URL, form, header)
	if err != nil {
		return nil, err
	}

	var result bazaarResponse
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("decode malwarebazaar response: %w", err)
	}
	switch result.QueryStatus {
	case "ok":
	case "no_results":
		return nil, nil
	default:
		return nil, fmt.Errorf("malwarebazaar query_status %q", result.QueryStatus)
	}

	var records []indicator.Record
	for _, sample := range result.Data {
		classification := indicator.DefaultClassification
		if sample.Signature != nil && strings.TrimSpace(*sample.Signature) != "" {
			classification = strings.TrimSpace(*sample.Signature)
		}
		tags := "Unclassified"
		if len(sample.Tags) > 0 {
			tags = strings.Join(sample.Tags, ", ")
		}

		for _, raw := range []string{sample.SHA256, sample.SHA1, sample.MD5} {
			ind, err := indicator.Parse(raw)
			if err != nil || !c.allows(ind.Algorithm) {
				continue
			}
			r := indicator.NewRecord(ind, c.src.Name, c.classification(classification), c.env.Today)
			r.DetectionRate = avDetection(sample.Intelligence)
			r.AdditionalInfo = "Tags: " + tags
			if sample.FileType != "" {
				r.FileType = sample.FileType
			}
			if d, ok := dateOf(sample.FirstSeen); ok {
				r.FirstSeen = d
			}
			records = append(records, r)
		}
	}
	return records, nil
}

// avDetection renders the API's antivirus detection figure as "n/100".
func avDetection(intel map[string]any) string {
	v, ok := intel["avdetection"]
	if !ok || v == nil {
		return "?/100"
	}
	return fmt.Sprintf("%v/100", v)
}

// dateOf returns the YYYY-MM-DD prefix of a timestamp such as "2026-10-16 08:12:03".
func dateOf(ts string) (string, bool) {
	ts = strings.TrimSpace(ts)
	if len(ts) < len(indicator.DateLayout) {
		return "", false
	}
	d := ts[:len(indicator.DateLayout)]
	if _, err := time.Parse(indicator.DateLayout, d); err != nil {
		return "", false
	}
	return d, true
}
