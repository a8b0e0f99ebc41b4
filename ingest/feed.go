package ingest

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/charset"

	"malware-hash-feed/indicator"
)

// FeedCollector extracts hashes from the latest entries of an RSS 2.0 or Atom 1.0 feed.
type FeedCollector struct {
	baseCollector
}

func (c *FeedCollector) Collect(ctx context.Context) ([]indicator.Record, error) {
	resp, err := c.env.Client.Get(ctx, c.src.URL, nil)
	if err != nil {
		return nil, err
	}
	entries, err := parseFeed(resp.Body)
	if err != nil {
		return nil, err
	}

	if n := c.limit(10); len(entries) > n {
		entries = entries[:n]
	}

	var records []indicator.Record
	for _, e := range entries {
		body := e.Content
		if body == "" {
			body = e.Summary
		}
		if body == "" {
			continue
		}
		info := fmt.Sprintf("Source: %s - %s", c.src.Name, e.Title)
		records = append(records, c.fromText(htmlToText(body), c.classification("Malware.SecurityBlog"), info)...)
	}
	c.log.Debug().Int("entries", len(entries)).Int("found", len(records)).Msg("feed parsed")
	return records, nil
}

// feedEntry is the part of an RSS item or Atom entry the collector reads.
type feedEntry struct {
	Title   string
	Link    string
	Summary string
	Content string
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Content     string `xml:"encoded"` // content:encoded
}

type rssRoot struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	// RSS 1.0 (RDF) puts items next to the channel.
	Items []rssItem `xml:"item"`
}

type atomRoot struct {
	Entries []struct {
		Title string `xml:"title"`
		Links []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Summary string `xml:"summary"`
		Content struct {
			Type  string `xml:"type,attr"`
			Text  string `xml:",chardata"`
			Inner string `xml:",innerxml"`
		} `xml:"content"`
	} `xml:"entry"`
}

// parseFeed auto-detects RSS or Atom from the root element.
func parseFeed(data []byte) ([]feedEntry, error) {
	switch feedFormat(data) {
	case "rss":
		var root rssRoot
		if err := decodeXML(data, &root); err != nil {
			return nil, fmt.Errorf("parse rss: %w", err)
		}
		items := append(root.Channel.Items, root.Items...)
		entries := make([]feedEntry, 0, len(items))
		for _, it := range items {
			entries = append(entries, feedEntry{
				Title:   strings.TrimSpace(it.Title),
				Link:    strings.TrimSpace(it.Link),
				Summary: strings.TrimSpace(it.Description),
				Content: strings.TrimSpace(it.Content),
			})
		}
		return entries, nil
	case "atom":
		var root atomRoot
		if err := decodeXML(data, &root); err != nil {
			return nil, fmt.Errorf("parse atom: %w", err)
		}
		entries := make([]feedEntry, 0, len(root.Entries))
		for _, e := range root.Entries {
			content := e.Content.Text
			if e.Content.Type == "xhtml" {
				content = e.Content.Inner
			}
			var link string
			for _, l := range e.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			entries = append(entries, feedEntry{
				Title:   strings.TrimSpace(e.Title),
				Link:    strings.TrimSpace(link),
				Summary: strings.TrimSpace(e.Summary),
				Content: strings.TrimSpace(content),
			})
		}
		return entries, nil
	}
	return nil, fmt.Errorf("unknown feed format (expected <rss>, <rdf> or <feed>)")
}

// decodeXML is xml.Unmarshal that also accepts non-UTF-8 encodings declared in the prolog.
func decodeXML(data []byte, v any) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	return d.Decode(v)
}

func feedFormat(data []byte) string {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := d.Token()
		if err != nil {
			return ""
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch strings.ToLower(se.Name.Local) {
			case "rss", "rdf":
				return "rss"
			case "feed":
				return "atom"
			}
			return ""
		}
	}
}

var textPolicy = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

// htmlToText strips all markup, leaving a space where each tag was so
// adjacent cells do not run together.
func htmlToText(s string) string {
	return html.UnescapeString(textPolicy.Sanitize(s))
}
