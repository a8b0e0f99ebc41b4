package ingest

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"

	"malware-hash-feed/fetch"
	"malware-hash-feed/indicator"
)

// PageCollector scrapes a static HTML page. Every element matching the
// source's selector is an item; see fromItem for what an item yields.
type PageCollector struct {
	baseCollector
}

func (c *PageCollector) Collect(ctx context.Context) ([]indicator.Record, error) {
	u, err := url.Parse(c.src.URL)
	if err != nil {
		return nil, err
	}

	var (
		records []indicator.Record
		items   int
		status  int
	)

	sc := colly.NewCollector(
		colly.UserAgent(c.env.Client.UserAgent()),
		colly.AllowURLRevisit(),
	)
	sc.SetRequestTimeout(c.env.Client.Timeout())

	maxItems := c.limit(0)
	sc.OnHTML(c.selector(), func(e *colly.HTMLElement) {
		if maxItems > 0 && items >= maxItems {
			return
		}
		items++
		records = append(records, c.fromItem(e.DOM)...)
	})
	sc.OnError(func(r *colly.Response, err error) {
		status = r.StatusCode
	})

	err = c.env.Client.Retry(ctx, u.Host, func() error {
		records, items, status = nil, 0, 0
		err := sc.Visit(c.src.URL)
		switch {
		case err == nil:
			return nil
		case status != 0:
			return &fetch.StatusError{URL: c.src.URL, StatusCode: status}
		default:
			return fetch.NetworkError(err)
		}
	})
	if err != nil {
		return nil, err
	}
	c.log.Debug().Int("items", items).Int("found", len(records)).Msg("page scraped")
	return records, nil
}

// BrowserCollector renders the page in headless Chrome before extracting
// items, for listings built by client-side scripts.
type BrowserCollector struct {
	baseCollector
}

func (c *BrowserCollector) Collect(ctx context.Context) ([]indicator.Record, error) {
	page, err := c.env.Renderer.Render(ctx, c.src.URL, c.src.WaitSelector)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, err
	}

	var records []indicator.Record
	items := doc.Find(c.selector())
	if n := c.limit(0); n > 0 && items.Length() > n {
		items = items.Slice(0, n)
	}
	items.Each(func(_ int, item *goquery.Selection) {
		records = append(records, c.fromItem(item)...)
	})
	c.log.Debug().Int("items", items.Length()).Int("found", len(records)).Msg("page rendered")
	return records, nil
}

func (b *baseCollector) selector() string {
	if b.src.Selector != "" {
		return b.src.Selector
	}
	return "body"
}

// fromItem extracts records from one listing item. With a hash selector the
// item contributes that single hash when it validates; otherwise, or when it
// does not, every hash in the item's text. The name selector sets the
// classification and the verdict selector the additional info.
func (b *baseCollector) fromItem(item *goquery.Selection) []indicator.Record {
	classification := b.classification(indicator.DefaultClassification)
	if b.src.NameSelector != "" && b.src.Classification == "" {
		name := strings.TrimSpace(item.Find(b.src.NameSelector).First().Text())
		if name == "" {
			name = indicator.Unknown
		}
		classification = "Malware." + name
	}

	info := "Found on " + b.src.Name
	if b.src.VerdictSelector != "" {
		verdict := indicator.Unknown
		if strings.Contains(strings.ToLower(item.Find(b.src.VerdictSelector).Text()), "malicious") {
			verdict = "Malicious"
		}
		info = "Verdict: " + verdict
	}

	if b.src.HashSelector != "" {
		raw := item.Find(b.src.HashSelector).First().Text()
		if ind, err := indicator.Parse(raw); err == nil && b.allows(ind.Algorithm) {
			r := indicator.NewRecord(ind, b.src.Name, classification, b.env.Today)
			r.AdditionalInfo = info
			return []indicator.Record{r}
		}
	}
	return b.fromText(itemText(item), classification, info)
}

// itemText joins the text nodes under sel with spaces. Selection.Text
// concatenates them directly, which would glue hashes in neighbouring cells
// into one longer hex run.
func itemText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, n *goquery.Selection) {
			switch goquery.NodeName(n) {
			case "#text":
				if t := strings.TrimSpace(n.Text()); t != "" {
					parts = append(parts, t)
				}
			case "script", "style", "#comment":
			default:
				walk(n)
			}
		})
	}
	walk(sel)
	return strings.Join(parts, " ")
}
