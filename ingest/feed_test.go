package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"malware-hash-feed/config"
)

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>Threat Blog</title>
  <item>
    <title>Loader campaign</title>
    <link>https://blog.example/loader</link>
    <description>summary only</description>
    <content:encoded><![CDATA[<p>Payload:</p><table><tr><td>` + sha256ABC + `</td><td>` + sha256Hello + `</td></tr></table><p>MD5 ` + md5ABC + `</p>]]></content:encoded>
  </item>
  <item>
    <title>Stealer</title>
    <link>https://blog.example/stealer</link>
    <description>&lt;b&gt;` + sha256World + `&lt;/b&gt;</description>
  </item>
</channel>
</rss>`

const atomFeed = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Blog</title>
  <entry>
    <title>First</title>
    <link rel="alternate" href="https://atom.example/1"/>
    <summary>` + sha256Hello + `</summary>
  </entry>
  <entry>
    <title>Second</title>
    <link href="https://atom.example/2"/>
    <content type="xhtml"><div xmlns="http://www.w3.org/1999/xhtml"><p>` + sha256World + `</p></div></content>
  </entry>
</feed>`

const rdfFeed = `<?xml version="1.0"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#" xmlns="http://purl.org/rss/1.0/">
  <channel><title>RDF</title></channel>
  <item><title>One</title><link>https://rdf.example/1</link><description>` + sha256ABC + `</description></item>
</rdf:RDF>`

func TestParseFeed(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		titles []string
		links  []string
	}{
		{name: "rss", data: rssFeed, titles: []string{"Loader campaign", "Stealer"}, links: []string{"https://blog.example/loader", "https://blog.example/stealer"}},
		{name: "atom", data: atomFeed, titles: []string{"First", "Second"}, links: []string{"https://atom.example/1", "https://atom.example/2"}},
		{name: "rdf", data: rdfFeed, titles: []string{"One"}, links: []string{"https://rdf.example/1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := parseFeed([]byte(tt.data))
			require.NoError(t, err)
			var titles, links []string
			for _, e := range entries {
				titles = append(titles, e.Title)
				links = append(links, e.Link)
			}
			assert.Equal(t, tt.titles, titles)
			assert.Equal(t, tt.links, links)
		})
	}

	_, err := parseFeed([]byte(`<html><body>not a feed</body></html>`))
	assert.Error(t, err)
	_, err = parseFeed([]byte(`not xml at all`))
	assert.Error(t, err)
}

func TestHTMLToText(t *testing.T) {
	got := htmlToText(`<td>` + sha256ABC + `</td><td>` + sha256Hello + `</td><script>x</script> &amp; more`)
	assert.Contains(t, got, sha256ABC+" ")
	assert.Contains(t, got, sha256Hello)
	assert.Contains(t, got, "& more")
	assert.NotContains(t, got, "<td>")
}

func TestFeedCollector(t *testing.T) {
	srv := serve(t, "application/rss+xml", rssFeed)
	src := config.Source{Name: "Threat Blog", Kind: config.KindFeed, URL: srv.URL, Algorithms: []string{"sha256"}}
	records := collect(t, src, testEnv(t))

	// Content wins over description; adjacent cells stay separate hashes.
	require.Equal(t, []string{sha256ABC, sha256Hello, sha256World}, values(records))
	assert.Equal(t, "Malware.SecurityBlog", records[0].Classification)
	assert.Equal(t, "Source: Threat Blog - Loader campaign", records[0].AdditionalInfo)
	assert.Equal(t, "Source: Threat Blog - Stealer", records[2].AdditionalInfo)
}

func TestFeedCollectorLimit(t *testing.T) {
	srv := serve(t, "application/atom+xml", atomFeed)
	src := config.Source{Name: "Atom Blog", Kind: config.KindFeed, URL: srv.URL, Limit: 1}
	records := collect(t, src, testEnv(t))
	assert.Equal(t, []string{sha256Hello}, values(records))
}

func TestFeedCollectorManyEntries(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<rss version="2.0"><channel>`)
	for i := 0; i < 12; i++ {
		b.WriteString(`<item><title>t</title><description>` + sha256ABC + `</description></item>`)
	}
	b.WriteString(`<item><title>late</title><description>` + sha256World + `</description></item>`)
	b.WriteString(`</channel></rss>`)

	srv := serve(t, "application/rss+xml", b.String())
	src := config.Source{Name: "Busy Blog", Kind: config.KindFeed, URL: srv.URL}
	records := collect(t, src, testEnv(t))

	// Only the first ten entries are read by default.
	for _, r := range records {
		assert.NotEqual(t, sha256World, r.Value)
	}
}
