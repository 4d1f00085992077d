// Package scrape turns rendered listing-site markup into links and
// normalized listings. Everything here is pure: pages come in as
// parsed documents, results come out as values.
package scrape

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// IndexURL builds the address of one results page. Page one is the bare
// base URL; later pages carry the page query parameter.
func IndexURL(base, pageParam string, page int) string {
	if page <= 1 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s%s=%d", base, sep, pageParam, page)
}

// IndexLinks extracts the detail-page links from a results page, in
// display order. Banner slots interleaved with the ads are skipped, and
// relative links are resolved against the page URL.
func IndexLinks(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}

	var links []string
	doc.Find(".EntityList--ListItemRegularAd .EntityList-items > li.EntityList-item").
		Each(func(_ int, li *goquery.Selection) {
			if li.HasClass("EntityList-bannerContainer") {
				return
			}
			href, ok := li.Find("article .entity-title a").First().Attr("href")
			if !ok || href == "" {
				return
			}
			links = append(links, resolveLink(base, href))
		})
	return links
}

// HasNextPage reports whether the results page links to a further page.
func HasNextPage(doc *goquery.Document) bool {
	return doc.Find("button.Pagination-link.js-veza-stranica").Length() > 0
}

func resolveLink(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
