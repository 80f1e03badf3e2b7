// Package parser extracts member URLs and member records from directory
// markup.
package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// memberPathMarker identifies detail-page links on a listing page. The bare
// segment is the index page's own self-link and is skipped.
const memberPathMarker = "/members/"

// ExtractMemberURLs returns the detail-page URLs referenced on a listing
// page, resolved against base, in first-seen order with duplicates removed.
func ExtractMemberURLs(doc *goquery.Document, base *url.URL) []string {
	var urls []string
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, link *goquery.Selection) {
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if !strings.Contains(href, memberPathMarker) || href == memberPathMarker {
			return
		}

		resolved, err := base.Parse(href)
		if err != nil {
			return
		}
		abs := resolved.String()
		if _, ok := seen[abs]; ok {
			return
		}
		seen[abs] = struct{}{}
		urls = append(urls, abs)
	})

	return urls
}
