package scrape

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/cargpt/ads-crawler/internal/listing"
)

// ErrExtraction means a detail page is missing one of the fields the
// listing cannot exist without. Unknown attribute labels never cause it.
var ErrExtraction = errors.New("scrape: page missing required content")

const additionalInfoTitle = "Dodatni podaci"

// Detail extracts one normalized listing from a rendered detail page.
// The title, price, publication timestamp and remaining-duration string
// are load bearing; attribute rows with labels we cannot translate are
// logged once each and dropped.
func Detail(doc *goquery.Document, pageURL string, logger *zap.Logger) (*listing.Listing, error) {
	title := cleanText(doc.Find("h1.ClassifiedDetailSummary-title").First().Text())
	if title == "" {
		return nil, fmt.Errorf("%w: title", ErrExtraction)
	}

	price := cleanText(doc.Find("dd.ClassifiedDetailSummary-priceDomestic").First().Text())
	if price == "" {
		return nil, fmt.Errorf("%w: price", ErrExtraction)
	}

	published, expires, err := systemDetails(doc)
	if err != nil {
		return nil, err
	}

	raw := listing.RawFields{listing.FieldPrice: price}
	basicDetails(doc, raw, logger)
	additionalInfo(doc, raw, logger)

	return &listing.Listing{
		URL:         pageURL,
		Title:       title,
		DateCreated: published,
		AdExpires:   expires,
		Fields:      listing.Normalize(raw, logger),
	}, nil
}

// ImageURLs returns the gallery images of a detail page in display
// order. Lazy-loaded galleries keep the real address in data-src, so it
// wins over src when both are present.
func ImageURLs(doc *goquery.Document) []listing.Image {
	var images []listing.Image
	seen := make(map[string]bool)

	doc.Find(".ClassifiedDetailGallery img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("data-src")
		if !ok || src == "" {
			src, _ = img.Attr("src")
		}
		if src == "" || seen[src] {
			return
		}
		seen[src] = true
		images = append(images, listing.Image{URL: src, Position: len(images)})
	})
	return images
}

// systemDetails reads the publication timestamp and the remaining
// duration from the system-details block. The duration is resolved to an
// absolute expiry; an until-sold ad yields a zero expiry.
func systemDetails(doc *goquery.Document) (published, expires time.Time, err error) {
	entries := doc.Find(".ClassifiedDetailSystemDetails-listData")
	if entries.Length() < 2 {
		return published, expires, fmt.Errorf("%w: system details", ErrExtraction)
	}

	publishedText := cleanText(entries.Eq(0).Text())
	published, err = time.Parse(listing.PublishedAtLayout, publishedText)
	if err != nil {
		return published, expires, fmt.Errorf("%w: publication timestamp %q", ErrExtraction, publishedText)
	}

	durationText := cleanText(entries.Eq(1).Text())
	expires, ok, err := listing.ParseDuration(durationText, published)
	if err != nil {
		return published, expires, fmt.Errorf("%w: duration %q", ErrExtraction, durationText)
	}
	if !ok {
		return published, time.Time{}, nil
	}
	return published, expires, nil
}

// basicDetails walks the parallel term/definition columns of the main
// attribute list.
func basicDetails(doc *goquery.Document, raw listing.RawFields, logger *zap.Logger) {
	list := doc.Find("dl.ClassifiedDetailBasicDetails-list").First()
	terms := list.Find("dt.ClassifiedDetailBasicDetails-listTerm")
	defs := list.Find("dd.ClassifiedDetailBasicDetails-listDefinition")

	n := terms.Length()
	if defs.Length() < n {
		n = defs.Length()
	}
	for i := 0; i < n; i++ {
		label := cleanText(terms.Eq(i).Find(".ClassifiedDetailBasicDetails-textWrapContainer").Text())
		value := cleanText(defs.Eq(i).Find(".ClassifiedDetailBasicDetails-textWrapContainer").Text())
		if label == "" {
			continue
		}
		field, ok := listing.Translate(label)
		if !ok {
			logger.Warn("unknown attribute label", zap.String("label", label))
			continue
		}
		raw[field] = value
	}
}

// additionalInfo reads the "Dodatni podaci" property group, whose items
// are "Label: value" lines rather than term/definition pairs.
func additionalInfo(doc *goquery.Document, raw listing.RawFields, logger *zap.Logger) {
	doc.Find("section.ClassifiedDetailPropertyGroups-group").EachWithBreak(func(_ int, group *goquery.Selection) bool {
		if cleanText(group.Find("h3").First().Text()) != additionalInfoTitle {
			return true
		}

		group.Find("div ul li").Each(func(_ int, li *goquery.Selection) {
			line := cleanText(li.Text())
			label, value, found := strings.Cut(line, ": ")
			if !found {
				return
			}
			if label == "Veličina guma" {
				value = tireSize(value)
			}
			field, ok := listing.Translate(label)
			if !ok {
				logger.Warn("unknown attribute label", zap.String("label", label))
				return
			}
			raw[field] = cleanText(value)
		})
		return false
	})
}

// tireSize collapses the site's labeled tire dimensions into the usual
// compact notation. "Širina: 215, Visina: 60, Promjer: 17" becomes
// "215/60R17"; a diameter-only value like "Promjer: 18" becomes "18".
func tireSize(value string) string {
	if !strings.Contains(value, "Visina") {
		parts := strings.Split(value, ": ")
		return parts[len(parts)-1]
	}

	segments := strings.Split(value, ", ")
	if len(segments) != 3 {
		return value
	}
	dims := make([]string, 3)
	for i, seg := range segments {
		parts := strings.Split(seg, ": ")
		dims[i] = parts[len(parts)-1]
	}
	return fmt.Sprintf("%s/%sR%s", dims[0], dims[1], dims[2])
}

func cleanText(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, " ", " ")
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
