package flickr

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"photo_syncer/internal/domain"
)

const takenOnPrefix = "Taken on "

var sourceIDPattern = regexp.MustCompile(`/(\d+)_`)

// Layouts accepted after the "Taken on " label, most common first.
var dateTakenLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006-01-02",
}

// Extractor turns listing and photo pages into structured records.
type Extractor struct {
	imageHost      string
	detailPageBase string
	ownerID        string
}

func NewExtractor(imageHost, detailPageBase, ownerID string) *Extractor {
	return &Extractor{
		imageHost:      imageHost,
		detailPageBase: strings.TrimSuffix(detailPageBase, "/"),
		ownerID:        ownerID,
	}
}

// ExtractCandidates returns every image hosted on the photo CDN, in document
// order. Images whose URL carries no numeric photo id are skipped.
func (e *Extractor) ExtractCandidates(html string) ([]domain.Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	var candidates []domain.Candidate
	doc.Find(fmt.Sprintf(`img[src*="%s"]`, e.imageHost)).Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}

		imageURL := NormalizeURL(src)
		sourceID, ok := ParseSourceID(imageURL)
		if !ok {
			return
		}

		candidates = append(candidates, domain.Candidate{
			URL:           imageURL,
			DetailPageURL: e.DetailPageURL(sourceID),
			SourceID:      sourceID,
		})
	})

	return candidates, nil
}

func (e *Extractor) DetailPageURL(sourceID string) string {
	return fmt.Sprintf("%s/%s/%s/in/dateposted-public/", e.detailPageBase, e.ownerID, sourceID)
}

// Detail holds the fields read from a single photo page.
type Detail struct {
	Title       string
	Description string
	DateTaken   *string
}

// ExtractDetail reads title, description and date taken from a photo page.
// Missing elements leave the corresponding field empty.
func ExtractDetail(html string) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Detail{}, fmt.Errorf("parse photo page: %w", err)
	}

	detail := Detail{
		Title:       strings.TrimSpace(doc.Find(".photo-title").First().Text()),
		Description: strings.TrimSpace(doc.Find(".photo-desc").First().Text()),
	}

	if label := doc.Find(".date-taken-label").First(); label.Length() > 0 {
		detail.DateTaken = ParseDateTaken(label.Text())
	}

	return detail, nil
}

// NormalizeURL rewrites protocol-relative URLs to https.
func NormalizeURL(src string) string {
	if strings.HasPrefix(src, "//") {
		return "https:" + src
	}
	return src
}

// ParseSourceID extracts the numeric photo id preceding the first underscore
// in an image URL path, e.g. ".../65535/54260070380_9f1c2e_b.jpg".
func ParseSourceID(imageURL string) (string, bool) {
	m := sourceIDPattern.FindStringSubmatch(imageURL)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ParseDateTaken parses the text following "Taken on " and returns it as
// YYYY-MM-DD. The date is taken as written; no timezone is applied.
func ParseDateTaken(text string) *string {
	idx := strings.Index(text, takenOnPrefix)
	if idx < 0 {
		return nil
	}

	raw := text[idx+len(takenOnPrefix):]
	if nl := strings.IndexByte(raw, '\n'); nl >= 0 {
		raw = raw[:nl]
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	for _, layout := range dateTakenLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			formatted := t.Format(time.DateOnly)
			return &formatted
		}
	}
	return nil
}
