package domain

import "time"

// DefaultCategory is assigned to scraped photos; the source pages carry no category.
const DefaultCategory = "street"

type Photo struct {
	ID            string  `db:"id" json:"id"`
	SourceID      string  `db:"source_id" json:"source_id"` // numeric Flickr photo id
	URL           string  `db:"url" json:"url"`
	DetailPageURL string  `db:"-" json:"detail_page_url,omitempty"`
	Title         string  `db:"title" json:"title"`
	Description   string  `db:"description" json:"description"`
	Category      string  `db:"category" json:"category"`
	DateTaken     *string `db:"date_taken" json:"date_taken"` // YYYY-MM-DD
}

// Candidate is a photo found on a listing page before its detail page is read.
type Candidate struct {
	URL           string
	DetailPageURL string
	SourceID      string
}

// PhotoResult is the outcome of reading one candidate's detail page.
type PhotoResult struct {
	Candidate Candidate
	Photo     *Photo
	Err       error
}

type SyncState struct {
	ID         int64      `db:"id"`
	SyncType   string     `db:"sync_type"`
	LastSync   *time.Time `db:"last_sync"`
	TotalAdded int64      `db:"total_added"`
}
