package models

import "time"

// Listing is one article link found on a news listing page.
type Listing struct {
	URL       string
	Published time.Time
}
