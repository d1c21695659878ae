package domain

import "time"

// Image is one archived upload. ID is the storage-assigned key and is
// shared across owners; it is only meaningful together with OwnerID.
type Image struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"ownerId"`
	ContentRef  string    `json:"contentRef"`
	StoragePath string    `json:"-"`
	Label       *string   `json:"label,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// HasLabel reports whether the image was named by its owner.
func (i Image) HasLabel() bool {
	return i.Label != nil && *i.Label != ""
}

// LabelOrEmpty returns the label or "" for unnamed images.
func (i Image) LabelOrEmpty() string {
	if i.Label == nil {
		return ""
	}
	return *i.Label
}

// RankedImage pairs an image with its 1-based position in a newest-first listing.
type RankedImage struct {
	Rank  int   `json:"rank"`
	Image Image `json:"image"`
}
