package domain

// Response headers carrying image metadata alongside raw bytes. The label is
// query-escaped so non-ASCII text survives the trip.
const (
	HeaderImageID        = "X-Image-Id"
	HeaderImageLabel     = "X-Image-Label"
	HeaderImageCreatedAt = "X-Image-Created-At"
)
