package store

import "imagevault/pkg/domain"

// Store defines persistence operations for archived images.
// Every read is scoped by owner; implementations never return a record
// whose owner does not match the requested one.
type Store interface {
	// Initialize ensures the schema exists and applies pending upgrades.
	// It is idempotent and safe to call on every startup.
	Initialize() error

	// InsertImage appends a record and returns it with its storage-assigned ID,
	// together with the owner's record count after the insert. Concurrent
	// inserts for the same owner never observe the same count.
	InsertImage(img domain.Image) (domain.Image, int, error)

	// ListImagesByOwner returns the owner's images, newest first.
	ListImagesByOwner(ownerID int64) ([]domain.Image, error)

	// GetImage returns the image only when both id and owner match.
	GetImage(ownerID, id int64) (domain.Image, bool, error)

	// CountImagesByOwner returns how many images the owner has archived.
	CountImagesByOwner(ownerID int64) (int, error)

	// HasImageAtPath reports whether any of the owner's records points at
	// storagePath. Re-archiving a content ref reuses its blob path.
	HasImageAtPath(ownerID int64, storagePath string) (bool, error)

	Close() error
}
