package store

import (
	"sync"
	"time"

	"imagevault/pkg/domain"
)

// MemoryStore keeps image metadata in-process. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	images []domain.Image // insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Initialize is a no-op; the in-memory layout has no schema.
func (m *MemoryStore) Initialize() error {
	return nil
}

// InsertImage appends a record and returns it with the owner's new count.
func (m *MemoryStore) InsertImage(img domain.Image) (domain.Image, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	img.ID = m.nextID
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}
	m.images = append(m.images, img)
	count := 0
	for _, existing := range m.images {
		if existing.OwnerID == img.OwnerID {
			count++
		}
	}
	return img, count, nil
}

// ListImagesByOwner returns the owner's images, most recently inserted first.
func (m *MemoryStore) ListImagesByOwner(ownerID int64) ([]domain.Image, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Image, 0)
	for i := len(m.images) - 1; i >= 0; i-- {
		if m.images[i].OwnerID == ownerID {
			res = append(res, m.images[i])
		}
	}
	return res, nil
}

// GetImage returns the image when both id and owner match.
func (m *MemoryStore) GetImage(ownerID, id int64) (domain.Image, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, img := range m.images {
		if img.ID == id && img.OwnerID == ownerID {
			return img, true, nil
		}
	}
	return domain.Image{}, false, nil
}

// CountImagesByOwner returns number of images stored for the owner.
func (m *MemoryStore) CountImagesByOwner(ownerID int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, img := range m.images {
		if img.OwnerID == ownerID {
			count++
		}
	}
	return count, nil
}

// HasImageAtPath reports whether one of the owner's records uses storagePath.
func (m *MemoryStore) HasImageAtPath(ownerID int64, storagePath string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, img := range m.images {
		if img.OwnerID == ownerID && img.StoragePath == storagePath {
			return true, nil
		}
	}
	return false, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
