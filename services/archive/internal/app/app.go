package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"imagevault/internal/util"
	"imagevault/pkg/domain"
	"imagevault/pkg/search"
	"imagevault/pkg/storage"
	"imagevault/pkg/store"
)

// Blob backends selectable through Config.BlobBackend.
const (
	BlobBackendFile  = "file"
	BlobBackendMinio = "minio"
)

// Config holds runtime configuration for the archive core.
type Config struct {
	// Store and Blobs take precedence over the settings below when set.
	Store store.Store
	Blobs storage.BlobStore

	DatabaseURL    string
	BlobBackend    string
	DataDir        string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
}

// App is the archive service: it ties blob storage to image metadata and
// scopes every operation to one owner.
type App struct {
	store store.Store
	blobs storage.BlobStore

	// blobLocks serializes save, insert and cleanup per blob name, since
	// re-archiving a content ref writes to the same path.
	blobLocks keyedMutex
}

// Upload is the outcome of a successful SaveUpload.
type Upload struct {
	// DisplayID is the owner's image count after this upload, i.e. the
	// number shown to the user. Image.ID is the storage key used by GetImage.
	DisplayID int          `json:"displayId"`
	Image     domain.Image `json:"image"`
}

// New constructs the archive core. Storage setup (schema migrations, blob
// directory creation) completes here, before any request is served.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		var err error
		dataStore, err = openStore(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
	}
	blobs := cfg.Blobs
	if blobs == nil {
		var err error
		blobs, err = openBlobStore(cfg)
		if err != nil {
			if cfg.Store == nil {
				_ = dataStore.Close()
			}
			return nil, err
		}
	}
	return &App{store: dataStore, blobs: blobs}, nil
}

func openStore(databaseURL string) (store.Store, error) {
	switch strings.TrimSpace(databaseURL) {
	case "":
		return nil, fmt.Errorf("database URL required")
	case "memory":
		return store.NewMemoryStore(), nil
	}
	s, err := store.NewGormStore(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("init image store: %w", err)
	}
	return s, nil
}

func openBlobStore(cfg Config) (storage.BlobStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.BlobBackend)) {
	case "", BlobBackendFile:
		return storage.NewFileStore(cfg.DataDir)
	case BlobBackendMinio:
		return storage.NewMinioStore(storage.MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			Prefix:    "user_images",
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// Close releases the metadata store.
func (a *App) Close() error {
	return a.store.Close()
}

// SaveUpload persists the bytes first and only then records the metadata, so
// a failed blob write never leaves a record behind.
func (a *App) SaveUpload(ctx context.Context, ownerID int64, contentRef string, data []byte, label string) (Upload, error) {
	contentRef = strings.TrimSpace(contentRef)
	switch {
	case ownerID <= 0:
		return Upload{}, fmt.Errorf("%w: owner id must be positive", ErrInvalidUpload)
	case contentRef == "":
		return Upload{}, fmt.Errorf("%w: content ref required", ErrInvalidUpload)
	case len(data) == 0:
		return Upload{}, fmt.Errorf("%w: image is empty", ErrInvalidUpload)
	}
	logger := util.LoggerFromContext(ctx).With("owner_id", ownerID)

	name := StorageFilename(ownerID, contentRef)
	unlock := a.blobLocks.Lock(name)
	defer unlock()

	path, err := a.blobs.Save(ctx, name, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		logger.Error("blob write failed", "name", name, "err", err)
		return Upload{}, fmt.Errorf("%w: save blob: %w", ErrStorageWriteFailed, err)
	}

	img := domain.Image{
		OwnerID:     ownerID,
		ContentRef:  contentRef,
		StoragePath: path,
		Label:       normalizeLabel(label),
		CreatedAt:   time.Now().UTC(),
	}
	saved, count, err := a.store.InsertImage(img)
	if err != nil {
		a.discardBlob(ctx, ownerID, path)
		logger.Error("metadata write failed", "path", path, "err", err)
		return Upload{}, fmt.Errorf("%w: insert record: %w", ErrStorageWriteFailed, err)
	}
	logger.Info("image saved", "image_id", saved.ID, "display_id", count, "labeled", saved.HasLabel())
	return Upload{DisplayID: count, Image: saved}, nil
}

// discardBlob removes a blob left by a failed insert unless an earlier record
// of the same owner still points at it.
func (a *App) discardBlob(ctx context.Context, ownerID int64, path string) {
	logger := util.LoggerFromContext(ctx).With("owner_id", ownerID, "path", path)
	referenced, err := a.store.HasImageAtPath(ownerID, path)
	if err != nil {
		logger.Warn("blob reference check failed, keeping blob", "err", err)
		return
	}
	if referenced {
		logger.Info("blob still referenced, keeping it")
		return
	}
	if err := a.blobs.Delete(ctx, path); err != nil {
		logger.Warn("orphan blob cleanup failed", "err", err)
	}
}

// ListImages returns the owner's images newest first, ranked from 1.
func (a *App) ListImages(_ context.Context, ownerID int64) ([]domain.RankedImage, error) {
	images, err := a.store.ListImagesByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	ranked := make([]domain.RankedImage, 0, len(images))
	for i, img := range images {
		ranked = append(ranked, domain.RankedImage{Rank: i + 1, Image: img})
	}
	return ranked, nil
}

// GetImage returns the record and an open reader over its bytes. The caller
// closes the reader.
func (a *App) GetImage(ctx context.Context, ownerID, id int64) (domain.Image, io.ReadCloser, error) {
	img, ok, err := a.store.GetImage(ownerID, id)
	if err != nil {
		return domain.Image{}, nil, fmt.Errorf("get image: %w", err)
	}
	if !ok {
		return domain.Image{}, nil, ErrNotFound
	}
	rc, err := a.blobs.Open(ctx, img.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			util.LoggerFromContext(ctx).Warn("image blob missing",
				"owner_id", ownerID, "image_id", id, "path", img.StoragePath)
			return img, nil, fmt.Errorf("%w: %s", ErrBlobMissing, img.StoragePath)
		}
		return img, nil, fmt.Errorf("open blob: %w", err)
	}
	return img, rc, nil
}

// FindImages returns the owner's images whose label contains query, newest first.
func (a *App) FindImages(_ context.Context, ownerID int64, query string) ([]domain.Image, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	images, err := a.store.ListImagesByOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return search.ByLabel(images, query), nil
}

func normalizeLabel(label string) *string {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil
	}
	return &label
}
