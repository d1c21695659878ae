package app

import "errors"

var (
	// ErrStorageWriteFailed indicates the blob or its metadata could not be
	// persisted. No record exists for the failed upload.
	ErrStorageWriteFailed = errors.New("storage write failed")
	// ErrNotFound indicates no image with that id belongs to the owner.
	ErrNotFound = errors.New("image not found")
	// ErrBlobMissing indicates the record exists but its bytes are gone.
	ErrBlobMissing = errors.New("image blob missing")
	// ErrEmptyQuery indicates a blank search term.
	ErrEmptyQuery = errors.New("empty search query")
	// ErrInvalidUpload indicates the caller supplied an unusable upload.
	ErrInvalidUpload = errors.New("invalid upload")
)
