// Package storage defines the blob storage collaborator contract. The fiscal
// core stores certificate containers and generated invoice renditions through
// it; the actual backend (S3, GCS, disk) belongs to the surrounding
// application.
package storage

import "context"

// BlobStore is interface-driven to keep the domain logic testable and to
// allow swapping in-memory, file-based, or external persistence without
// rewiring business code.
type BlobStore interface {
	// Store persists the bytes and returns an opaque file id.
	Store(ctx context.Context, data []byte, contentType, name string) (string, error)
	// Fetch returns the bytes previously stored under fileID.
	Fetch(ctx context.Context, fileID string) ([]byte, error)
}
