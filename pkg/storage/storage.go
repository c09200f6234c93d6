// Package storage provides content-addressed blob storage with local
// filesystem and Google Cloud Storage implementations.
//
// Keys are derived from content hashes, so writing the same key twice is
// always a no-op: Put never overwrites an existing object.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
)

var ErrNotExist = errors.New("blob does not exist")

// BlobStore defines the blob operations used by the pipeline.
type BlobStore interface {
	// Put writes data at key unless an object already exists there.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Get reads the object at key. Missing objects return ErrNotExist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// StorageType identifies the storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeGCS   StorageType = "gcs"
)

// Config holds storage configuration
type Config struct {
	Type      StorageType
	LocalPath string
	GCSBucket string
}

// New creates a BlobStore for the configured backend.
func New(ctx context.Context, cfg Config) (BlobStore, error) {
	switch cfg.Type {
	case StorageTypeGCS:
		return NewGCSStore(ctx, cfg.GCSBucket)
	case StorageTypeLocal, "":
		return NewLocalStore(cfg.LocalPath)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RawKey is where the original bytes of a document live.
func RawKey(hash string) string {
	return path.Join("raw", shard(hash), hash)
}

// ArtifactKey places a processing artifact under its document's hash.
func ArtifactKey(documentHash, name string) string {
	return path.Join("artifacts", documentHash, name)
}

func shard(hash string) string {
	if len(hash) < 2 {
		return "00"
	}
	return hash[:2]
}
