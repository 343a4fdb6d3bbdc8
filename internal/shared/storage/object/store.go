package object

import (
	"context"
	"errors"
	"io"
	"path"

	"paper-backend/internal/shared/util"
)

var (
	// ErrNotFound is returned by Open when the key has no stored object.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is returned for keys that escape the store root.
	ErrInvalidKey = errors.New("invalid storage key")
)

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error)
	Open(ctx context.Context, storageKey string) (io.ReadCloser, error)
	Delete(ctx context.Context, storageKey string) error
	Provider() string
}

// UserKey places storageName under the hashed namespace of userID.
func UserKey(userID, storageName string) string {
	return path.Join(util.HashUserKey(userID), storageName)
}
