package cerr

import (
	"errors"
	"fmt"

	"github.com/kazz187/taskdesk/pkg/storage"
)

type StorageOp string

const (
	StorageRead   StorageOp = "read"
	StorageWrite  StorageOp = "write"
	StorageDelete StorageOp = "delete"
	StorageList   StorageOp = "list"
)

// WrapStorage turns a storage failure into a coded error. A missing object
// is NotFound with a client safe message; anything else is Internal and keeps
// the operation and target only in the wrapped chain.
func WrapStorage(op StorageOp, target string, err error) error {
	if err == nil {
		return nil
	}
	if op != StorageWrite && errors.Is(err, storage.ErrNotFound) {
		return NewError(NotFound, target+" not found", err)
	}
	return NewError(Internal, "server error", fmt.Errorf("failed to %s %s: %w", op, target, err))
}
