package evidence

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Storage keeps transcoded screenshots. Put returns an opaque handle that is
// saved on the report and later passed back to Delete.
type Storage interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
	Delete(ctx context.Context, handle string) error
}

// ErrMissing is returned by Delete when the handle no longer exists.
var ErrMissing = errors.New("stored file missing")

type LocalStorage struct {
	dir string
}

func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload dir %s", dir)
	}
	return &LocalStorage{dir: dir}, nil
}

func (s *LocalStorage) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name != filepath.Base(name) {
		return "", errors.Errorf("invalid file name %q", name)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}

func (s *LocalStorage) Delete(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.owns(handle) {
		return errors.Errorf("handle %q is outside the upload dir", handle)
	}
	if err := os.Remove(handle); err != nil {
		if os.IsNotExist(err) {
			return ErrMissing
		}
		return errors.Wrapf(err, "remove %s", handle)
	}
	return nil
}

func (s *LocalStorage) owns(handle string) bool {
	rel, err := filepath.Rel(filepath.Clean(s.dir), filepath.Clean(handle))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !strings.ContainsRune(rel, filepath.Separator)
}

type DeleteResult struct {
	Handle  string
	Deleted bool
	Err     error
}

// DeleteAll removes each handle independently. A handle that is already
// gone counts as deleted.
func DeleteAll(ctx context.Context, storage Storage, handles []string) []DeleteResult {
	results := make([]DeleteResult, 0, len(handles))
	for _, handle := range handles {
		err := storage.Delete(ctx, handle)
		if errors.Is(err, ErrMissing) {
			err = nil
		}
		results = append(results, DeleteResult{Handle: handle, Deleted: err == nil, Err: err})
	}
	return results
}

// Failed returns the results that could not be deleted.
func Failed(results []DeleteResult) []DeleteResult {
	var failed []DeleteResult
	for _, result := range results {
		if !result.Deleted {
			failed = append(failed, result)
		}
	}
	return failed
}
