package storage

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotExist        = errors.New("file does not exist")
	ErrExist           = errors.New("file already exists")
	ErrNotDir          = errors.New("not a directory")
	ErrIsDir           = errors.New("is a directory")
	ErrNotEmpty        = errors.New("directory is not empty")
	ErrBadName         = errors.New("bad file name")
	ErrInvalidDocument = errors.New("document must be a JSON object")
)

// Entry describes one node of the document. Objects and arrays are
// directories, every other value is a file.
type Entry struct {
	Path    []string
	ID      uint64
	Dir     bool
	Content []byte
	// Text is set when Content holds a decoded JSON string rather than raw
	// JSON.
	Text     bool
	Version  uint32
	Modified time.Time
}

// Name is the last path element, or "/" for the root.
func (e *Entry) Name() string {
	if len(e.Path) == 0 {
		return "/"
	}

	return e.Path[len(e.Path)-1]
}

// Update is sent to listeners whenever a path changes. Value is the new raw
// JSON, or nil if the path was removed.
type Update struct {
	Path  []string
	Value []byte
}

func (u *Update) Key() string {
	return strings.Join(u.Path, "/")
}

type Store interface {
	Get(ctx context.Context, path []string) (*Entry, error)
	List(ctx context.Context, path []string) ([]*Entry, error)

	// Set stores value (anything encoding/json accepts) at path. The parent
	// must already be a directory.
	Set(ctx context.Context, path []string, value interface{}) error

	// Mkdir creates an empty object at path.
	Mkdir(ctx context.Context, path []string) error

	Rename(ctx context.Context, path []string, name string) error
	Delete(ctx context.Context, path []string) error

	Restore(values []byte) error
	Backup() ([]byte, error)

	ListenToUpdates() <-chan *Update

	Close() error
}
