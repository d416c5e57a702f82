package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const UpdateBufferSize = 255

// InmemoryStore keeps a single JSON object in memory.
type InmemoryStore struct {
	mu       sync.RWMutex
	values   []byte
	ids      map[string]uint64
	nextID   uint64
	versions map[string]uint32
	modified map[string]time.Time

	chanMu      sync.Mutex
	updateChans []chan *Update

	// stop will be closed when Close() is called
	stop     chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

func NewInmemoryStore() *InmemoryStore {
	return &InmemoryStore{
		values:      []byte("{}"),
		ids:         make(map[string]uint64),
		nextID:      1,
		versions:    make(map[string]uint32),
		modified:    make(map[string]time.Time),
		stop:        make(chan struct{}),
		updateChans: make([]chan *Update, 0),
		now:         time.Now,
	}
}

func (i *InmemoryStore) Close() error {
	i.stopOnce.Do(func() {
		close(i.stop)

		i.chanMu.Lock()
		defer i.chanMu.Unlock()

		for _, updateChan := range i.updateChans {
			close(updateChan)
		}
		i.updateChans = nil
	})

	return nil
}

func (i *InmemoryStore) Get(ctx context.Context, path []string) (*Entry, error) {
	if err := validPath(path); err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	result, ok := i.lookup(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key(path), ErrNotExist)
	}

	return i.entry(path, result), nil
}

func (i *InmemoryStore) List(ctx context.Context, path []string) ([]*Entry, error) {
	if err := validPath(path); err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	result, ok := i.lookup(path)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key(path), ErrNotExist)
	}

	if !isDir(result) {
		return nil, fmt.Errorf("%s: %w", key(path), ErrNotDir)
	}

	entries := make([]*Entry, 0)
	array := result.IsArray()
	idx := 0
	result.ForEach(func(k, value gjson.Result) bool {
		// Array elements come with an empty key
		name := k.String()
		if array {
			name = strconv.Itoa(idx)
		}
		idx++

		child := append(append(make([]string, 0, len(path)+1), path...), name)
		entries = append(entries, i.entry(child, value))
		return true
	})

	return entries, nil
}

func (i *InmemoryStore) Set(ctx context.Context, path []string, value interface{}) error {
	return i.update(path, func(values []byte, p string) ([]byte, error) {
		return sjson.SetBytes(values, p, value)
	})
}

func (i *InmemoryStore) Mkdir(ctx context.Context, path []string) error {
	return i.update(path, func(values []byte, p string) ([]byte, error) {
		if gjson.GetBytes(values, p).Exists() {
			return nil, fmt.Errorf("%s: %w", key(path), ErrExist)
		}

		return sjson.SetRawBytes(values, p, []byte("{}"))
	})
}

func (i *InmemoryStore) Rename(ctx context.Context, path []string, name string) error {
	if err := validName(name); err != nil {
		return err
	}

	if len(path) == 0 {
		return fmt.Errorf("cannot rename the root: %w", ErrBadName)
	}

	target := append(append([]string{}, path[:len(path)-1]...), name)

	var raw []byte
	err := i.update(target, func(values []byte, p string) ([]byte, error) {
		source, ok := i.lookupIn(values, path)
		if !ok {
			return nil, fmt.Errorf("%s: %w", key(path), ErrNotExist)
		}

		if gjson.GetBytes(values, p).Exists() {
			return nil, fmt.Errorf("%s: %w", key(target), ErrExist)
		}

		raw = []byte(source.Raw)

		values, err := sjson.SetRawBytes(values, p, raw)
		if err != nil {
			return nil, err
		}

		return sjson.DeleteBytes(values, jsonPath(path))
	})
	if err != nil {
		return err
	}

	i.notify(&Update{Path: path})
	return nil
}

func (i *InmemoryStore) Delete(ctx context.Context, path []string) error {
	err := i.update(path, func(values []byte, p string) ([]byte, error) {
		result, ok := i.lookupIn(values, path)
		if !ok {
			return nil, fmt.Errorf("%s: %w", key(path), ErrNotExist)
		}

		if isDir(result) && hasChildren(result) {
			return nil, fmt.Errorf("%s: %w", key(path), ErrNotEmpty)
		}

		return sjson.DeleteBytes(values, p)
	})
	if err != nil {
		return err
	}

	i.mu.Lock()
	delete(i.ids, key(path))
	i.mu.Unlock()

	return nil
}

func (i *InmemoryStore) ListenToUpdates() <-chan *Update {
	i.chanMu.Lock()
	defer i.chanMu.Unlock()

	updateChan := make(chan *Update, UpdateBufferSize)
	if !i.isRunning() {
		close(updateChan)
		return updateChan
	}

	i.updateChans = append(i.updateChans, updateChan)

	return updateChan
}

func (i *InmemoryStore) Restore(values []byte) error {
	if !gjson.ValidBytes(values) || !gjson.ParseBytes(values).IsObject() {
		return ErrInvalidDocument
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	i.values = append([]byte{}, values...)
	return nil
}

func (i *InmemoryStore) Backup() ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.values) == 0 {
		return []byte("{}"), nil
	}

	return append([]byte{}, i.values...), nil
}

// update applies fn to the document under the write lock. fn receives the
// escaped gjson path of path. The parent of path must be a directory.
func (i *InmemoryStore) update(path []string, fn func(values []byte, p string) ([]byte, error)) error {
	if err := validPath(path); err != nil {
		return err
	}

	if len(path) == 0 {
		return fmt.Errorf("cannot replace the root: %w", ErrBadName)
	}

	i.mu.Lock()

	parent, ok := i.lookupIn(i.values, path[:len(path)-1])
	if !ok {
		i.mu.Unlock()
		return fmt.Errorf("%s: %w", key(path[:len(path)-1]), ErrNotExist)
	}

	if !isDir(parent) {
		i.mu.Unlock()
		return fmt.Errorf("%s: %w", key(path[:len(path)-1]), ErrNotDir)
	}

	values, err := fn(i.values, jsonPath(path))
	if err != nil {
		i.mu.Unlock()
		return err
	}

	i.values = values

	now := i.now()
	for n := len(path); n >= 0; n-- {
		k := key(path[:n])
		i.versions[k]++
		i.modified[k] = now
	}

	var raw []byte
	if result, ok := i.lookupIn(values, path); ok {
		raw = []byte(result.Raw)
	}

	i.mu.Unlock()

	i.notify(&Update{Path: path, Value: raw})
	return nil
}

func (i *InmemoryStore) notify(update *Update) {
	i.chanMu.Lock()
	defer i.chanMu.Unlock()

	for _, updateChan := range i.updateChans {
		select {
		case updateChan <- update:
		default:
			// Listener is not keeping up, drop the update
		}
	}
}

func (i *InmemoryStore) lookup(path []string) (gjson.Result, bool) {
	return i.lookupIn(i.values, path)
}

func (i *InmemoryStore) lookupIn(values []byte, path []string) (gjson.Result, bool) {
	if len(path) == 0 {
		return gjson.ParseBytes(values), true
	}

	result := gjson.GetBytes(values, jsonPath(path))
	return result, result.Exists()
}

// entry must be called with mu held.
func (i *InmemoryStore) entry(path []string, result gjson.Result) *Entry {
	k := key(path)

	id, ok := i.ids[k]
	if !ok {
		id = i.nextID
		i.nextID++
		i.ids[k] = id
	}

	e := &Entry{
		Path:     path,
		ID:       id,
		Dir:      isDir(result),
		Version:  i.versions[k],
		Modified: i.modified[k],
	}

	if !e.Dir {
		if result.Type == gjson.String {
			e.Content = []byte(result.String())
			e.Text = true
		} else {
			e.Content = []byte(result.Raw)
		}
	}

	return e
}

// isRunning returns true if Close has not been called
func (i *InmemoryStore) isRunning() bool {
	select {
	case <-i.stop:
		return false

	default:
		return true
	}
}

func isDir(result gjson.Result) bool {
	return result.IsObject() || result.IsArray()
}

func hasChildren(result gjson.Result) bool {
	found := false
	result.ForEach(func(_, _ gjson.Result) bool {
		found = true
		return false
	})

	return found
}

func key(path []string) string {
	return "/" + strings.Join(path, "/")
}

// jsonPath escapes path into gjson/sjson path syntax.
func jsonPath(path []string) string {
	var b strings.Builder
	for n, elem := range path {
		if n > 0 {
			b.WriteByte('.')
		}

		for j := 0; j < len(elem); j++ {
			if elem[j] == '.' {
				b.WriteByte('\\')
			}
			b.WriteByte(elem[j])
		}
	}

	return b.String()
}

func validPath(path []string) error {
	for _, elem := range path {
		if err := validName(elem); err != nil {
			return err
		}
	}

	return nil
}

// validName rejects names that cannot be expressed as a single gjson path
// component.
func validName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%q: %w", name, ErrBadName)
	}

	if strings.ContainsAny(name, "/\\*?|#@!=<>%\x00") {
		return fmt.Errorf("%q: %w", name, ErrBadName)
	}

	return nil
}

var _ Store = (*InmemoryStore)(nil)
