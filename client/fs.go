package client

import (
	"context"
	"errors"
	"strings"

	"github.com/luma/ninep/protocol"
)

// SplitPath turns a slash separated path into walk names. Empty elements
// are dropped so "/a//b/" is a, b.
func SplitPath(path string) []string {
	names := make([]string, 0)
	for _, name := range strings.Split(path, "/") {
		if name != "" {
			names = append(names, name)
		}
	}

	return names
}

// WalkPath walks from the root, splitting long paths over several Twalks.
func (c *Conn) WalkPath(ctx context.Context, path string) (*File, error) {
	names := SplitPath(path)

	f, err := c.root.Walk(ctx)
	if err != nil {
		return nil, err
	}

	for len(names) > 0 {
		n := len(names)
		if n > protocol.MaxWalkElements {
			n = protocol.MaxWalkElements
		}

		next, err := f.Walk(ctx, names[:n]...)
		f.Clunk(ctx)
		if err != nil {
			return nil, err
		}

		f = next
		names = names[n:]
	}

	return f, nil
}

// Open walks to path and opens it.
func (c *Conn) Open(ctx context.Context, path string, mode protocol.OpenMode) (*File, error) {
	f, err := c.WalkPath(ctx, path)
	if err != nil {
		return nil, err
	}

	if err := f.Open(ctx, mode); err != nil {
		f.Clunk(ctx)
		return nil, err
	}

	return f, nil
}

// Create makes path, its parent must exist.
func (c *Conn) Create(ctx context.Context, path string, perm protocol.FileMode, mode protocol.OpenMode) (*File, error) {
	names := SplitPath(path)
	if len(names) == 0 {
		return nil, &Error{Ename: "cannot create the root"}
	}

	dir, err := c.WalkPath(ctx, strings.Join(names[:len(names)-1], "/"))
	if err != nil {
		return nil, err
	}

	if err := dir.Create(ctx, names[len(names)-1], perm, mode); err != nil {
		dir.Clunk(ctx)
		return nil, err
	}

	return dir, nil
}

func (c *Conn) ReadFile(ctx context.Context, path string) ([]byte, error) {
	f, err := c.Open(ctx, path, protocol.OREAD)
	if err != nil {
		return nil, err
	}
	defer f.Clunk(ctx)

	return f.ReadAll(ctx)
}

// WriteFile replaces the contents of path, creating it if it does not
// exist.
func (c *Conn) WriteFile(ctx context.Context, path string, data []byte) error {
	f, err := c.Open(ctx, path, protocol.OWRITE|protocol.OTRUNC)
	if err != nil {
		if !errors.Is(err, ErrWalkIncomplete) && !isNotExist(err) {
			return err
		}

		if f, err = c.Create(ctx, path, 0644, protocol.OWRITE); err != nil {
			return err
		}
	}
	defer f.Clunk(ctx)

	_, err = f.WriteAt(ctx, data, 0)
	return err
}

func (c *Conn) ReadDir(ctx context.Context, path string) ([]protocol.Stat, error) {
	f, err := c.Open(ctx, path, protocol.OREAD)
	if err != nil {
		return nil, err
	}
	defer f.Clunk(ctx)

	return f.ReadDir(ctx)
}

func (c *Conn) Mkdir(ctx context.Context, path string, perm protocol.FileMode) error {
	f, err := c.Create(ctx, path, perm|protocol.DMDIR, protocol.OREAD)
	if err != nil {
		return err
	}

	return f.Clunk(ctx)
}

func (c *Conn) Stat(ctx context.Context, path string) (protocol.Stat, error) {
	f, err := c.WalkPath(ctx, path)
	if err != nil {
		return protocol.Stat{}, err
	}
	defer f.Clunk(ctx)

	return f.Stat(ctx)
}

func (c *Conn) Remove(ctx context.Context, path string) error {
	f, err := c.WalkPath(ctx, path)
	if err != nil {
		return err
	}

	return f.Remove(ctx)
}

func isNotExist(err error) bool {
	var serverErr *Error
	return errors.As(err, &serverErr) && strings.Contains(serverErr.Ename, "does not exist")
}
