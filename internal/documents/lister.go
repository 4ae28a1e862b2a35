package documents

import (
	"context"
	"errors"
	"io/fs"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryLister is an in-process object store used in development and tests.
type MemoryLister struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewMemoryLister() *MemoryLister {
	return &MemoryLister{objects: make(map[string]Object)}
}

func (l *MemoryLister) Put(key string, size int64, modified time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.objects[key] = Object{Key: key, Size: size, LastModified: modified}
}

func (l *MemoryLister) Delete(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.objects, key)
}

func (l *MemoryLister) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Object, 0, len(l.objects))
	for key, o := range l.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// FSLister lists files from a directory tree whose layout mirrors bucket keys.
type FSLister struct {
	fsys fs.FS
}

func NewFSLister(fsys fs.FS) *FSLister {
	return &FSLister{fsys: fsys}
}

func (l *FSLister) List(ctx context.Context, prefix string) ([]Object, error) {
	root := strings.TrimSuffix(prefix, "/")
	var out []Object
	err := fs.WalkDir(l.fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, Object{Key: p, Size: info.Size(), LastModified: info.ModTime()})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}
