package adapt

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// DirEntry is similar to the fs.DirEntry interface provided by Go. It's used
// by adapt to allow implementations like NewMemoryAccessor to provide a
// minimal directory entry object.
type DirEntry interface {
	IsDir() bool
	Name() string
}

// ResourceAccessor resolves a changelog reference and every file it references
// into byte streams. Names are always slash separated and relative to the root
// of the accessor.
type ResourceAccessor interface {
	ReadDir(name string) ([]DirEntry, error)
	Open(name string) (io.ReadCloser, error)
}

type filesystemAccessor struct {
	baseDir string
}

// NewFilesystemAccessor provides a ResourceAccessor reading from the local
// filesystem relative to baseDir. An empty baseDir resolves relative to the
// working directory of the process.
func NewFilesystemAccessor(baseDir string) ResourceAccessor {
	return &filesystemAccessor{baseDir: baseDir}
}

func (a *filesystemAccessor) resolve(name string) string {
	return filepath.Join(a.baseDir, filepath.FromSlash(name))
}

func (a *filesystemAccessor) ReadDir(name string) ([]DirEntry, error) {
	entries, err := os.ReadDir(a.resolve(name))
	wrapped := make([]DirEntry, len(entries))
	for i, e := range entries {
		wrapped[i] = DirEntry(e)
	}
	return wrapped, err
}

func (a *filesystemAccessor) Open(name string) (io.ReadCloser, error) {
	return os.Open(a.resolve(name))
}

type fsAccessor struct {
	fsys fs.FS
}

// NewFSAccessor provides a ResourceAccessor for any fs.FS, for example the
// migrations of an application embedded with embed.FS.
func NewFSAccessor(fsys fs.FS) ResourceAccessor {
	return &fsAccessor{fsys: fsys}
}

func (a *fsAccessor) ReadDir(name string) ([]DirEntry, error) {
	entries, err := fs.ReadDir(a.fsys, cleanFSName(name))
	wrapped := make([]DirEntry, len(entries))
	for i, e := range entries {
		wrapped[i] = DirEntry(e)
	}
	return wrapped, err
}

func (a *fsAccessor) Open(name string) (io.ReadCloser, error) {
	return a.fsys.Open(cleanFSName(name))
}

// cleanFSName converts a name into the rooted, unprefixed form fs.FS expects
func cleanFSName(name string) string {
	name = path.Clean("/" + name)
	if name == "/" {
		return "."
	}
	return strings.TrimPrefix(name, "/")
}

type memoryAccessor struct {
	fs map[string]string
}

type memoryEntry struct {
	name  string
	isDir bool
}

func (e *memoryEntry) IsDir() bool  { return e.isDir }
func (e *memoryEntry) Name() string { return e.name }

// NewMemoryAccessor provides a ResourceAccessor for an in-memory filesystem
// represented by a Path->FileContent map. Directories are implied by the
// slash separated paths.
func NewMemoryAccessor(files map[string]string) ResourceAccessor {
	cleaned := make(map[string]string, len(files))
	for name, content := range files {
		cleaned[cleanFSName(name)] = content
	}
	return &memoryAccessor{fs: cleaned}
}

func (a *memoryAccessor) ReadDir(name string) ([]DirEntry, error) {
	dir := cleanFSName(name)
	prefix := dir + "/"
	if dir == "." {
		prefix = ""
	}

	seen := make(map[string]bool)
	wrapped := make([]DirEntry, 0)
	for file := range a.fs {
		if !strings.HasPrefix(file, prefix) {
			continue
		}
		child, rest, nested := strings.Cut(strings.TrimPrefix(file, prefix), "/")
		if seen[child] {
			continue
		}
		seen[child] = true
		wrapped = append(wrapped, &memoryEntry{name: child, isDir: nested && rest != ""})
	}
	if len(wrapped) == 0 && dir != "." {
		return nil, fmt.Errorf("adapt.memoryAccessor: directory %q: %w", name, fs.ErrNotExist)
	}

	sort.Slice(wrapped, func(i, j int) bool {
		return wrapped[i].Name() < wrapped[j].Name()
	})
	return wrapped, nil
}

func (a *memoryAccessor) Open(name string) (io.ReadCloser, error) {
	content, ok := a.fs[cleanFSName(name)]
	if !ok {
		return nil, fmt.Errorf("adapt.memoryAccessor: file %q: %w", name, fs.ErrNotExist)
	}
	return io.NopCloser(strings.NewReader(content)), nil
}
