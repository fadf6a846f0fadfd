package dirseal

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/absfs/absfs"
)

// FileEntry describes one regular file discovered under a source root.
type FileEntry struct {
	// Path is the file's location within the filesystem.
	Path string

	// RelPath is the slash-separated path relative to the walked root.
	RelPath string

	// Size is the file size in bytes at discovery time.
	Size int64
}

// Walker yields the regular files under a root. It is the traversal
// capability consumed by the pipeline, so the file-processing logic stays
// independent of the storage backend and testable with in-memory
// fixtures.
type Walker interface {
	// Walk calls fn once per regular file under root. Returning an error
	// from fn stops the walk. Traversal order is not significant but is
	// deterministic for a given tree.
	Walk(root string, fn func(entry FileEntry) error) error
}

// fsWalker walks an absfs.FileSystem recursively.
type fsWalker struct {
	fs absfs.FileSystem
}

// NewFSWalker creates a Walker over the given filesystem.
func NewFSWalker(fs absfs.FileSystem) Walker {
	return &fsWalker{fs: fs}
}

func (w *fsWalker) Walk(root string, fn func(entry FileEntry) error) error {
	if w.fs == nil {
		return ErrNilFileSystem
	}
	info, err := w.fs.Stat(root)
	if err != nil {
		return NewIOError("stat", root, err)
	}
	if !info.IsDir() {
		return NewIOError("walk", root, fmt.Errorf("not a directory"))
	}
	return w.walkDir(root, "", fn)
}

func (w *fsWalker) walkDir(dir, rel string, fn func(entry FileEntry) error) error {
	f, err := w.fs.Open(dir)
	if err != nil {
		return NewIOError("open", dir, err)
	}
	infos, err := f.Readdir(-1)
	f.Close()
	if err != nil {
		return NewIOError("read", dir, err)
	}

	// Deterministic traversal order regardless of backend.
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	for _, info := range infos {
		name := info.Name()
		if name == "." || name == ".." {
			continue
		}

		childPath := path.Join(dir, name)
		childRel := name
		if rel != "" {
			childRel = rel + "/" + name
		}

		if info.IsDir() {
			if err := w.walkDir(childPath, childRel, fn); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		err := fn(FileEntry{
			Path:    childPath,
			RelPath: childRel,
			Size:    info.Size(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// isRunArtifact reports whether a top-level relative path names one of
// the fixed outputs of an encryption run. An in-place run refuses to
// start over a tree holding one: skipping it would drop a user file of
// the same name, and encrypting it would feed a previous run's output
// back into the cipher.
func isRunArtifact(relPath string) bool {
	return relPath == MappingName || relPath == WrappedKeyName
}

// isTempFile reports whether a top-level relative path names a
// temporary file, left behind by an interrupted run. The random suffix
// makes a collision with a real user file negligible, so in-place runs
// skip these.
func isTempFile(relPath string) bool {
	return strings.HasPrefix(relPath, tmpPrefix)
}
