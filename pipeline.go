package dirseal

import (
	"bytes"
	"crypto/rsa"
	"fmt"
	"io"
	"os"
	"path"
	"sync"
	"sync/atomic"

	"github.com/absfs/absfs"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Pipeline sequences the path obfuscator, the file cipher and the key
// wrapper over an entire directory tree and persists the run artifacts.
type Pipeline struct {
	fs     absfs.FileSystem
	walker Walker
	cfg    *Config
	log    *logrus.Logger
}

// New creates a pipeline over the given filesystem.
func New(fs absfs.FileSystem, cfg *Config) (*Pipeline, error) {
	if fs == nil {
		return nil, ErrNilFileSystem
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.New()
	}

	return &Pipeline{
		fs:     fs,
		walker: NewFSWalker(fs),
		cfg:    cfg,
		log:    log,
	}, nil
}

// SetWalker replaces the traversal capability. The default walks the
// pipeline's own filesystem.
func (p *Pipeline) SetWalker(w Walker) {
	p.walker = w
}

// runContext carries the state shared by one run explicitly, instead of
// holding it as ambient package state: the run key, the cipher built from
// it, and the accumulating path mapping.
type runContext struct {
	cipher     *FileCipher
	obfuscator *PathObfuscator
	mapping    *PathMapping
	destRoot   string
	inPlace    bool
}

// EncryptTree encrypts every file under the source root. The run aborts
// on the first per-file failure, leaving already-written encrypted files
// in place; no original is ever deleted before its own encrypted copy has
// been written and renamed into place.
func (p *Pipeline) EncryptTree() (*RunSummary, error) {
	// The public key is the one piece of configuration the run cannot
	// recover from; fail before touching any file.
	pub, err := LoadPublicKey(p.fs, p.cfg.PublicKeyPath)
	if err != nil {
		return nil, err
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	defer ZeroKey(key)

	cipher, err := NewFileCipher(key)
	if err != nil {
		return nil, err
	}

	mapping := NewPathMapping()
	rc := &runContext{
		cipher:     cipher,
		obfuscator: NewPathObfuscator(mapping),
		mapping:    mapping,
		destRoot:   p.cfg.DestRoot(),
		inPlace:    p.cfg.InPlace(),
	}

	// Snapshot the tree before writing anything, so in-place runs never
	// discover their own output. A pre-existing artifact name at the top
	// level would be silently overwritten once the run persists its own
	// mapping and wrapped key; refuse the run instead of losing the file.
	var entries []FileEntry
	var total int64
	err = p.walker.Walk(p.cfg.Source, func(entry FileEntry) error {
		if rc.inPlace {
			if isTempFile(entry.RelPath) {
				return nil
			}
			if isRunArtifact(entry.RelPath) {
				return NewConfigError("Source",
					fmt.Sprintf("source already contains %s; encrypting in place would overwrite it", entry.RelPath), nil)
			}
		}
		entries = append(entries, entry)
		total += entry.Size
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !rc.inPlace {
		if err := p.fs.MkdirAll(rc.destRoot, 0755); err != nil {
			return nil, NewConfigError("Dest",
				fmt.Sprintf("cannot create destination root: %s", rc.destRoot), err)
		}
	}

	if p.cfg.Workers > 1 {
		err = p.encryptParallel(rc, entries)
	} else {
		for _, entry := range entries {
			if err = p.encryptFile(rc, entry); err != nil {
				break
			}
		}
	}
	if err != nil {
		return nil, err
	}

	if err := p.persistMapping(rc); err != nil {
		return nil, err
	}
	if err := p.persistWrappedKey(rc, key, pub); err != nil {
		return nil, err
	}

	summary := &RunSummary{Files: len(entries), Bytes: total}
	p.log.WithFields(logrus.Fields{
		"files": summary.Files,
		"bytes": summary.Bytes,
		"dest":  rc.destRoot,
	}).Info("directory tree encrypted")

	return summary, nil
}

// encryptFile encrypts one file to its pseudonymous destination name. In
// in-place mode the original is removed only after the encrypted copy has
// been renamed into place.
func (p *Pipeline) encryptFile(rc *runContext, entry FileEntry) error {
	pseudonym, err := rc.obfuscator.Obfuscate(entry.RelPath)
	if err != nil {
		return err
	}

	src, err := p.fs.Open(entry.Path)
	if err != nil {
		return NewIOError("open", entry.Path, err)
	}
	defer src.Close()

	err = p.writeAtomic(rc.destRoot, pseudonym, func(w io.Writer) error {
		if err := rc.cipher.Encrypt(w, src, uint64(entry.Size)); err != nil {
			return annotate(err, entry.RelPath)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if rc.inPlace {
		if err := p.fs.Remove(entry.Path); err != nil {
			return NewIOError("delete", entry.Path, err)
		}
	}

	p.log.WithFields(logrus.Fields{
		"path":      entry.RelPath,
		"pseudonym": pseudonym,
		"bytes":     entry.Size,
	}).Debug("file encrypted")

	return nil
}

// encryptParallel fans the per-file work out to a bounded worker pool.
// Every worker draws its own IVs through the shared cipher, the mapping
// is mutex-guarded, and deletion of an original stays gated on that
// file's own completed write. The first error stops the pool.
func (p *Pipeline) encryptParallel(rc *runContext, entries []FileEntry) error {
	workers := p.cfg.Workers
	if workers > len(entries) {
		workers = len(entries)
	}
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan FileEntry, len(entries))
	for _, entry := range entries {
		jobs <- entry
	}
	close(jobs)

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
		aborted  atomic.Bool
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range jobs {
				if aborted.Load() {
					continue
				}
				if err := p.encryptFile(rc, entry); err != nil {
					once.Do(func() { firstErr = err })
					aborted.Store(true)
				}
			}
		}()
	}
	wg.Wait()

	return firstErr
}

// persistMapping serializes the accumulated path mapping, encrypts it
// under the run key and writes it to its fixed destination name.
func (p *Pipeline) persistMapping(rc *runContext) error {
	data, err := rc.mapping.Export()
	if err != nil {
		return NewCryptoError("encrypt", MappingName, err)
	}

	return p.writeAtomic(rc.destRoot, MappingName, func(w io.Writer) error {
		if err := rc.cipher.Encrypt(w, bytes.NewReader(data), uint64(len(data))); err != nil {
			return annotate(err, MappingName)
		}
		return nil
	})
}

// persistWrappedKey seals the run key under the public key and writes the
// raw ciphertext to its fixed destination name.
func (p *Pipeline) persistWrappedKey(rc *runContext, key []byte, pub *rsa.PublicKey) error {
	wrapped, err := Wrap(key, pub)
	if err != nil {
		return err
	}

	return p.writeAtomic(rc.destRoot, WrappedKeyName, func(w io.Writer) error {
		if _, err := w.Write(wrapped); err != nil {
			return NewIOError("write", WrappedKeyName, err)
		}
		return nil
	})
}

// DecryptTree reverses a previous encryption run: it unwraps the run key
// with the private key, decrypts the path mapping, and restores every
// pseudonym file to its real relative path under the destination root.
func (p *Pipeline) DecryptTree() (*RunSummary, error) {
	priv, err := LoadPrivateKey(p.fs, p.cfg.PrivateKeyPath)
	if err != nil {
		return nil, err
	}

	wrapped, err := p.readFile(path.Join(p.cfg.Source, WrappedKeyName))
	if err != nil {
		return nil, err
	}
	key, err := Unwrap(wrapped, priv)
	if err != nil {
		return nil, err
	}
	defer ZeroKey(key)

	cipher, err := NewFileCipher(key)
	if err != nil {
		return nil, err
	}

	mapping, err := p.loadMapping(cipher)
	if err != nil {
		return nil, err
	}

	destRoot := p.cfg.DestRoot()
	inPlace := p.cfg.InPlace()
	if !inPlace {
		if err := p.fs.MkdirAll(destRoot, 0755); err != nil {
			return nil, NewConfigError("Dest",
				fmt.Sprintf("cannot create destination root: %s", destRoot), err)
		}
	}

	var total int64
	err = mapping.Each(func(pseudonym, realPath string) error {
		n, err := p.decryptFile(cipher, pseudonym, realPath, destRoot, inPlace)
		if err != nil {
			return err
		}
		total += n
		return nil
	})
	if err != nil {
		return nil, err
	}

	if inPlace {
		for _, name := range []string{MappingName, WrappedKeyName} {
			if err := p.fs.Remove(path.Join(p.cfg.Source, name)); err != nil {
				return nil, NewIOError("delete", name, err)
			}
		}
	}

	summary := &RunSummary{Files: mapping.Len(), Bytes: total}
	p.log.WithFields(logrus.Fields{
		"files": summary.Files,
		"bytes": summary.Bytes,
		"dest":  destRoot,
	}).Info("directory tree restored")

	return summary, nil
}

// loadMapping decrypts and parses the mapping artifact of a previous run.
func (p *Pipeline) loadMapping(cipher *FileCipher) (*PathMapping, error) {
	src, err := p.fs.Open(path.Join(p.cfg.Source, MappingName))
	if err != nil {
		return nil, NewIOError("open", MappingName, err)
	}
	defer src.Close()

	var buf bytes.Buffer
	if err := cipher.Decrypt(&buf, src); err != nil {
		return nil, annotate(err, MappingName)
	}

	mapping := NewPathMapping()
	if err := mapping.Import(buf.Bytes()); err != nil {
		return nil, NewCryptoError("decrypt", MappingName, err)
	}
	return mapping, nil
}

// decryptFile restores one pseudonym file to its real relative path and
// returns the number of cleartext bytes written.
func (p *Pipeline) decryptFile(cipher *FileCipher, pseudonym, realPath, destRoot string, inPlace bool) (int64, error) {
	srcPath := path.Join(p.cfg.Source, pseudonym)
	src, err := p.fs.Open(srcPath)
	if err != nil {
		return 0, NewIOError("open", pseudonym, err)
	}
	defer src.Close()

	if dir := path.Dir(path.Join(destRoot, realPath)); dir != "." {
		if err := p.fs.MkdirAll(dir, 0755); err != nil {
			return 0, NewIOError("mkdir", realPath, err)
		}
	}

	var written int64
	err = p.writeAtomic(destRoot, realPath, func(w io.Writer) error {
		cw := &countingWriter{w: w}
		if err := cipher.Decrypt(cw, src); err != nil {
			return annotate(err, realPath)
		}
		written = cw.n
		return nil
	})
	if err != nil {
		return 0, err
	}

	if inPlace {
		if err := p.fs.Remove(srcPath); err != nil {
			return 0, NewIOError("delete", pseudonym, err)
		}
	}

	p.log.WithFields(logrus.Fields{
		"path":      realPath,
		"pseudonym": pseudonym,
		"bytes":     written,
	}).Debug("file restored")

	return written, nil
}

// writeAtomic writes a destination file through a uniquely named
// temporary file in the same directory and renames it into place, so a
// name only ever appears in the destination once its contents are
// complete. The temporary file is removed on failure.
func (p *Pipeline) writeAtomic(destRoot, name string, write func(w io.Writer) error) error {
	tmpName := path.Join(destRoot, tmpPrefix+uuid.New().String())
	destPath := path.Join(destRoot, name)

	out, err := p.fs.OpenFile(tmpName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return NewIOError("create", destPath, err)
	}

	if err := write(out); err != nil {
		out.Close()
		p.fs.Remove(tmpName)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		p.fs.Remove(tmpName)
		return NewIOError("sync", destPath, err)
	}
	if err := out.Close(); err != nil {
		p.fs.Remove(tmpName)
		return NewIOError("close", destPath, err)
	}

	if err := p.fs.Rename(tmpName, destPath); err != nil {
		p.fs.Remove(tmpName)
		return NewIOError("rename", destPath, err)
	}
	return nil
}

// readFile reads a whole file from the pipeline's filesystem.
func (p *Pipeline) readFile(filePath string) ([]byte, error) {
	f, err := p.fs.Open(filePath)
	if err != nil {
		return nil, NewIOError("open", filePath, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, NewIOError("read", filePath, err)
	}
	return data, nil
}

// annotate attaches a file path to a cipher error that was produced
// without one. Sentinels pass through unchanged so callers can still
// match them with errors.Is.
func annotate(err error, filePath string) error {
	switch e := err.(type) {
	case *CryptoError:
		if e.Path == "" {
			e.Path = filePath
		}
	case *IOError:
		if e.Path == "" {
			e.Path = filePath
		}
	}
	return err
}

// countingWriter counts the bytes passed through to the wrapped writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
