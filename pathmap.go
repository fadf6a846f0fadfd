package dirseal

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"golang.org/x/crypto/sha3"
)

// saltSize is the number of random bytes mixed into every pseudonym.
const saltSize = 16

// PathMapping stores the pseudonym-to-path entries accumulated during one
// run. It is safe for concurrent use.
type PathMapping struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewPathMapping creates an empty mapping.
func NewPathMapping() *PathMapping {
	return &PathMapping{
		entries: make(map[string]string),
	}
}

// Add records a pseudonym for a real relative path.
func (m *PathMapping) Add(pseudonym, realPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[pseudonym] = realPath
}

// RealPath returns the real relative path recorded for a pseudonym.
func (m *PathMapping) RealPath(pseudonym string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	realPath, ok := m.entries[pseudonym]
	return realPath, ok
}

// Len returns the number of recorded entries.
func (m *PathMapping) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// Each calls fn for every (pseudonym, realPath) entry. Iteration stops at
// the first error.
func (m *PathMapping) Each(fn func(pseudonym, realPath string) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for pseudonym, realPath := range m.entries {
		if err := fn(pseudonym, realPath); err != nil {
			return err
		}
	}
	return nil
}

// Export produces the stable byte encoding of the full mapping: a JSON
// object from pseudonym to real relative path. JSON keys are emitted in
// sorted order, so the encoding is deterministic for a given mapping.
func (m *PathMapping) Export() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.Marshal(m.entries)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mapping: %w", err)
	}
	return data, nil
}

// Import replaces the mapping contents with a previously exported
// encoding. Entries whose real path is absolute, not clean, or escapes
// the directory it will be joined to are rejected, so a tampered
// mapping cannot direct restored files outside the destination root.
func (m *PathMapping) Import(data []byte) error {
	entries := make(map[string]string)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to decode mapping: %w", err)
	}
	for _, realPath := range entries {
		if !isSafeRelPath(realPath) {
			return fmt.Errorf("unsafe path in mapping: %q", realPath)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = entries
	return nil
}

// isSafeRelPath reports whether p is a clean relative path that stays
// below the directory it is joined to.
func isSafeRelPath(p string) bool {
	if p == "" || p == "." || strings.HasPrefix(p, "/") {
		return false
	}
	if p != path.Clean(p) {
		return false
	}
	return p != ".." && !strings.HasPrefix(p, "../")
}

// PathObfuscator turns real relative paths into unlinkable pseudonyms and
// records the reverse mapping for the run.
type PathObfuscator struct {
	mapping *PathMapping
}

// NewPathObfuscator creates an obfuscator recording into the given
// mapping.
func NewPathObfuscator(mapping *PathMapping) *PathObfuscator {
	return &PathObfuscator{mapping: mapping}
}

// Obfuscate derives a pseudonym for a real relative path and records the
// (pseudonym, path) entry as a side effect. The pseudonym is the
// lowercase hex SHA3-256 digest of a fresh 16-byte random salt followed
// by the UTF-8 path bytes. The fresh salt per call keeps pseudonyms from
// leaking path structure and makes identical paths from different runs,
// or repeated calls within one run, collide only with negligible
// probability.
func (o *PathObfuscator) Obfuscate(realPath string) (string, error) {
	if realPath == "" {
		return "", ErrEmptyPath
	}

	salted := make([]byte, saltSize+len(realPath))
	if _, err := io.ReadFull(rand.Reader, salted[:saltSize]); err != nil {
		return "", NewCryptoError("encrypt", realPath, fmt.Errorf("failed to generate salt: %w", err))
	}
	copy(salted[saltSize:], realPath)

	digest := sha3.Sum256(salted)
	pseudonym := hex.EncodeToString(digest[:])

	o.mapping.Add(pseudonym, realPath)
	return pseudonym, nil
}

// Mapping returns the mapping the obfuscator records into.
func (o *PathObfuscator) Mapping() *PathMapping {
	return o.mapping
}
