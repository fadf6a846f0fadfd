package dirseal

import (
	"errors"
	"regexp"
	"testing"
)

var pseudonymPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestPathObfuscator_PseudonymFormat(t *testing.T) {
	o := NewPathObfuscator(NewPathMapping())

	paths := []string{
		"a.txt",
		"sub/b.bin",
		"deeply/nested/path/file.tar.gz",
		"文件名.txt",
		"name with spaces.doc",
	}

	for _, p := range paths {
		pseudonym, err := o.Obfuscate(p)
		if err != nil {
			t.Fatalf("Obfuscate(%q) failed: %v", p, err)
		}
		if !pseudonymPattern.MatchString(pseudonym) {
			t.Errorf("Obfuscate(%q) = %q, not a 64-char lowercase hex digest", p, pseudonym)
		}
	}
}

// The same path obfuscated twice must yield two different pseudonyms, and
// both must resolve back to the path through the mapping.
func TestPathObfuscator_FreshSaltPerCall(t *testing.T) {
	mapping := NewPathMapping()
	o := NewPathObfuscator(mapping)

	first, err := o.Obfuscate("a.txt")
	if err != nil {
		t.Fatalf("first Obfuscate failed: %v", err)
	}
	second, err := o.Obfuscate("a.txt")
	if err != nil {
		t.Fatalf("second Obfuscate failed: %v", err)
	}

	if first == second {
		t.Fatal("identical pseudonyms for repeated path")
	}
	for _, pseudonym := range []string{first, second} {
		realPath, ok := mapping.RealPath(pseudonym)
		if !ok {
			t.Fatalf("pseudonym %s not recorded", pseudonym)
		}
		if realPath != "a.txt" {
			t.Errorf("pseudonym %s resolves to %q, want %q", pseudonym, realPath, "a.txt")
		}
	}
	if mapping.Len() != 2 {
		t.Errorf("mapping has %d entries, want 2", mapping.Len())
	}
}

func TestPathObfuscator_EmptyPath(t *testing.T) {
	o := NewPathObfuscator(NewPathMapping())

	if _, err := o.Obfuscate(""); !errors.Is(err, ErrEmptyPath) {
		t.Errorf("got %v, want ErrEmptyPath", err)
	}
}

func TestPathMapping_ExportImport(t *testing.T) {
	mapping := NewPathMapping()
	o := NewPathObfuscator(mapping)

	paths := []string{"a.txt", "sub/b.bin", "sub/deeper/c", "файл.dat"}
	for _, p := range paths {
		if _, err := o.Obfuscate(p); err != nil {
			t.Fatalf("Obfuscate(%q) failed: %v", p, err)
		}
	}

	data, err := mapping.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// The encoding is deterministic for a given mapping.
	again, err := mapping.Export()
	if err != nil {
		t.Fatalf("second Export failed: %v", err)
	}
	if string(data) != string(again) {
		t.Error("Export is not deterministic")
	}

	restored := NewPathMapping()
	if err := restored.Import(data); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if restored.Len() != mapping.Len() {
		t.Fatalf("restored mapping has %d entries, want %d", restored.Len(), mapping.Len())
	}

	err = mapping.Each(func(pseudonym, realPath string) error {
		got, ok := restored.RealPath(pseudonym)
		if !ok {
			t.Errorf("pseudonym %s missing after import", pseudonym)
		} else if got != realPath {
			t.Errorf("pseudonym %s: got %q, want %q", pseudonym, got, realPath)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
}

func TestPathMapping_ImportGarbage(t *testing.T) {
	mapping := NewPathMapping()
	if err := mapping.Import([]byte("not json")); err == nil {
		t.Error("Import accepted invalid input")
	}
}

// A tampered mapping must not be able to direct a restored file outside
// the destination root.
func TestPathMapping_ImportRejectsUnsafePaths(t *testing.T) {
	pseudonym := "aa1f2e3d4c5b6a798817263544536271aa1f2e3d4c5b6a798817263544536271"

	bad := []string{
		"../evil",
		"..",
		"/etc/passwd",
		"a/../../evil",
		"sub/../a.txt",
		".",
		"",
	}
	for _, realPath := range bad {
		mapping := NewPathMapping()
		data := []byte(`{"` + pseudonym + `": "` + realPath + `"}`)
		if err := mapping.Import(data); err == nil {
			t.Errorf("Import accepted unsafe path %q", realPath)
		}
	}

	good := []string{"a.txt", "sub/b.bin", "..dots.txt", "sub/..more"}
	for _, realPath := range good {
		mapping := NewPathMapping()
		data := []byte(`{"` + pseudonym + `": "` + realPath + `"}`)
		if err := mapping.Import(data); err != nil {
			t.Errorf("Import rejected safe path %q: %v", realPath, err)
		}
	}
}

// Every processed path appears exactly once in the exported mapping.
func TestPathMapping_Completeness(t *testing.T) {
	mapping := NewPathMapping()
	o := NewPathObfuscator(mapping)

	paths := []string{"one", "two", "three/four", "five.bin"}
	for _, p := range paths {
		if _, err := o.Obfuscate(p); err != nil {
			t.Fatalf("Obfuscate(%q) failed: %v", p, err)
		}
	}

	if mapping.Len() != len(paths) {
		t.Fatalf("mapping has %d entries, want %d", mapping.Len(), len(paths))
	}

	seen := make(map[string]int)
	err := mapping.Each(func(_, realPath string) error {
		seen[realPath]++
		return nil
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}
	for _, p := range paths {
		if seen[p] != 1 {
			t.Errorf("path %q appears %d times, want 1", p, seen[p])
		}
	}
}
