package dirseal

import (
	"github.com/sirupsen/logrus"
)

const (
	// KeySize is the size of the symmetric key generated for a run
	// (AES-256).
	KeySize = 32

	// MappingName is the fixed name of the encrypted pseudonym-to-path
	// mapping artifact in the destination root.
	MappingName = "filenames.map"

	// WrappedKeyName is the fixed name of the wrapped symmetric key
	// artifact in the destination root.
	WrappedKeyName = "key.wrapped"

	// tmpPrefix marks in-progress destination writes. Files carrying it
	// are never treated as run input and are cleaned up on failure.
	tmpPrefix = ".tmp-"
)

// Config describes one encryption or decryption run.
type Config struct {
	// Source is the root of the tree to process.
	Source string

	// Dest is the root the output is written to. Empty means Source: the
	// run operates in place and deletes each original after its encrypted
	// copy has been written.
	Dest string

	// PublicKeyPath is the PEM-encoded RSA public key used to wrap the
	// run key. Required for encryption runs.
	PublicKeyPath string

	// PrivateKeyPath is the PEM-encoded RSA private key used to unwrap
	// the run key. Required for decryption runs.
	PrivateKeyPath string

	// Workers is the number of files processed concurrently. Values
	// below 2 select the sequential path.
	Workers int

	// Logger receives run progress. Nil means a default logrus logger.
	Logger *logrus.Logger
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.Source == "" {
		return NewConfigError("Source", "source root cannot be empty", nil)
	}
	if c.Workers < 0 {
		return NewConfigError("Workers", "worker count cannot be negative", nil)
	}
	if c.Workers > 1024 {
		return NewConfigError("Workers", "worker count must not exceed 1024", nil)
	}
	return nil
}

// InPlace reports whether the run writes into its own source root.
func (c *Config) InPlace() bool {
	return c.Dest == "" || c.Dest == c.Source
}

// DestRoot returns the effective destination root.
func (c *Config) DestRoot() string {
	if c.Dest == "" {
		return c.Source
	}
	return c.Dest
}

// RunSummary reports what a completed run did.
type RunSummary struct {
	Files int   // Number of files processed
	Bytes int64 // Total cleartext bytes processed
}
