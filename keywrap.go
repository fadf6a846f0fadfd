package dirseal

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"

	"github.com/absfs/absfs"
)

// Wrap seals a short secret under the recipient's RSA public key using
// OAEP with SHA-256. A secret larger than the scheme's capacity for the
// key size yields ErrSecretTooLarge.
func Wrap(secret []byte, pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, NewConfigError("PublicKey", "public key cannot be nil", nil)
	}
	if len(secret) > oaepCapacity(pub) {
		return nil, ErrSecretTooLarge
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, secret, nil)
	if err != nil {
		return nil, NewCryptoError("wrap", "", err)
	}
	return ciphertext, nil
}

// Unwrap opens a wrapped secret with the matching RSA private key. Any
// decryption or padding failure is reported as the opaque
// ErrUnwrapFailure; no padding-oracle detail leaks through.
func Unwrap(ciphertext []byte, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, NewConfigError("PrivateKey", "private key cannot be nil", nil)
	}

	secret, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, ErrUnwrapFailure
	}
	return secret, nil
}

// oaepCapacity returns the maximum secret size OAEP with SHA-256 can seal
// under the given key.
func oaepCapacity(pub *rsa.PublicKey) int {
	return pub.Size() - 2*sha256.Size - 2
}

// LoadPublicKey reads a PEM-encoded RSA public key from the filesystem.
// Both PKIX ("PUBLIC KEY") and PKCS#1 ("RSA PUBLIC KEY") encodings are
// accepted. A missing or malformed key file yields a ConfigError.
func LoadPublicKey(fs absfs.FileSystem, path string) (*rsa.PublicKey, error) {
	data, err := readKeyFile(fs, path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, NewConfigError("PublicKeyPath",
			fmt.Sprintf("no PEM block found in %s", path), nil)
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, NewConfigError("PublicKeyPath", "malformed PKCS#1 public key", err)
		}
		return pub, nil
	default:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, NewConfigError("PublicKeyPath", "malformed public key", err)
		}
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, NewConfigError("PublicKeyPath",
				fmt.Sprintf("not an RSA public key: %T", key), nil)
		}
		return pub, nil
	}
}

// LoadPrivateKey reads a PEM-encoded RSA private key from the filesystem.
// Both PKCS#1 ("RSA PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") encodings
// are accepted.
func LoadPrivateKey(fs absfs.FileSystem, path string) (*rsa.PrivateKey, error) {
	data, err := readKeyFile(fs, path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, NewConfigError("PrivateKeyPath",
			fmt.Sprintf("no PEM block found in %s", path), nil)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, NewConfigError("PrivateKeyPath", "malformed PKCS#1 private key", err)
		}
		return priv, nil
	default:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, NewConfigError("PrivateKeyPath", "malformed private key", err)
		}
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, NewConfigError("PrivateKeyPath",
				fmt.Sprintf("not an RSA private key: %T", key), nil)
		}
		return priv, nil
	}
}

func readKeyFile(fs absfs.FileSystem, path string) ([]byte, error) {
	if fs == nil {
		return nil, ErrNilFileSystem
	}
	if path == "" {
		return nil, NewConfigError("KeyPath", "key file path cannot be empty", nil)
	}

	file, err := fs.Open(path)
	if err != nil {
		return nil, NewConfigError("KeyPath",
			fmt.Sprintf("key file not readable: %s", path), err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, NewConfigError("KeyPath",
			fmt.Sprintf("failed to read key file: %s", path), err)
	}
	if len(data) == 0 {
		return nil, NewConfigError("KeyPath",
			fmt.Sprintf("key file is empty: %s", path), errors.New("empty file"))
	}
	return data, nil
}
