package dirseal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// cipherChunkSize is the read granularity for streaming encryption.
// It must be a multiple of the AES block size.
const cipherChunkSize = 64 * 1024

// FileCipher encrypts and decrypts single byte streams under a symmetric
// key using AES-CBC with the frame format described in the package
// documentation. A FileCipher is safe for sequential reuse across files;
// every Encrypt call draws a fresh IV.
type FileCipher struct {
	block cipher.Block
}

// NewFileCipher creates a cipher for the given key. The key must be 16,
// 24 or 32 bytes (AES-128/192/256); anything else yields
// ErrInvalidKeyLength.
func NewFileCipher(key []byte) (*FileCipher, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, ErrInvalidKeyLength
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, NewCryptoError("encrypt", "", err)
	}

	return &FileCipher{block: block}, nil
}

// Encrypt reads exactly length cleartext bytes from src and writes one
// framed encrypted record to dst: the length header, a fresh random IV,
// and the CBC ciphertext. A final partial block is zero-padded before
// encryption; the padding is never interpreted on decryption because the
// header carries the authoritative cleartext size.
func (c *FileCipher) Encrypt(dst io.Writer, src io.Reader, length uint64) error {
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return NewCryptoError("encrypt", "", fmt.Errorf("failed to generate iv: %w", err))
	}

	hdr := NewFrameHeader(length, iv)
	if _, err := hdr.WriteTo(dst); err != nil {
		return NewIOError("write", "", err)
	}

	mode := cipher.NewCBCEncrypter(c.block, iv)
	buf := make([]byte, cipherChunkSize)
	var total uint64

	for {
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			total += uint64(n)
			padded := n
			if rem := n % aes.BlockSize; rem != 0 {
				padded = n + aes.BlockSize - rem
				for i := n; i < padded; i++ {
					buf[i] = 0
				}
			}
			mode.CryptBlocks(buf[:padded], buf[:padded])
			if _, werr := dst.Write(buf[:padded]); werr != nil {
				return NewIOError("write", "", werr)
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return NewIOError("read", "", err)
		}
	}

	if total != length {
		return NewCryptoError("encrypt", "",
			fmt.Errorf("cleartext size changed during read: got %d bytes, want %d", total, length))
	}
	return nil
}

// Decrypt reads one framed encrypted record from src and writes the
// recovered cleartext to dst, truncated to the header-declared length.
// Trailing padding bytes are discarded regardless of their value. Input
// shorter than the header or with a non-block-aligned ciphertext yields
// ErrTruncatedInput.
func (c *FileCipher) Decrypt(dst io.Writer, src io.Reader) error {
	hdr := &FrameHeader{}
	if _, err := hdr.ReadFrom(src); err != nil {
		return err
	}

	mode := cipher.NewCBCDecrypter(c.block, hdr.IV)
	buf := make([]byte, cipherChunkSize)
	remaining := hdr.Length
	var ciphertext uint64

	for {
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			if n%aes.BlockSize != 0 {
				return ErrTruncatedInput
			}
			ciphertext += uint64(n)
			mode.CryptBlocks(buf[:n], buf[:n])

			out := uint64(n)
			if out > remaining {
				out = remaining
			}
			if out > 0 {
				if _, werr := dst.Write(buf[:out]); werr != nil {
					return NewIOError("write", "", werr)
				}
				remaining -= out
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return NewIOError("read", "", err)
		}
	}

	if ciphertext < hdr.PaddedSize() {
		return ErrTruncatedInput
	}
	return nil
}

// GenerateKey returns a fresh random symmetric key for one run.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, NewCryptoError("encrypt", "", fmt.Errorf("failed to generate key: %w", err))
	}
	return key, nil
}

// ZeroKey overwrites key material once a run no longer needs it.
func ZeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
