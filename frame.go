package dirseal

import (
	"crypto/aes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

const (
	// LengthFieldSize is the size of the cleartext length header field.
	LengthFieldSize = 8

	// IVSize is the size of the initialization vector (one AES block).
	IVSize = aes.BlockSize

	// FrameHeaderSize is the fixed prefix of every encrypted file:
	// 8 bytes (cleartext length, little-endian) + 16 bytes (IV).
	FrameHeaderSize = LengthFieldSize + IVSize

	// maxFrameLength is the largest cleartext length a header may
	// declare. Beyond it the padded ciphertext size no longer fits in a
	// uint64, so no well-formed frame can carry that much data.
	maxFrameLength = math.MaxUint64 - (aes.BlockSize - 1)
)

// FrameHeader is the fixed prefix of an encrypted file. The length field
// carries the exact cleartext size so a decryptor can discard CBC padding
// deterministically instead of inspecting padding bytes.
type FrameHeader struct {
	Length uint64 // Exact cleartext length in bytes
	IV     []byte // Initialization vector, IVSize bytes
}

// NewFrameHeader creates a header for the given cleartext length and IV.
func NewFrameHeader(length uint64, iv []byte) *FrameHeader {
	return &FrameHeader{
		Length: length,
		IV:     iv,
	}
}

// PaddedSize returns the ciphertext size for the header's cleartext
// length: the length rounded up to a multiple of the block size.
func (h *FrameHeader) PaddedSize() uint64 {
	blocks := (h.Length + aes.BlockSize - 1) / aes.BlockSize
	return blocks * aes.BlockSize
}

// WriteTo writes the header to the given writer.
func (h *FrameHeader) WriteTo(w io.Writer) (int64, error) {
	if err := h.Validate(); err != nil {
		return 0, NewCryptoError("encrypt", "", err)
	}

	buf := make([]byte, FrameHeaderSize)
	binary.LittleEndian.PutUint64(buf[:LengthFieldSize], h.Length)
	copy(buf[LengthFieldSize:], h.IV)

	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrom reads the header from the given reader. A reader that ends
// before the full header arrives yields ErrTruncatedInput.
func (h *FrameHeader) ReadFrom(r io.Reader) (int64, error) {
	buf := make([]byte, FrameHeaderSize)
	n, err := io.ReadFull(r, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return int64(n), ErrTruncatedInput
	}
	if err != nil {
		return int64(n), fmt.Errorf("failed to read frame header: %w", err)
	}

	h.Length = binary.LittleEndian.Uint64(buf[:LengthFieldSize])
	h.IV = make([]byte, IVSize)
	copy(h.IV, buf[LengthFieldSize:])

	// A header declaring more cleartext than any frame can carry is as
	// unusable as one the input cut short.
	if err := h.Validate(); err != nil {
		return int64(n), ErrTruncatedInput
	}

	return int64(n), nil
}

// Validate checks that the header describes a frame that can exist.
func (h *FrameHeader) Validate() error {
	if len(h.IV) != IVSize {
		return fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(h.IV))
	}
	if h.Length > maxFrameLength {
		return fmt.Errorf("cleartext length %d overflows the padded frame size", h.Length)
	}
	return nil
}
