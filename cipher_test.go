package dirseal

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func testCipher(t *testing.T, keyLen int) *FileCipher {
	t.Helper()

	key := make([]byte, keyLen)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	c, err := NewFileCipher(key)
	if err != nil {
		t.Fatalf("NewFileCipher failed: %v", err)
	}
	return c
}

func TestFileCipher_RoundTrip(t *testing.T) {
	c := testCipher(t, 32)

	sizes := []int{
		0, 1, 15, 16, 17, 31, 32, 33, 255, 4096,
		cipherChunkSize - 1, cipherChunkSize, cipherChunkSize + 1,
	}

	for _, size := range sizes {
		plaintext := make([]byte, size)
		if _, err := rand.Read(plaintext); err != nil {
			t.Fatalf("failed to generate plaintext: %v", err)
		}

		var sealed bytes.Buffer
		if err := c.Encrypt(&sealed, bytes.NewReader(plaintext), uint64(size)); err != nil {
			t.Fatalf("Encrypt(%d bytes) failed: %v", size, err)
		}

		// The frame must be header + block-aligned ciphertext.
		wantCiphertext := (size + 15) / 16 * 16
		if sealed.Len() != FrameHeaderSize+wantCiphertext {
			t.Errorf("frame size for %d bytes: got %d, want %d",
				size, sealed.Len(), FrameHeaderSize+wantCiphertext)
		}
		if got := binary.LittleEndian.Uint64(sealed.Bytes()[:LengthFieldSize]); got != uint64(size) {
			t.Errorf("length header: got %d, want %d", got, size)
		}

		var restored bytes.Buffer
		if err := c.Decrypt(&restored, &sealed); err != nil {
			t.Fatalf("Decrypt(%d bytes) failed: %v", size, err)
		}
		if !bytes.Equal(restored.Bytes(), plaintext) {
			t.Errorf("round-trip mismatch for %d bytes", size)
		}
	}
}

func TestFileCipher_RoundTripKeySizes(t *testing.T) {
	for _, keyLen := range []int{16, 24, 32} {
		c := testCipher(t, keyLen)

		plaintext := []byte("seventeen bytes!!")
		var sealed, restored bytes.Buffer
		if err := c.Encrypt(&sealed, bytes.NewReader(plaintext), uint64(len(plaintext))); err != nil {
			t.Fatalf("Encrypt with %d-byte key failed: %v", keyLen, err)
		}
		if err := c.Decrypt(&restored, &sealed); err != nil {
			t.Fatalf("Decrypt with %d-byte key failed: %v", keyLen, err)
		}
		if !bytes.Equal(restored.Bytes(), plaintext) {
			t.Errorf("round-trip mismatch with %d-byte key", keyLen)
		}
	}
}

// Trailing bytes that look like padding must survive the round trip; the
// length header, not the byte values, decides where the cleartext ends.
func TestFileCipher_PaddingLookalikeTails(t *testing.T) {
	c := testCipher(t, 32)

	tails := []byte{0x00, 0x20, 0x01, 0x10}
	for _, tail := range tails {
		plaintext := append([]byte("data"), bytes.Repeat([]byte{tail}, 7)...)

		var sealed, restored bytes.Buffer
		if err := c.Encrypt(&sealed, bytes.NewReader(plaintext), uint64(len(plaintext))); err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if err := c.Decrypt(&restored, &sealed); err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if !bytes.Equal(restored.Bytes(), plaintext) {
			t.Errorf("tail byte 0x%02x: got %q, want %q", tail, restored.Bytes(), plaintext)
		}
	}
}

func TestFileCipher_FreshIVPerCall(t *testing.T) {
	c := testCipher(t, 32)
	plaintext := []byte("identical input on both calls")

	var first, second bytes.Buffer
	if err := c.Encrypt(&first, bytes.NewReader(plaintext), uint64(len(plaintext))); err != nil {
		t.Fatalf("first Encrypt failed: %v", err)
	}
	if err := c.Encrypt(&second, bytes.NewReader(plaintext), uint64(len(plaintext))); err != nil {
		t.Fatalf("second Encrypt failed: %v", err)
	}

	firstIV := first.Bytes()[LengthFieldSize:FrameHeaderSize]
	secondIV := second.Bytes()[LengthFieldSize:FrameHeaderSize]
	if bytes.Equal(firstIV, secondIV) {
		t.Error("IV reused across Encrypt calls")
	}
	if bytes.Equal(first.Bytes()[FrameHeaderSize:], second.Bytes()[FrameHeaderSize:]) {
		t.Error("identical ciphertext for identical plaintext")
	}
}

func TestNewFileCipher_InvalidKeyLength(t *testing.T) {
	for _, keyLen := range []int{0, 1, 15, 17, 23, 31, 33, 64} {
		_, err := NewFileCipher(make([]byte, keyLen))
		if !errors.Is(err, ErrInvalidKeyLength) {
			t.Errorf("key length %d: got %v, want ErrInvalidKeyLength", keyLen, err)
		}
	}
}

func TestFileCipher_TruncatedInput(t *testing.T) {
	c := testCipher(t, 32)

	plaintext := make([]byte, 100)
	rand.Read(plaintext)
	var sealed bytes.Buffer
	if err := c.Encrypt(&sealed, bytes.NewReader(plaintext), uint64(len(plaintext))); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	frame := sealed.Bytes()

	tests := []struct {
		name  string
		input []byte
	}{
		{"empty input", nil},
		{"partial length header", frame[:4]},
		{"header without iv", frame[:LengthFieldSize]},
		{"partial iv", frame[:FrameHeaderSize-3]},
		{"ciphertext cut at block boundary", frame[:len(frame)-16]},
		{"ciphertext not block-aligned", frame[:len(frame)-7]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := c.Decrypt(&out, bytes.NewReader(tt.input))
			if !errors.Is(err, ErrTruncatedInput) {
				t.Errorf("got %v, want ErrTruncatedInput", err)
			}
		})
	}
}

// A header may declare a length so large that rounding it up to the
// block size wraps a uint64. Such a frame can never carry enough data
// and must fail as truncated instead of decrypting to nothing.
func TestFileCipher_OverflowingLengthHeader(t *testing.T) {
	c := testCipher(t, 32)

	lengths := []uint64{
		math.MaxUint64,
		maxFrameLength + 1,
		maxFrameLength, // representable, but no input can satisfy it
	}

	for _, length := range lengths {
		frame := make([]byte, FrameHeaderSize)
		binary.LittleEndian.PutUint64(frame[:LengthFieldSize], length)

		var out bytes.Buffer
		err := c.Decrypt(&out, bytes.NewReader(frame))
		if !errors.Is(err, ErrTruncatedInput) {
			t.Errorf("length %d: got %v, want ErrTruncatedInput", length, err)
		}
		if out.Len() != 0 {
			t.Errorf("length %d: wrote %d bytes, want none", length, out.Len())
		}
	}
}

func TestFrameHeader_Validate(t *testing.T) {
	iv := make([]byte, IVSize)

	tests := []struct {
		name   string
		header *FrameHeader
		ok     bool
	}{
		{"valid", NewFrameHeader(42, iv), true},
		{"zero length", NewFrameHeader(0, iv), true},
		{"largest length", NewFrameHeader(maxFrameLength, iv), true},
		{"overflowing length", NewFrameHeader(maxFrameLength+1, iv), false},
		{"short iv", NewFrameHeader(42, iv[:IVSize-1]), false},
		{"missing iv", NewFrameHeader(42, nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.header.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && err == nil {
				t.Error("Validate() accepted an invalid header")
			}
		})
	}
}

func TestFrameHeader_WriteToRejectsInvalid(t *testing.T) {
	var out bytes.Buffer
	hdr := NewFrameHeader(42, make([]byte, 3))
	if _, err := hdr.WriteTo(&out); !IsCryptoError(err) {
		t.Errorf("got %v, want a CryptoError", err)
	}
	if out.Len() != 0 {
		t.Errorf("invalid header wrote %d bytes", out.Len())
	}
}

func TestFileCipher_LengthMismatch(t *testing.T) {
	c := testCipher(t, 32)

	// The stream holds fewer bytes than the declared length.
	var sealed bytes.Buffer
	err := c.Encrypt(&sealed, bytes.NewReader([]byte("abc")), 10)
	if err == nil {
		t.Fatal("expected error for short input stream")
	}
	if !IsCryptoError(err) {
		t.Errorf("got %v, want a CryptoError", err)
	}
}

func TestGenerateKey(t *testing.T) {
	first, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if len(first) != KeySize {
		t.Fatalf("key length: got %d, want %d", len(first), KeySize)
	}

	second, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if bytes.Equal(first, second) {
		t.Error("two generated keys are identical")
	}

	ZeroKey(first)
	if !bytes.Equal(first, make([]byte, KeySize)) {
		t.Error("ZeroKey left key material behind")
	}
}
