// Package dirseal encrypts an entire directory tree for storage or
// transport using a hybrid scheme: file contents are protected with
// AES-256 in CBC mode, file paths are replaced by unlinkable pseudonyms,
// and the run's symmetric key is sealed with RSA-OAEP so that only the
// holder of the matching private key can recover it.
//
// # Overview
//
// One fresh 256-bit key is generated per run. Every file discovered under
// the source root is streamed through the cipher and written to the
// destination under a pseudonymous name. The pseudonym-to-path mapping is
// itself encrypted under the run key, and the run key is wrapped with the
// recipient's public key. Decryption reverses the whole pipeline with the
// private key.
//
// Filesystem access goes through the absfs.FileSystem abstraction, so the
// pipeline runs unchanged against the local disk, an in-memory filesystem,
// or any other AbsFs-compatible backend.
//
// # Basic Usage
//
//	cfg := &dirseal.Config{
//	    Source:        "/data/plain",
//	    Dest:          "/data/sealed",
//	    PublicKeyPath: "/keys/key.public",
//	}
//
//	p, err := dirseal.New(fs, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	summary, err := p.EncryptTree()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("sealed %d files\n", summary.Files)
//
// # Encrypted File Format
//
// Every encrypted file uses the same framing:
//   - Cleartext length (8 bytes): little-endian unsigned integer
//   - IV (16 bytes): random initialization vector, fresh per file
//   - Ciphertext (variable): AES-CBC output, length rounded up to a
//     multiple of the 16-byte block size
//
// The explicit length header makes padding removal deterministic for
// arbitrary binary content: a decryptor truncates to the declared length
// instead of inspecting padding bytes.
//
// # Output Artifacts
//
// Besides one encrypted file per source file, a run writes two fixed-name
// artifacts into the destination root:
//   - "filenames.map": the pseudonym-to-path mapping, JSON encoded and
//     encrypted under the run key
//   - "key.wrapped": the run key sealed with RSA-OAEP (SHA-256) under the
//     recipient's public key
//
// # Security Considerations
//
// Protected against:
//   - Disclosure of file contents at rest
//   - Disclosure of file names and directory structure (pseudonyms are
//     salted digests and leak nothing about the original paths)
//   - Recovery of the run key without the private key
//
// Not protected against:
//   - Tampering with ciphertexts (CBC is not authenticated)
//   - Metadata leakage through file sizes and file count
//   - Memory dumps while the run key is live
//
// A process interrupted mid-run leaves the destination in a partially
// written, non-atomic state; originals are only ever deleted after their
// own encrypted copy has been durably written.
package dirseal
