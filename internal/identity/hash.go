// Package identity derives stable identifiers for vault content: SHA-256
// content hashes and unique URL-safe slugs.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"time"
)

// HashSize is the hex length of every content hash
const HashSize = sha256.Size * 2

// FileDigest is the content hash of a file plus the stat data read with it
type FileDigest struct {
	Hash    string
	Size    int64
	ModTime time.Time
}

// HashBytes computes the SHA-256 hex digest of raw bytes
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashString computes the SHA-256 hex digest of a string
func HashString(s string) string {
	return HashBytes([]byte(s))
}

// HashReader streams r through SHA-256 and returns the digest and byte count
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashFile computes the SHA-256 hash of a file
func HashFile(path string) (FileDigest, error) {
	file, err := os.Open(path)
	if err != nil {
		return FileDigest{}, err
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return FileDigest{}, err
	}

	hash, size, err := HashReader(file)
	if err != nil {
		return FileDigest{}, err
	}

	return FileDigest{Hash: hash, Size: size, ModTime: info.ModTime()}, nil
}

// ShortHash returns the first n characters of a hash
func ShortHash(hash string, n int) string {
	if n <= 0 || n >= len(hash) {
		return hash
	}
	return hash[:n]
}

// ValidHash reports whether s looks like a content hash
func ValidHash(s string) bool {
	if len(s) != HashSize {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
