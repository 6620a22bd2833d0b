// Package cas derives deterministic content addresses for cached artifacts.
package cas

import (
	"crypto/md5"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// URLKey addresses an external URL: hex MD5 of the URL-safe base64 of its UTF-8 bytes.
// Same URL, same key, across processes.
func URLKey(rawURL string) string {
	encoded := base64.URLEncoding.EncodeToString([]byte(rawURL))
	sum := md5.Sum([]byte(encoded))
	return hex.EncodeToString(sum[:])
}

// UploadKey addresses uploaded audio by the hex SHA-512 of its transcoded bytes
func UploadKey(r io.Reader) (string, error) {
	h := sha512.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// FileKey is UploadKey over a file on disk
func FileKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return UploadKey(f)
}
