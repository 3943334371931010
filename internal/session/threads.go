package session

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Thread kinds
const (
	ThreadURL  = "url"
	ThreadFile = "file"
)

// ThreadMeta describes the artifact a thread is about.
type ThreadMeta struct {
	Key      string `json:"threadKey"`
	Kind     string `json:"type"`
	Identity string `json:"-"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Preview  string `json:"preview,omitempty"`
}

// DeriveKey computes the thread key for an artifact: "url:" plus
// BLAKE2b-256 of the canonical URL, or "file:" plus BLAKE2b-256 of the file
// checksum or id. The same identity always yields the same key.
func DeriveKey(kind, identity string) string {
	sum := blake2b.Sum256([]byte(strings.TrimSpace(identity)))
	return kind + ":" + hex.EncodeToString(sum[:])
}

// IsThreadKey reports whether s looks like a derived key.
func IsThreadKey(s string) bool {
	kind, digest, ok := strings.Cut(s, ":")
	if !ok || (kind != ThreadURL && kind != ThreadFile) || len(digest) != 64 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}
