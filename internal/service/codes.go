package service

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const (
	groupCodePrefix = "GB-"
	groupCodeLength = 6
	groupCodeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	shareTokenBytes = 32
)

// newGroupCode generates a GB- prefixed code with a random 6-character
// uppercase alphanumeric suffix. Uniqueness is the caller's problem;
// collisions are retried against the store.
func newGroupCode() (string, error) {
	buf := make([]byte, groupCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	suffix := make([]byte, groupCodeLength)
	for i, b := range buf {
		suffix[i] = groupCodeChars[int(b)%len(groupCodeChars)]
	}
	return groupCodePrefix + string(suffix), nil
}

// newShareToken generates an opaque 32-byte URL-safe token without
// padding, used in share links.
func newShareToken() (string, error) {
	buf := make([]byte, shareTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
