// Package identity defines enrolled pet identities and the derivation of
// their composite keys from owner-supplied external IDs and pet names.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	externalIDPrefixLen = 6
	namePrefixLen       = 3
)

// ErrInvalidInput is returned when an external ID or pet name is too short
// to derive an identity key from.
var ErrInvalidInput = errors.New("invalid identity input")

// DeriveKey builds the composite identity key: the first 6 characters of the
// external ID concatenated with the first 3 characters of the name, both
// lowercased. Inputs shorter than their prefix are rejected rather than
// padded, so every key has exactly 9 characters.
func DeriveKey(externalID, name string) (string, error) {
	id := []rune(strings.TrimSpace(externalID))
	nm := []rune(strings.TrimSpace(name))

	if len(id) < externalIDPrefixLen {
		return "", fmt.Errorf("%w: external ID %q shorter than %d characters", ErrInvalidInput, externalID, externalIDPrefixLen)
	}
	if len(nm) < namePrefixLen {
		return "", fmt.Errorf("%w: name %q shorter than %d characters", ErrInvalidInput, name, namePrefixLen)
	}

	key := string(id[:externalIDPrefixLen]) + string(nm[:namePrefixLen])
	return strings.ToLower(key), nil
}

// Record is one enrolled identity: the canonical embedding plus the metadata
// needed to present a match.
type Record struct {
	Key        string    `json:"key"`
	ExternalID string    `json:"external_id"`
	Name       string    `json:"name"`
	Vector     []float32 `json:"-"`
	FrameCount int       `json:"frame_count"`
	Version    int       `json:"version"`
	EnrolledAt time.Time `json:"enrolled_at"`
}
