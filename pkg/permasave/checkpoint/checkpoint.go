// Package checkpoint implements save, load, and list of immutable application
// state snapshots persisted as tagged objects in a content-addressed store.
//
// A checkpoint belongs to an (owner, application) pair and is identified
// within that pair by its creation time in milliseconds. Saving always
// creates a new object; nothing is ever updated or deleted.
package checkpoint

import (
	"encoding/json"
	"regexp"
)

// SchemaVersion tags the data shape produced by this implementation.
// Bump when making breaking changes to the stored envelope.
const SchemaVersion = "1"

// Checkpoint is the stored snapshot envelope.
type Checkpoint struct {
	// Owner is the account address the snapshot belongs to
	// (0x followed by 40 hex characters).
	Owner string `json:"owner"`

	// Application identifies the producing application or game.
	Application string `json:"application"`

	// CreatedAt is the save time in milliseconds since epoch, assigned by
	// the Manager. Two rapid saves may share a millisecond; ties are broken
	// by content identifier when ordering.
	CreatedAt int64 `json:"createdAt"`

	// Payload is the caller's state, opaque to this package.
	Payload map[string]any `json:"payload"`

	// SchemaVersion records the envelope version at save time.
	SchemaVersion string `json:"schemaVersion"`

	// ContentID is the store identifier of this snapshot. Populated on
	// checkpoints returned by List; not part of the stored body.
	ContentID string `json:"-"`
}

// Marshal serializes the checkpoint envelope to JSON.
func (c *Checkpoint) Marshal() ([]byte, error) {
	return json.Marshal(c)
}

// Unmarshal deserializes a checkpoint envelope from JSON.
func Unmarshal(data []byte) (*Checkpoint, error) {
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ownerPattern matches a blockchain account address: 0x + 40 hex characters.
var ownerPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidOwner reports whether owner is a well-formed account address.
func ValidOwner(owner string) bool {
	return ownerPattern.MatchString(owner)
}

// validateIdentity checks the (owner, application) pair shared by all three
// public operations. Runs locally, before any store call.
func validateIdentity(owner, application string) error {
	if !ValidOwner(owner) {
		return &ValidationError{Field: "owner", Message: "must be a 0x-prefixed 40-hex-character address"}
	}
	if application == "" {
		return &ValidationError{Field: "application", Message: "must be a non-empty string"}
	}
	return nil
}
