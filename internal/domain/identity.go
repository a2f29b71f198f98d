package domain

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Identity is the authenticated principal of a role.
type Identity struct {
	ID          string `json:"id" validate:"required"`
	Email       string `json:"email" validate:"required"`
	DisplayName string `json:"name" validate:"required"`
}

// Encode serializes the identity into its persisted slot form.
func (i Identity) Encode() (string, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return "", fmt.Errorf("encode identity: %w", err)
	}
	return string(data), nil
}

// DecodeIdentity parses a persisted slot value. It returns false, with an
// error describing why, when raw is not a complete Identity.
func DecodeIdentity(raw string) (Identity, bool, error) {
	var id Identity
	if err := json.Unmarshal([]byte(raw), &id); err != nil {
		return Identity{}, false, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	if err := validate.Struct(id); err != nil {
		return Identity{}, false, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return id, true, nil
}
