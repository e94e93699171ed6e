package flags

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("flag not found")

// Flag is an operator switch, e.g. a pool pause. Unset reads as off.
type Flag struct {
	Key       string    `json:"key"`
	Value     bool      `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
