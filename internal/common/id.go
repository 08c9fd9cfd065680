package common

import (
	"github.com/google/uuid"
)

// NewRunID generates the correlation id attached to every log line of one run
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}
