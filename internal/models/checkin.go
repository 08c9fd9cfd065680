package models

import (
	"fmt"
	"strings"
)

// SignState is the daily check-in state read from the sign page
type SignState string

const (
	SignStatePending   SignState = "pending"
	SignStateCompleted SignState = "completed"
	SignStateUnknown   SignState = "unknown"
)

// SignStatus is one observation of the check-in button
type SignStatus struct {
	State SignState
	Label string // button text as shown on the page
	Token string // value of the sign= parameter, empty when the link carries none
}

// SummaryEntry is one "label：value" line of the statistics panel
type SummaryEntry struct {
	Label string
	Value string
}

// SignSummary keeps the statistics panel entries in page order
type SignSummary []SummaryEntry

// Get returns the value for label
func (s SignSummary) Get(label string) (string, bool) {
	for _, entry := range s {
		if entry.Label == label {
			return entry.Value, true
		}
	}
	return "", false
}

// Lines renders the summary as "label: value" lines in page order
func (s SignSummary) Lines() string {
	lines := make([]string, 0, len(s))
	for _, entry := range s {
		lines = append(lines, fmt.Sprintf("%s: %s", entry.Label, entry.Value))
	}
	return strings.Join(lines, "\n")
}
