package harvest

import (
	"fmt"
	"strings"
)

// Status is the outcome of one input.
type Status string

// Outcome statuses.
const (
	StatusOK          Status = "ok"
	StatusUnsupported Status = "unsupported"
	StatusFetchFailed Status = "fetch_failed"
	StatusParseFailed Status = "parse_failed"
	StatusSkipped     Status = "skipped"
)

// ProtectedPolicy decides how registrations flagged Protected are fetched.
type ProtectedPolicy string

// Protected-site policies.
const (
	ProtectedSkip     ProtectedPolicy = "skip"
	ProtectedHeadless ProtectedPolicy = "headless"
	ProtectedAttempt  ProtectedPolicy = "attempt"
)

// ParseProtectedPolicy validates a policy name. Empty selects attempt.
func ParseProtectedPolicy(s string) (ProtectedPolicy, error) {
	switch p := ProtectedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProtectedAttempt, nil
	case ProtectedSkip, ProtectedHeadless, ProtectedAttempt:
		return p, nil
	default:
		return "", fmt.Errorf("unknown protected policy %q (want skip, headless, or attempt)", s)
	}
}

// ArchiveMode decides which fetched documents are archived.
type ArchiveMode string

// Archive modes.
const (
	ArchiveNone     ArchiveMode = "none"
	ArchiveFailures ArchiveMode = "failures"
	ArchiveAll      ArchiveMode = "all"
)

// ParseArchiveMode validates a mode name. Empty selects failures.
func ParseArchiveMode(s string) (ArchiveMode, error) {
	switch m := ArchiveMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ArchiveFailures, nil
	case ArchiveNone, ArchiveFailures, ArchiveAll:
		return m, nil
	default:
		return "", fmt.Errorf("unknown archive mode %q (want none, failures, or all)", s)
	}
}
