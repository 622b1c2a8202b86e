package workflow

import (
	"fmt"
	"strings"

	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
)

// Policy decides which status changes are allowed.
type Policy int

const (
	// PolicyPermissive allows any known status to follow any other.
	PolicyPermissive Policy = iota
	// PolicyStrict only allows the edges in strictTransitions.
	PolicyStrict
)

var strictTransitions = map[models.FileStatus][]models.FileStatus{
	models.StatusPending:    {models.StatusProcessing},
	models.StatusProcessing: {models.StatusCompleted, models.StatusRejected},
	models.StatusRejected:   {models.StatusProcessing},
	models.StatusCompleted:  {models.StatusApproved},
}

// ParsePolicy reads WORKFLOW_TRANSITIONS. Empty means permissive.
func ParsePolicy(raw string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "permissive":
		return PolicyPermissive, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyPermissive, fmt.Errorf("unknown transition policy %q", raw)
	}
}

func (p Policy) String() string {
	if p == PolicyStrict {
		return "strict"
	}
	return "permissive"
}

// Allows reports whether a file in status from may move to status to.
func (p Policy) Allows(from, to models.FileStatus) bool {
	if p != PolicyStrict {
		return true
	}
	for _, next := range strictTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
