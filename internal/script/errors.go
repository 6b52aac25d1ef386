package script

import (
	"errors"
	"fmt"
	"strings"

	"github.com/t77yq/nitrite-automation/internal/model"
)

var (
	// ErrNotFound is returned when an id is absent from the index
	ErrNotFound = errors.New("script not found")
	// ErrRejected matches every RejectedError
	ErrRejected = errors.New("script rejected by security validation")
)

// RejectedError carries the classifier verdict of a refused create or update
type RejectedError struct {
	Level    model.RiskLevel
	Warnings []string
}

func (e *RejectedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (risk level %s)", ErrRejected, e.Level)
	for _, w := range e.Warnings {
		b.WriteString("\n  ")
		b.WriteString(w)
	}
	return b.String()
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}
