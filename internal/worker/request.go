package worker

import (
	"github.com/caldera-rt/runner/internal/core"
)

// RequestKind tags which job a Request carries (§4.5).
type RequestKind int

const (
	RequestLoadConfiguration RequestKind = iota
	RequestAddComponentImpl
	RequestRemoveComponentImpl
)

// Request is a job handed from the control thread to the background
// worker. The control thread only ever appends one of these under
// try-lock; the worker takes the whole queue under a full lock and
// releases it before executing the batch.
type Request struct {
	Kind RequestKind

	// RequestLoadConfiguration
	ConfigPath string

	// RequestAddComponentImpl
	ComponentID core.ComponentID
	LaunchPath  string
	Core        int

	// RequestRemoveComponentImpl
	Implementation *core.Implementation
}
