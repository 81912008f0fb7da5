package core

import (
	"fmt"
	"time"

	uuid "github.com/satori/go.uuid"
	"gopkg.in/yaml.v3"
)

// ID is a 128-bit identity shared by components, state syncs, tasks and
// actions (§3: "Identity = 128-bit UUID").
type ID uuid.UUID

// Component, state-sync, task and action identities are all the same
// underlying shape; distinct aliases just document intent at call sites.
type (
	ComponentID = ID
	StateSyncID = ID
	TaskID      = ID
	ActionID    = ID
)

// NilID is the zero identity; never assigned to a real component.
var NilID = ID(uuid.UUID{})

// NewID generates a fresh random identity.
func NewID() ID {
	return ID(uuid.NewV4())
}

// ParseID parses a canonical UUID string.
func ParseID(s string) (ID, error) {
	u, err := uuid.FromString(s)
	if err != nil {
		return NilID, fmt.Errorf("parse id %q: %w", s, err)
	}
	return ID(u), nil
}

func (id ID) String() string { return uuid.UUID(id).String() }

func (id ID) IsNil() bool { return id == NilID }

func (id ID) MarshalYAML() (interface{}, error) { return id.String(), nil }

func (id *ID) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// EndpointKind tags the variant held by an Endpoint.
type EndpointKind int

const (
	EndpointComponent EndpointKind = iota
	EndpointAddress
	EndpointRunner
)

// Endpoint is a tagged union over the three message destinations a route
// can name (§3): a hosted component, a UDP peer, or the runner itself.
type Endpoint struct {
	Kind      EndpointKind
	Component ComponentID // valid when Kind == EndpointComponent
	Address   string      // valid when Kind == EndpointAddress; "ip:port"
}

func ComponentEndpoint(id ComponentID) Endpoint {
	return Endpoint{Kind: EndpointComponent, Component: id}
}

func AddressEndpoint(addr string) Endpoint {
	return Endpoint{Kind: EndpointAddress, Address: addr}
}

func RunnerEndpoint() Endpoint {
	return Endpoint{Kind: EndpointRunner}
}

func (e Endpoint) String() string {
	switch e.Kind {
	case EndpointComponent:
		return "component:" + e.Component.String()
	case EndpointAddress:
		return "address:" + e.Address
	case EndpointRunner:
		return "runner"
	default:
		return "unknown"
	}
}

// RouteEndpoint is (Endpoint, channel_id) — the unit routes are keyed and
// targeted by (§3).
type RouteEndpoint struct {
	Endpoint  Endpoint
	ChannelID uint32
}

func (r RouteEndpoint) String() string {
	return fmt.Sprintf("%s#%d", r.Endpoint, r.ChannelID)
}

// StateSyncStatus is the lifecycle of a StateSync binding (§3):
// it only ever moves forward, Created -> Started -> Synced.
type StateSyncStatus int

const (
	StateSyncCreated StateSyncStatus = iota
	StateSyncStarted
	StateSyncSynced
)

func (s StateSyncStatus) String() string {
	switch s {
	case StateSyncCreated:
		return "created"
	case StateSyncStarted:
		return "started"
	case StateSyncSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// StateSync is a configured copy path from one component's published state
// snapshot into another, used for hot hand-offs (§3, §4.3).
type StateSync struct {
	ID     StateSyncID
	Source ComponentID
	Target ComponentID
	Status StateSyncStatus
}

// MinorFrame is one component's scheduling slot within a MajorFrame
// (§3): the component to run and the deadline it must respect.
type MinorFrame struct {
	Component ComponentID
	Deadline  DurationUS
}

// MajorFrame is an ordered list of minor frames; the control loop advances
// one MajorFrame per period, wrapping at the end (§3).
type MajorFrame struct {
	Minors []MinorFrame
}

// Schedule is the period plus the ordered cyclic list of major frames
// (§3).
type Schedule struct {
	Period      DurationUS
	MajorFrames []MajorFrame
}

// DurationUS is a microsecond-resolution duration, the unit the wire
// configuration format (§6) and the scheduler both use.
type DurationUS int64

func (d DurationUS) String() string {
	return fmt.Sprintf("%dus", int64(d))
}

// Duration converts to a time.Duration for use with the standard library's
// timers and sleepers.
func (d DurationUS) Duration() time.Duration {
	return time.Duration(d) * time.Microsecond
}
