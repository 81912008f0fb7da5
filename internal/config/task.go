package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/caldera-rt/runner/internal/core"
)

// TasksDocument is the reconfiguration task-document schema (§6): a
// sequence of tasks, each bundling either a Blocking or a NonBlocking
// group of actions.
type TasksDocument struct {
	Tasks []Task `yaml:"tasks"`
}

// Task bundles one group of actions, consumed one per period by the
// management service (§4.4).
type Task struct {
	ID      core.TaskID `yaml:"id"`
	Actions Actions     `yaml:"actions"`
}

// Actions is the blocking/non-blocking tagged union under a task's
// `actions:` key. Exactly one of the two must be present.
type Actions struct {
	Blocking    []BlockingAction
	NonBlocking []NonBlockingAction
}

type rawActions struct {
	Blocking    *[]BlockingAction    `yaml:"blocking"`
	NonBlocking *[]NonBlockingAction `yaml:"non-blocking"`
}

func (a *Actions) UnmarshalYAML(node *yaml.Node) error {
	var raw rawActions
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("config: decode actions: %w", err)
	}
	switch {
	case raw.Blocking != nil && raw.NonBlocking != nil:
		return fmt.Errorf("config: actions must be blocking xor non-blocking, not both")
	case raw.Blocking == nil && raw.NonBlocking == nil:
		return fmt.Errorf("config: actions must specify blocking or non-blocking")
	case raw.Blocking != nil:
		a.Blocking = *raw.Blocking
	default:
		a.NonBlocking = *raw.NonBlocking
	}
	return nil
}

// BlockingAction is one entry under `actions.blocking` (§4.4).
type BlockingAction struct {
	ID   core.ActionID      `yaml:"id"`
	Data BlockingActionData `yaml:"data"`
}

// ActionKind tags which variant a Data payload holds.
type ActionKind string

const (
	ActionStartComponent  ActionKind = "start-component"
	ActionStopComponent   ActionKind = "stop-component"
	ActionAddRoute        ActionKind = "add-route"
	ActionRemoveRoute     ActionKind = "remove-route"
	ActionSetSchedule     ActionKind = "set-schedule"
	ActionAddStateSync    ActionKind = "add-state-sync"
	ActionRemoveStateSync ActionKind = "remove-state-sync"
	ActionAddComponent    ActionKind = "add-component"
	ActionRemoveComponent ActionKind = "remove-component"
	ActionWaitStateSync   ActionKind = "wait-state-sync"
)

// BlockingActionData is the `data:` tagged union for blocking actions
// (§6): exactly one of the seven blocking variants.
type BlockingActionData struct {
	Kind ActionKind

	StartComponent  *StartComponentData
	StopComponent   *StopComponentData
	AddRoute        *AddRouteData
	RemoveRoute     *RemoveRouteData
	SetSchedule     *SetScheduleData
	AddStateSync    *AddStateSyncData
	RemoveStateSync *RemoveStateSyncData
}

type StartComponentData struct {
	ComponentID core.ComponentID `mapstructure:"component-id"`
}

type StopComponentData struct {
	ComponentID core.ComponentID `mapstructure:"component-id"`
}

type AddRouteData struct {
	Source RouteEndpointSpec `yaml:"source"`
	Target RouteEndpointSpec `yaml:"target"`
}

type RemoveRouteData struct {
	Source RouteEndpointSpec `yaml:"source"`
}

type SetScheduleData struct {
	DeadlineUS  int64            `yaml:"deadline"`
	MajorFrames []MajorFrameSpec `yaml:"major-frames"`
}

type MajorFrameSpec struct {
	Minors []MinorFrameSpec `yaml:"minor-frames"`
}

type MinorFrameSpec struct {
	ComponentID core.ComponentID `yaml:"component-id"`
	DeadlineUS  int64            `yaml:"deadline"`
}

// ToCore converts the YAML schedule shape into the runtime core.Schedule.
func (s SetScheduleData) ToCore() core.Schedule {
	sched := core.Schedule{Period: core.DurationUS(s.DeadlineUS)}
	for _, mf := range s.MajorFrames {
		major := core.MajorFrame{}
		for _, m := range mf.Minors {
			major.Minors = append(major.Minors, core.MinorFrame{
				Component: m.ComponentID,
				Deadline:  core.DurationUS(m.DeadlineUS),
			})
		}
		sched.MajorFrames = append(sched.MajorFrames, major)
	}
	return sched
}

type AddStateSyncData struct {
	StateSyncID core.StateSyncID `yaml:"state-sync-id"`
	Source      EndpointSpec     `yaml:"source"`
	Target      EndpointSpec     `yaml:"target"`
}

type RemoveStateSyncData struct {
	StateSyncID core.StateSyncID `mapstructure:"state-sync-id"`
}

// RouteEndpointSpec is the YAML shape of a RouteEndpoint (§6):
// `{ endpoint: ..., channel-id: <u32> }`.
type RouteEndpointSpec struct {
	Endpoint  EndpointSpec `yaml:"endpoint"`
	ChannelID uint32       `yaml:"channel-id"`
}

// ToCore converts to the runtime core.RouteEndpoint.
func (r RouteEndpointSpec) ToCore() core.RouteEndpoint {
	return core.RouteEndpoint{Endpoint: core.Endpoint(r.Endpoint), ChannelID: r.ChannelID}
}

// EndpointSpec is core.Endpoint's YAML tagged-union encoding: the bare
// scalar "runner", or a one-key mapping "component-id"/"address".
type EndpointSpec core.Endpoint

func (e *EndpointSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return fmt.Errorf("config: decode endpoint scalar: %w", err)
		}
		if s != "runner" {
			return fmt.Errorf("config: unknown endpoint scalar %q", s)
		}
		*e = EndpointSpec(core.RunnerEndpoint())
		return nil
	}

	var raw map[string]string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("config: decode endpoint mapping: %w", err)
	}
	if v, ok := raw["component-id"]; ok {
		id, err := core.ParseID(v)
		if err != nil {
			return fmt.Errorf("config: endpoint component-id: %w", err)
		}
		*e = EndpointSpec(core.ComponentEndpoint(id))
		return nil
	}
	if v, ok := raw["address"]; ok {
		*e = EndpointSpec(core.AddressEndpoint(v))
		return nil
	}
	return fmt.Errorf("config: endpoint mapping must set component-id or address")
}

// UnmarshalYAML decodes the action data tagged union by finding exactly
// one known variant key (§6) and dispatching its payload: the flat
// variants go through mapstructure (the same decode path config.Load
// uses via viper), the nested Endpoint-bearing ones decode straight
// through yaml.v3 so EndpointSpec's own UnmarshalYAML fires recursively.
func (d *BlockingActionData) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("config: decode action data: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("config: action data must have exactly one variant, got %d", len(raw))
	}

	for key, sub := range raw {
		sub := sub
		switch ActionKind(key) {
		case ActionStartComponent:
			d.Kind = ActionStartComponent
			v, err := decodeViaMapstructure[StartComponentData](&sub)
			if err != nil {
				return err
			}
			d.StartComponent = v
		case ActionStopComponent:
			d.Kind = ActionStopComponent
			v, err := decodeViaMapstructure[StopComponentData](&sub)
			if err != nil {
				return err
			}
			d.StopComponent = v
		case ActionAddRoute:
			d.Kind = ActionAddRoute
			var v AddRouteData
			if err := sub.Decode(&v); err != nil {
				return fmt.Errorf("config: decode add-route: %w", err)
			}
			d.AddRoute = &v
		case ActionRemoveRoute:
			d.Kind = ActionRemoveRoute
			var v RemoveRouteData
			if err := sub.Decode(&v); err != nil {
				return fmt.Errorf("config: decode remove-route: %w", err)
			}
			d.RemoveRoute = &v
		case ActionSetSchedule:
			d.Kind = ActionSetSchedule
			var v SetScheduleData
			if err := sub.Decode(&v); err != nil {
				return fmt.Errorf("config: decode set-schedule: %w", err)
			}
			d.SetSchedule = &v
		case ActionAddStateSync:
			d.Kind = ActionAddStateSync
			var v AddStateSyncData
			if err := sub.Decode(&v); err != nil {
				return fmt.Errorf("config: decode add-state-sync: %w", err)
			}
			d.AddStateSync = &v
		case ActionRemoveStateSync:
			d.Kind = ActionRemoveStateSync
			v, err := decodeViaMapstructure[RemoveStateSyncData](&sub)
			if err != nil {
				return err
			}
			d.RemoveStateSync = v
		default:
			return fmt.Errorf("config: unknown blocking action variant %q", key)
		}
	}
	return nil
}

// decodeViaMapstructure decodes a YAML node through a generic map and
// mapstructure, for the flat (non-tagged-union) payload shapes.
func decodeViaMapstructure[T any](node *yaml.Node) (*T, error) {
	var generic map[string]interface{}
	if err := node.Decode(&generic); err != nil {
		return nil, fmt.Errorf("config: decode payload: %w", err)
	}
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		DecodeHook:       stringToIDHookFunc(),
	})
	if err != nil {
		return nil, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := dec.Decode(generic); err != nil {
		return nil, fmt.Errorf("config: mapstructure decode: %w", err)
	}
	return &out, nil
}

// NonBlockingAction is one entry under `actions.non-blocking` (spec
// §4.4.1).
type NonBlockingAction struct {
	ID   core.ActionID         `yaml:"id"`
	Data NonBlockingActionData `yaml:"data"`
}

// NonBlockingActionData is the `data:` tagged union for non-blocking
// actions: exactly one of the three variants.
type NonBlockingActionData struct {
	Kind ActionKind

	AddComponent    *AddComponentData
	RemoveComponent *RemoveComponentData
	WaitStateSync   *WaitStateSyncData
}

type AddComponentData struct {
	ComponentID core.ComponentID `mapstructure:"component-id"`
	Component   string           `mapstructure:"component"` // launch path
	Core        int              `mapstructure:"core"`
	Version     string           `mapstructure:"version"`
}

type RemoveComponentData struct {
	ComponentID core.ComponentID `mapstructure:"component-id"`
}

type WaitStateSyncData struct {
	StateSyncID core.StateSyncID `mapstructure:"state-sync-id"`
}

func (d *NonBlockingActionData) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]yaml.Node
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("config: decode non-blocking action data: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("config: action data must have exactly one variant, got %d", len(raw))
	}
	for key, sub := range raw {
		sub := sub
		switch ActionKind(key) {
		case ActionAddComponent:
			d.Kind = ActionAddComponent
			v, err := decodeViaMapstructure[AddComponentData](&sub)
			if err != nil {
				return err
			}
			d.AddComponent = v
		case ActionRemoveComponent:
			d.Kind = ActionRemoveComponent
			v, err := decodeViaMapstructure[RemoveComponentData](&sub)
			if err != nil {
				return err
			}
			d.RemoveComponent = v
		case ActionWaitStateSync:
			d.Kind = ActionWaitStateSync
			v, err := decodeViaMapstructure[WaitStateSyncData](&sub)
			if err != nil {
				return err
			}
			d.WaitStateSync = v
		default:
			return fmt.Errorf("config: unknown non-blocking action variant %q", key)
		}
	}
	return nil
}
