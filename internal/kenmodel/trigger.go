package kenmodel

import (
	"encoding/json"
	"fmt"
	"time"
)

// TriggerKind discriminates the tagged Trigger union.
type TriggerKind string

const (
	TriggerAllComplete TriggerKind = "all_complete"
	TriggerAnyComplete TriggerKind = "any_complete"
	TriggerTimeoutAt   TriggerKind = "timeout_at"
	TriggerAnyOf       TriggerKind = "any"
)

// ChildrenSentinel is substituted by the handler for the freshly minted
// child ids of a spawn_and_sleep request.
const ChildrenSentinel = "__CHILDREN__"

// Trigger is the tagged wake condition stored with a sleeping session.
// Exactly one of IDs, At, or Of is populated, selected by Kind.
type Trigger struct {
	Kind TriggerKind
	IDs  []string    // all_complete / any_complete
	At   time.Time   // timeout_at
	Of   []Trigger   // any
}

// AllComplete builds an all_complete trigger.
func AllComplete(ids []string) Trigger { return Trigger{Kind: TriggerAllComplete, IDs: ids} }

// AnyComplete builds an any_complete trigger.
func AnyComplete(ids []string) Trigger { return Trigger{Kind: TriggerAnyComplete, IDs: ids} }

// TimeoutAt builds a timeout_at trigger.
func TimeoutAt(at time.Time) Trigger { return Trigger{Kind: TriggerTimeoutAt, At: at} }

// AnyOf builds an any-of-subtriggers trigger.
func AnyOf(ts []Trigger) Trigger { return Trigger{Kind: TriggerAnyOf, Of: ts} }

// ReferencedIDs returns every session id this trigger (transitively)
// names, used for registration-time existence validation and for the
// "why" blocker-chain observer view.
func (t Trigger) ReferencedIDs() []string {
	switch t.Kind {
	case TriggerAllComplete, TriggerAnyComplete:
		return append([]string(nil), t.IDs...)
	case TriggerAnyOf:
		var out []string
		for _, sub := range t.Of {
			out = append(out, sub.ReferencedIDs()...)
		}
		return out
	default:
		return nil
	}
}

// Empty reports whether the trigger names no ids and no sub-triggers,
// which spec §4.5 requires sleep/spawn_and_sleep requests to reject.
func (t Trigger) Empty() bool {
	switch t.Kind {
	case TriggerAllComplete, TriggerAnyComplete:
		return len(t.IDs) == 0
	case TriggerAnyOf:
		return len(t.Of) == 0
	case TriggerTimeoutAt:
		return false
	default:
		return true
	}
}

// SubstituteChildren replaces ChildrenSentinel entries in id-list
// triggers (at any depth) with the freshly minted child ids.
func (t Trigger) SubstituteChildren(childIDs []string) Trigger {
	switch t.Kind {
	case TriggerAllComplete, TriggerAnyComplete:
		ids := make([]string, 0, len(t.IDs))
		for _, id := range t.IDs {
			if id == ChildrenSentinel {
				ids = append(ids, childIDs...)
			} else {
				ids = append(ids, id)
			}
		}
		t.IDs = ids
		return t
	case TriggerAnyOf:
		of := make([]Trigger, len(t.Of))
		for i, sub := range t.Of {
			of[i] = sub.SubstituteChildren(childIDs)
		}
		t.Of = of
		return t
	default:
		return t
	}
}

// wireTrigger mirrors the JSON grammar of spec §6 exactly.
type wireTrigger struct {
	AllComplete    json.RawMessage `json:"all_complete,omitempty"`
	AnyComplete    json.RawMessage `json:"any_complete,omitempty"`
	TimeoutAt      *string         `json:"timeout_at,omitempty"`
	TimeoutSeconds *float64        `json:"timeout_seconds,omitempty"`
	Any            []wireTrigger   `json:"any,omitempty"`
}

// decodeIDList accepts either a JSON array of ids or the bare "__CHILDREN__"
// sentinel string, matching the Rust prototype's spawn_and_sleep fixture.
func decodeIDList(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var sentinel string
	if err := json.Unmarshal(raw, &sentinel); err == nil {
		return []string{sentinel}, nil
	}
	return nil, fmt.Errorf("trigger id list must be an array of ids or %q", ChildrenSentinel)
}

// MarshalJSON encodes a Trigger in the wire grammar of spec §6.
func (t Trigger) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case TriggerAllComplete:
		return json.Marshal(struct {
			AllComplete []string `json:"all_complete"`
		}{t.IDs})
	case TriggerAnyComplete:
		return json.Marshal(struct {
			AnyComplete []string `json:"any_complete"`
		}{t.IDs})
	case TriggerTimeoutAt:
		return json.Marshal(struct {
			TimeoutAt string `json:"timeout_at"`
		}{t.At.UTC().Format(time.RFC3339)})
	case TriggerAnyOf:
		return json.Marshal(struct {
			Any []Trigger `json:"any"`
		}{t.Of})
	default:
		return nil, fmt.Errorf("unhandled trigger kind %q", t.Kind)
	}
}

// UnmarshalJSON decodes a Trigger from the wire grammar, resolving
// timeout_seconds to an absolute timeout_at relative to now.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	var w wireTrigger
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return t.fromWire(w, time.Now())
}

// UnmarshalJSONAt is UnmarshalJSON with an injected "now" for
// timeout_seconds resolution, used by the handler so insertion time is
// explicit and test-controllable rather than implicitly wall-clock.
func (t *Trigger) UnmarshalJSONAt(data []byte, now time.Time) error {
	var w wireTrigger
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	return t.fromWire(w, now)
}

func (t *Trigger) fromWire(w wireTrigger, now time.Time) error {
	switch {
	case len(w.AllComplete) > 0:
		ids, err := decodeIDList(w.AllComplete)
		if err != nil {
			return err
		}
		*t = AllComplete(ids)
		return nil
	case len(w.AnyComplete) > 0:
		ids, err := decodeIDList(w.AnyComplete)
		if err != nil {
			return err
		}
		*t = AnyComplete(ids)
		return nil
	case w.TimeoutAt != nil:
		at, err := time.Parse(time.RFC3339, *w.TimeoutAt)
		if err != nil {
			return fmt.Errorf("invalid timeout_at: %w", err)
		}
		*t = TimeoutAt(at)
		return nil
	case w.TimeoutSeconds != nil:
		*t = TimeoutAt(now.Add(time.Duration(*w.TimeoutSeconds * float64(time.Second))))
		return nil
	case len(w.Any) > 0:
		subs := make([]Trigger, len(w.Any))
		for i, sw := range w.Any {
			if err := subs[i].fromWire(sw, now); err != nil {
				return err
			}
		}
		*t = AnyOf(subs)
		return nil
	default:
		return fmt.Errorf("empty or unrecognized trigger")
	}
}
