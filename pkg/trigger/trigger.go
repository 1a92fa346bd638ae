// Package trigger decides whether a source-control event should start a run.
package trigger

type EventKind string

const (
	Push        EventKind = "push"
	PullRequest EventKind = "pull_request"
)

// Event is a triggering event as delivered by the forge.
type Event struct {
	Kind   EventKind
	Branch string
}

// Request asks for one pipeline run on behalf of an event.
type Request struct {
	Event Event
}

// Gate filters events down to the ones that should run the pipeline. The
// zero value matches nothing; configure at least a branch.
type Gate struct {
	// Branch is the target branch, e.g. "main".
	Branch string
	// Kinds restricts matching event kinds. Empty means both push and
	// pull_request.
	Kinds []EventKind
}

// OnEvent returns a run request when the event matches the gate, nil
// otherwise. Non-matching events are ignored silently, never an error.
func (g Gate) OnEvent(ev Event) *Request {
	if g.Branch == "" || ev.Branch != g.Branch {
		return nil
	}
	if len(g.Kinds) == 0 {
		if ev.Kind != Push && ev.Kind != PullRequest {
			return nil
		}
		return &Request{Event: ev}
	}
	for _, k := range g.Kinds {
		if ev.Kind == k {
			return &Request{Event: ev}
		}
	}
	return nil
}
