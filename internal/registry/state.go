// Package registry decides which configured sources may participate in a
// run. Each source moves through an explicit onboarding state machine:
//
//	candidate ──(probe ≥ min postings)──► active
//	candidate ──(probe 0 postings)──────► candidate
//	candidate|active|no_jobs|error ──(probe fails)──► error
//	active|error|no_jobs ──(probe 0 postings)──► no_jobs
//	error|no_jobs ──(probe ≥ min postings)──► active
//	any ──(operator pause)──► paused ──(operator resume)──► candidate
//
// Paused is sticky: probes never move a paused source.
package registry

import (
	"errors"
	"fmt"

	"github.com/amishk599/jobdigest/internal/model"
)

// Event is something that happened to a source.
type Event string

const (
	EventProbeOK       Event = "probe_ok"
	EventProbeEmpty    Event = "probe_empty"
	EventProbeFailed   Event = "probe_failed"
	EventPause         Event = "pause"
	EventResume        Event = "resume"
	EventConfigChanged Event = "config_changed"
)

// ErrInvalidTransition is returned for events a state does not accept.
var ErrInvalidTransition = errors.New("invalid source state transition")

var probed = map[Event]model.SourceState{
	EventProbeOK:       model.SourceActive,
	EventProbeEmpty:    model.SourceNoJobs,
	EventProbeFailed:   model.SourceError,
	EventPause:         model.SourcePaused,
	EventConfigChanged: model.SourceCandidate,
}

// validTransitions lists every allowed (state, event) → state edge.
var validTransitions = map[model.SourceState]map[Event]model.SourceState{
	model.SourceCandidate: {
		EventProbeOK:       model.SourceActive,
		EventProbeEmpty:    model.SourceCandidate,
		EventProbeFailed:   model.SourceError,
		EventPause:         model.SourcePaused,
		EventConfigChanged: model.SourceCandidate,
	},
	model.SourceActive: probed,
	model.SourceError:  probed,
	model.SourceNoJobs: probed,
	model.SourcePaused: {
		EventPause:  model.SourcePaused,
		EventResume: model.SourceCandidate,
	},
}

// Next returns the state a source moves to when ev happens in from.
func Next(from model.SourceState, ev Event) (model.SourceState, error) {
	edges, ok := validTransitions[from]
	if !ok {
		return "", fmt.Errorf("%w: unknown state %q", ErrInvalidTransition, from)
	}
	to, ok := edges[ev]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
	}
	return to, nil
}

// IsTransitionAllowed reports whether ev is accepted in from.
func IsTransitionAllowed(from model.SourceState, ev Event) bool {
	_, err := Next(from, ev)
	return err == nil
}
