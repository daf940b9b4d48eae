package workflow

import (
	"context"
	"strings"

	"github.com/grantwise/coach-backend/internal/entity"
)

// Generator produces one assistant sub-conversation for the current
// session state, pushing tokens onto out. Generators own their protocol
// and may mutate the state; the engine persists the state only after
// every generator of the event completed successfully.
type Generator func(ctx context.Context, state *entity.SessionState, out chan<- string) error

// Decider picks the next step from the session state. Targets exposes
// every step the decider can return so the registry can be validated.
type Decider interface {
	Next(state *entity.SessionState) entity.StepID
	Targets() []entity.StepID
}

// Fixed returns one step unconditionally.
type Fixed struct {
	Step entity.StepID
}

func FixedStep(step entity.StepID) Fixed {
	return Fixed{Step: step}
}

func (d Fixed) Next(*entity.SessionState) entity.StepID { return d.Step }
func (d Fixed) Targets() []entity.StepID                { return []entity.StepID{d.Step} }

// Conditional branches on a predicate over the session state.
type Conditional struct {
	Predicate func(*entity.SessionState) bool
	IfTrue    entity.StepID
	IfFalse   entity.StepID
}

func (d Conditional) Next(state *entity.SessionState) entity.StepID {
	if d.Predicate(state) {
		return d.IfTrue
	}
	return d.IfFalse
}

func (d Conditional) Targets() []entity.StepID {
	return []entity.StepID{d.IfTrue, d.IfFalse}
}

// ConditionalCase pairs a predicate with its target step.
type ConditionalCase struct {
	Predicate func(*entity.SessionState) bool
	Step      entity.StepID
}

// MultiConditional evaluates cases in order, first match wins, falling
// back to Default.
type MultiConditional struct {
	Cases   []ConditionalCase
	Default entity.StepID
}

func (d MultiConditional) Next(state *entity.SessionState) entity.StepID {
	for _, c := range d.Cases {
		if c.Predicate(state) {
			return c.Step
		}
	}
	return d.Default
}

func (d MultiConditional) Targets() []entity.StepID {
	targets := make([]entity.StepID, 0, len(d.Cases)+1)
	for _, c := range d.Cases {
		targets = append(targets, c.Step)
	}
	return append(targets, d.Default)
}

// Step is a static descriptor of one node of the conversation state
// machine. The registry owns all steps; they are read-only after
// startup.
type Step struct {
	ID entity.StepID

	// InitialMessage is emitted when the engine transitions into the
	// step. {name} slots are filled from MessageVars.
	InitialMessage string
	MessageVars    func(state *entity.SessionState) map[string]string

	// Components are the UI affordances the step expects; either the
	// static set or a function of state.
	Components     []entity.ComponentLabel
	ComponentsFunc func(state *entity.SessionState) []entity.ComponentLabel

	// Initialize runs when the engine transitions into this step,
	// before the initial message is rendered.
	Initialize func(state *entity.SessionState) error

	// SaveEvent records the user's input onto the state.
	SaveEvent func(state *entity.SessionState, input entity.UserInput) error

	// Generators run after SaveEvent; GeneratorsByTrigger takes
	// precedence when set, with a missing trigger meaning no messages.
	Generators          []Generator
	GeneratorsByTrigger map[string][]Generator

	// Next picks the following step; NextByTrigger takes precedence
	// when set. A missing trigger leaves the session on this step.
	Next          Decider
	NextByTrigger map[string]Decider

	// UpdatedEditorFields names the side-panel fields the client should
	// refresh after this step.
	UpdatedEditorFields []entity.EditorField
}

// ComponentsFor resolves the step's component set for the given state.
func (s *Step) ComponentsFor(state *entity.SessionState) []entity.ComponentLabel {
	if s.ComponentsFunc != nil {
		return s.ComponentsFunc(state)
	}
	return s.Components
}

// GeneratorsFor resolves the generator list for a trigger.
func (s *Step) GeneratorsFor(trigger string) []Generator {
	if s.GeneratorsByTrigger != nil {
		return s.GeneratorsByTrigger[trigger]
	}
	return s.Generators
}

// DeciderFor resolves the next-step decider for a trigger. The second
// result is false when the trigger is not accepted by this step.
func (s *Step) DeciderFor(trigger string) (Decider, bool) {
	if s.NextByTrigger != nil {
		d, ok := s.NextByTrigger[trigger]
		return d, ok
	}
	if s.Next == nil {
		return nil, false
	}
	return s.Next, true
}

// RenderMessage fills the step's initial message template for the state.
func (s *Step) RenderMessage(state *entity.SessionState) string {
	message := s.InitialMessage
	if s.MessageVars == nil {
		return message
	}
	for name, value := range s.MessageVars(state) {
		message = strings.ReplaceAll(message, "{"+name+"}", value)
	}
	return message
}

// AllTargets collects every step reachable from this step's deciders.
func (s *Step) AllTargets() []entity.StepID {
	var targets []entity.StepID
	if s.Next != nil {
		targets = append(targets, s.Next.Targets()...)
	}
	for _, d := range s.NextByTrigger {
		targets = append(targets, d.Targets()...)
	}
	return targets
}
