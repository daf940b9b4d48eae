package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/grantwise/coach-backend/internal/entity"
	"github.com/grantwise/coach-backend/internal/store"
)

// apologyMessage is streamed instead of generator output when an event
// cannot be processed. The session state is left untouched in that case.
const apologyMessage = "I am sorry, something went wrong while processing that. Please try again."

// streamBuffer bounds the token channel handed to generators.
const streamBuffer = 64

// Engine drives the conversation state machine. Events for the same
// session are serialized; the state is written to the store only after
// every generator of an event finished successfully.
type Engine struct {
	registry *Registry
	store    store.Store
	locks    sync.Map
}

func NewEngine(registry *Registry, st store.Store) *Engine {
	return &Engine{registry: registry, store: st}
}

func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// resetPersistedInput rewrites the stored session with a cleared last
// input. Called on event failure: the stored state still carries the
// trigger of the previous successful event, and if the current step
// accepts it too, a following Advance would move the session despite
// the failure.
func (e *Engine) resetPersistedInput(ctx context.Context, sessionID string, log *zap.Logger) {
	stored, err := e.store.Load(ctx, sessionID)
	if err != nil {
		log.Error("reload session after failed event", zap.Error(err))
		return
	}
	stored.LastUserInput = entity.NoInput()
	if err := e.store.Upsert(ctx, stored); err != nil {
		log.Error("clear last input after failed event", zap.Error(err))
	}
}

// loadOrCreate fetches the session, creating and persisting a fresh one
// at the start step when the ID is unknown.
func (e *Engine) loadOrCreate(ctx context.Context, sessionID string) (*entity.SessionState, error) {
	state, err := e.store.Load(ctx, sessionID)
	if err == nil {
		return state, nil
	}
	if !errors.Is(err, entity.ErrSessionNotFound) {
		return nil, err
	}
	state = entity.NewSessionState(sessionID)
	if err := e.store.Upsert(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (e *Engine) descriptor(state *entity.SessionState, step *Step, fields []entity.EditorField) *entity.NextStepDescriptor {
	d := &entity.NextStepDescriptor{
		InitialMessage: step.RenderMessage(state),
		Components:     step.ComponentsFor(state),
	}
	if len(fields) > 0 {
		d.UpdatedContent = buildUpdatedContent(state, fields)
	}
	return d
}

func buildUpdatedContent(state *entity.SessionState, fields []entity.EditorField) *entity.UpdatedContent {
	q := state.CurrentQuestion()
	if q == nil {
		return nil
	}
	uc := &entity.UpdatedContent{QuestionIndex: len(state.Questions) - 1}
	for _, f := range fields {
		switch f {
		case entity.EditorQuestion:
			uc.Question = q.Question
		case entity.EditorWordLimit:
			uc.WordLimit = q.WordLimit
		case entity.EditorAnswer:
			uc.Answer = q.CurrentAnswer()
		}
	}
	return uc
}

// NewSession creates or resets the session and returns the opening step.
func (e *Engine) NewSession(ctx context.Context, sessionID string) (*entity.NextStepDescriptor, error) {
	mu := e.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	state := entity.NewSessionState(sessionID)
	if err := e.store.Upsert(ctx, state); err != nil {
		return nil, err
	}
	step, err := e.registry.Step(entity.StepStart)
	if err != nil {
		return nil, err
	}
	return e.descriptor(state, step, nil), nil
}

// HandleEvent records the user input on the session and streams the
// resulting assistant messages. The returned channel is closed when the
// event is fully processed; the caller must drain it. On any failure the
// channel carries an apology and the stored state is left unchanged.
func (e *Engine) HandleEvent(ctx context.Context, sessionID string, input entity.UserInput) (<-chan string, error) {
	mu := e.sessionLock(sessionID)
	mu.Lock()

	state, err := e.loadOrCreate(ctx, sessionID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}
	step, err := e.registry.Step(state.CurrentStepID)
	if err != nil {
		mu.Unlock()
		return nil, err
	}

	log := ctxzap.Extract(ctx).With(
		zap.String("session_id", sessionID),
		zap.String("step", string(state.CurrentStepID)),
		zap.String("trigger", input.Trigger()),
	)

	state.LastUserInput = input
	out := make(chan string, streamBuffer)

	if step.SaveEvent != nil && input.Kind != entity.InputNone {
		if err := step.SaveEvent(state, input); err != nil {
			log.Warn("save event rejected", zap.Error(err))
			go func() {
				defer mu.Unlock()
				defer close(out)
				out <- apologyMessage
				e.resetPersistedInput(ctx, sessionID, log)
			}()
			return out, nil
		}
	}

	gens := step.GeneratorsFor(input.Trigger())
	go func() {
		defer mu.Unlock()
		defer close(out)
		for _, g := range gens {
			if g == nil {
				continue
			}
			if err := g(ctx, state, out); err != nil {
				log.Error("generator failed", zap.Error(err))
				e.resetPersistedInput(ctx, sessionID, log)
				select {
				case out <- apologyMessage:
				case <-ctx.Done():
				}
				return
			}
		}
		state.UpdatedAt = time.Now().UTC()
		if err := e.store.Upsert(ctx, state); err != nil {
			log.Error("persist session", zap.Error(err))
			e.resetPersistedInput(ctx, sessionID, log)
			select {
			case out <- apologyMessage:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

// Advance transitions the session to the next step chosen by the last
// user input and returns the new step's descriptor. An input the current
// step does not accept leaves the session in place and returns the
// current step again. The editor-field snapshot always reflects the step
// that handled the input.
func (e *Engine) Advance(ctx context.Context, sessionID string) (*entity.NextStepDescriptor, error) {
	mu := e.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	state, err := e.loadOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	step, err := e.registry.Step(state.CurrentStepID)
	if err != nil {
		return nil, err
	}

	fields := step.UpdatedEditorFields

	decider, ok := step.DeciderFor(state.LastUserInput.Trigger())
	if !ok {
		return e.descriptor(state, step, fields), nil
	}

	nextID := decider.Next(state)
	next, err := e.registry.Step(nextID)
	if err != nil {
		return nil, err
	}

	state.CurrentStepID = nextID
	if next.Initialize != nil {
		if err := next.Initialize(state); err != nil {
			return nil, err
		}
	}
	state.UpdatedAt = time.Now().UTC()
	if err := e.store.Upsert(ctx, state); err != nil {
		return nil, err
	}
	return e.descriptor(state, next, fields), nil
}

// State returns the stored session state, for export and inspection.
func (e *Engine) State(ctx context.Context, sessionID string) (*entity.SessionState, error) {
	return e.store.Load(ctx, sessionID)
}
