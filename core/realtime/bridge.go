package realtime

import (
	"encoding/json"

	"versionvibe/core/comments"
	"versionvibe/logger"
	"versionvibe/model"
)

// Bridge feeds a project scope's comment events into a comment
// engine. The subscription is project-wide, not filtered to one
// version server-side, so the bridge self-filters by the engine's
// active version before applying anything.
type Bridge struct {
	engine *comments.Engine
	cancel func()
	done   chan struct{}
}

// NewBridge subscribes the engine to the hub scope and starts
// consuming. Call Close to detach.
func NewBridge(hub *Hub, scope string, engine *comments.Engine) *Bridge {
	events, cancel := hub.Subscribe(scope)
	b := &Bridge{
		engine: engine,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(b.done)
		for event := range events {
			b.handle(event)
		}
	}()

	return b
}

func (b *Bridge) handle(event Event) {
	if event.Entity != EntityComments {
		return
	}

	var payload model.Comment
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		logger.Warn("malformed comment event payload", logger.ErrorField(err))
		return
	}

	// Cross-version events are discarded here; they must not reach the
	// engine's collection or its count callbacks.
	if payload.VersionID != b.engine.Version() {
		return
	}

	var kind comments.ChangeKind
	switch event.Action {
	case ActionInsert:
		kind = comments.ChangeInsert
	case ActionUpdate:
		kind = comments.ChangeUpdate
	case ActionDelete:
		kind = comments.ChangeDelete
	default:
		logger.Warn("unknown comment event action", logger.String("action", event.Action))
		return
	}

	b.engine.ApplyChange(comments.Change{Kind: kind, Comment: &payload})
}

// Close detaches the bridge from the hub and waits for the consumer
// goroutine to exit.
func (b *Bridge) Close() {
	b.cancel()
	<-b.done
}
