// A collection of event names and common methods used to handle the events, typically
// redirecting the handling to a service method or other method via the `Handler` interface.
package event

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/hbomb79/Tasaveer/pkg/logger"
)

var log = logger.Get("EventBus")

// Events emitted by the ingest pipeline and tag store which observers (the
// CLI, the websocket hub, the folder watcher) may listen for.
type (
	Event         string
	Payload       any
	HandlerMethod func(Event, Payload)

	HandlerChannel chan HandlerEvent
	HandlerEvent   struct {
		Event   Event
		Payload Payload
	}

	// StatusChange is the payload of INGEST_STATUS.
	StatusChange struct {
		RunID   uuid.UUID `json:"run_id"`
		Status  string    `json:"status"`
		Message string    `json:"message,omitempty"`
	}

	// LogBatch is the payload of INGEST_LOG: one flush of the log aggregator.
	LogBatch struct {
		RunID uuid.UUID `json:"run_id"`
		Lines []string  `json:"lines"`
	}

	EventDispatcher interface {
		Dispatch(Event, Payload)
	}

	EventHandler interface {
		RegisterAsyncHandlerFunction(Event, HandlerMethod)
		RegisterHandlerFunction(Event, HandlerMethod)
		RegisterHandlerChannel(HandlerChannel, ...Event)
	}

	EventCoordinator interface {
		EventDispatcher
		EventHandler
	}

	eventHandler struct {
		sync.RWMutex
		fnHandlers   map[Event][]handlerMethod
		chanHandlers map[Event][]HandlerChannel
	}

	handlerMethod struct {
		handle HandlerMethod
		async  bool
	}
)

const (
	INGEST_STATUS Event = "ingest:status"
	INGEST_LOG    Event = "ingest:log"

	TAGS_UPDATE Event = "tags:update"
)

func New() EventCoordinator {
	return &eventHandler{
		fnHandlers:   make(map[Event][]handlerMethod),
		chanHandlers: make(map[Event][]HandlerChannel),
	}
}

// RegisterHandlerChannel takes an event type and a channel and will send Event messages on
// the channel any time a Dispatch for the provided event occurs.
// This method can be used multiple times for different events on the same channel.
//
// If the channel is BLOCKED when the event bus attempts to send the message on the handler channel,
// then the thread dispatching the event will also be BLOCKED. Buffer handler channels
// appropriately to avoid dispatcher-side blocking.
func (handler *eventHandler) RegisterHandlerChannel(handle HandlerChannel, events ...Event) {
	handler.Lock()
	defer handler.Unlock()
	for _, event := range events {
		handler.chanHandlers[event] = append(handler.chanHandlers[event], handle)
	}
}

// RegisterHandlerFunction stores a handler which is called synchronously with the payload
// whenever the event is dispatched. It must return quickly.
func (handler *eventHandler) RegisterHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, false})
}

// RegisterAsyncHandlerFunction stores a handler which is called inside of a goroutine
// whenever the event is dispatched.
func (handler *eventHandler) RegisterAsyncHandlerFunction(event Event, handle HandlerMethod) {
	handler.registerHandlerMethod(event, handlerMethod{handle, true})
}

func (handler *eventHandler) registerHandlerMethod(event Event, handle handlerMethod) {
	handler.Lock()
	defer handler.Unlock()
	handler.fnHandlers[event] = append(handler.fnHandlers[event], handle)
}

// Dispatch validates the payload and hands it to every handler registered for the event.
// Note that this method WILL block if a synchronous handler function is blocking, or if channel
// handlers are blocked.
func (handler *eventHandler) Dispatch(event Event, payload Payload) {
	if err := handler.validatePayload(event, payload); err != nil {
		log.Emit(logger.FATAL, "Dispatch for event %v FAILED validation: %v\n", event, err)
		return
	}

	handler.RLock()
	fnHandles := handler.fnHandlers[event]
	chanHandles := handler.chanHandlers[event]
	handler.RUnlock()

	for _, handle := range fnHandles {
		if handle.async {
			go handle.handle(event, payload)
		} else {
			handle.handle(event, payload)
		}
	}

	ev := HandlerEvent{event, payload}
	for _, handle := range chanHandles {
		handle <- ev
	}
}

// validatePayload ensures that the payload provided is valid for the event specified.
func (handler *eventHandler) validatePayload(event Event, payload Payload) error {
	var payloadTypeName string
	if t := reflect.TypeOf(payload); t != nil {
		payloadTypeName = t.Name()
	} else {
		payloadTypeName = "Nil"
	}

	switch event {
	case INGEST_STATUS:
		if _, ok := payload.(StatusChange); !ok {
			return fmt.Errorf("illegal payload (type %s) for %s event. Expected StatusChange payload", payloadTypeName, event)
		}

		return nil
	case INGEST_LOG:
		if _, ok := payload.(LogBatch); !ok {
			return fmt.Errorf("illegal payload (type %s) for %s event. Expected LogBatch payload", payloadTypeName, event)
		}

		return nil
	case TAGS_UPDATE:
		if _, ok := payload.(string); !ok {
			return fmt.Errorf("illegal payload (type %s) for %s event. Expected tag ID string payload", payloadTypeName, event)
		}

		return nil
	}

	return errors.New("event type not recognized for validation")
}
