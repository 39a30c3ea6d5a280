package api

import (
	"context"
	"fmt"

	"github.com/hbomb79/Tasaveer/internal/api/ingests"
	"github.com/hbomb79/Tasaveer/internal/event"
	"github.com/hbomb79/Tasaveer/internal/http/websocket"
	"github.com/hbomb79/Tasaveer/internal/ingest"
	"github.com/hbomb79/Tasaveer/pkg/logger"
)

const (
	TITLE_INGEST_STATUS = "INGEST_STATUS"
	TITLE_INGEST_LOG    = "INGEST_LOG"
	TITLE_TAGS_UPDATE   = "TAGS_UPDATE"

	broadcastQueueSize = 512
)

type (
	TagsUpdate struct {
		TagId string `json:"tag_id"`
	}

	// broadcaster relays events from the event bus to every connected
	// socket client. Events are queued by a synchronous bus handler so
	// that their order is kept; if the queue is full the event is dropped
	// rather than stalling the dispatcher.
	broadcaster struct {
		socketHub *websocket.SocketHub
		queue     chan event.HandlerEvent
	}
)

func newBroadcaster(socketHub *websocket.SocketHub, bus event.EventHandler) *broadcaster {
	b := &broadcaster{socketHub: socketHub, queue: make(chan event.HandlerEvent, broadcastQueueSize)}
	for _, ev := range []event.Event{event.INGEST_STATUS, event.INGEST_LOG, event.TAGS_UPDATE} {
		bus.RegisterHandlerFunction(ev, b.enqueue)
	}

	return b
}

func (b *broadcaster) enqueue(ev event.Event, payload event.Payload) {
	select {
	case b.queue <- event.HandlerEvent{Event: ev, Payload: payload}:
	default:
		log.Emit(logger.WARNING, "Broadcast queue full, dropping %s event\n", ev)
	}
}

// Run relays queued events until the context is cancelled.
func (b *broadcaster) Run(ctx context.Context) {
	for {
		select {
		case ev := <-b.queue:
			b.handle(ev)
		case <-ctx.Done():
			return
		}
	}
}

func (b *broadcaster) handle(ev event.HandlerEvent) {
	switch payload := ev.Payload.(type) {
	case event.StatusChange:
		b.broadcast(TITLE_INGEST_STATUS, payload)
	case event.LogBatch:
		b.broadcast(TITLE_INGEST_LOG, payload)
	case string:
		b.broadcast(TITLE_TAGS_UPDATE, TagsUpdate{TagId: payload})
	default:
		log.Emit(logger.WARNING, "No broadcast defined for %s payload %T\n", ev.Event, ev.Payload)
	}
}

func (b *broadcaster) broadcast(title string, update any) {
	b.socketHub.Send(&websocket.SocketMessage{
		Title: title,
		Body:  map[string]interface{}{"arguments": update},
		Type:  websocket.Update,
	})
}

// bindCommands exposes the ingest controls over the socket so that a
// client already connected for updates need not open a second channel.
func bindCommands(hub *websocket.SocketHub, service ingests.Service) {
	hub.WithConnectionCallback(func() map[string]interface{} {
		return map[string]interface{}{"ingest": service.Status()}
	})

	hub.BindCommand("INGEST_STATUS", func(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
		hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]interface{}{"payload": service.Status()}, websocket.Response))
		return nil
	})

	hub.BindCommand("INGEST_START", func(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
		if err := message.ValidateArguments(map[string]websocket.ArgumentKind{
			"source":      websocket.StringArgument,
			"destination": websocket.StringArgument,
		}); err != nil {
			return err
		}

		var request ingest.Request
		request.Source, _ = message.String("source")
		request.Destination, _ = message.String("destination")
		request.DateFormat, _ = message.String("date_format")

		id, err := service.Start(request)
		if err != nil {
			return fmt.Errorf("failed to start ingest - %w", err)
		}

		hub.Send(message.FormReply("COMMAND_SUCCESS", map[string]interface{}{"payload": id}, websocket.Response))
		return nil
	})

	hub.BindCommand("INGEST_CANCEL", func(hub *websocket.SocketHub, message *websocket.SocketMessage) error {
		if err := service.Cancel(); err != nil {
			return fmt.Errorf("failed to cancel ingest - %w", err)
		}

		hub.Send(message.FormReply("COMMAND_SUCCESS", nil, websocket.Response))
		return nil
	})
}
