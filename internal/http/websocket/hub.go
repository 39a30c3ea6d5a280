package websocket

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hbomb79/Tasaveer/pkg/logger"
)

var socketLogger = logger.Get("WebSocket")

type SocketHandler func(*SocketHub, *SocketMessage) error

// SocketHub is the struct responsible for managing
// the websocket upgrading, connecting, pushing and
// receiving of messages.
type SocketHub struct {
	handlers           map[string]SocketHandler
	upgrader           *websocket.Upgrader
	clients            []*socketClient
	registerCh         chan *socketClient
	deregisterCh       chan *socketClient
	sendCh             chan *SocketMessage
	receiveCh          chan *SocketMessage
	doneCh             chan struct{}
	connectionCallback func() map[string]interface{}
	started            atomic.Bool
	running            atomic.Bool
}

// Returns a new SocketHub with the channels,
// maps and slices initialised to sane starting
// values
func New() *SocketHub {
	return &SocketHub{
		handlers: make(map[string]SocketHandler),
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		sendCh:       make(chan *SocketMessage),
		receiveCh:    make(chan *SocketMessage),
		registerCh:   make(chan *socketClient),
		deregisterCh: make(chan *socketClient),
		doneCh:       make(chan struct{}),
		clients:      make([]*socketClient, 0),
	}
}

// WithConnectionCallback sets a callback that will be executed each time a new client
// connects to this socketHub. This allows the client to be furnished with a payload
// of the servers current state (e.g. an ingest already in progress) without having
// to wait for the next update.
func (hub *SocketHub) WithConnectionCallback(callback func() map[string]interface{}) {
	hub.connectionCallback = callback
}

// Binds a provided particular command to a particular socket handler
func (hub *SocketHub) BindCommand(command string, handler SocketHandler) *SocketHub {
	hub.handlers[command] = handler
	return hub
}

// Start begins the socket hub by listening on all related channels
// for incoming clients and messages. It returns once the context is
// cancelled, closing every client. A hub may only be started once.
func (hub *SocketHub) Start(ctx context.Context) {
	if ctx.Err() != nil {
		socketLogger.Emit(logger.STOP, "Refusing to start socket hub as provided context is already cancelled\n")
		return
	}
	if !hub.started.CompareAndSwap(false, true) {
		socketLogger.Emit(logger.WARNING, "Attempting to start socketHub more than once! Ignoring request.\n")
		return
	}
	hub.running.Store(true)
	socketLogger.Emit(logger.INFO, "Opening SocketHub!\n")

	defer hub.close()
	for {
		select {
		case message := <-hub.sendCh:
			// Send the message provided - either by broadcasting to all, or
			// sending to only the client with a UUID matching the message 'target'
			if message.Target != nil {
				if _, client := hub.findClient(*message.Target); client != nil {
					if err := client.SendMessage(message); err != nil {
						socketLogger.Emit(logger.ERROR, "Failed to send message to target {%v}: %v\n", message.Target, err)
					}
				} else {
					socketLogger.Emit(logger.WARNING, "Attempted to send message to target {%v}, but no matching client was found.\n", message.Target)
				}

				continue
			}

			hub.broadcastMessage(message)
		case message := <-hub.receiveCh:
			go hub.handleMessage(message)
		case client := <-hub.registerCh:
			if idx, _ := hub.findClient(client.id); idx > -1 {
				socketLogger.Emit(logger.ERROR, "Attempted to register client that is already registered (duplicate uuid)! Illegal!\n")
				client.Close()

				continue
			}

			hub.clients = append(hub.clients, client)
			socketLogger.Emit(logger.NEW, "Registered new client {%v}\n", client.id)
		case client := <-hub.deregisterCh:
			if idx, _ := hub.findClient(client.id); idx != -1 {
				hub.clients = append(hub.clients[:idx], hub.clients[idx+1:]...)
				socketLogger.Emit(logger.REMOVE, "Deregistered client {%v}\n", client.id)

				continue
			}

			socketLogger.Emit(logger.WARNING, "Attempted to deregister unknown client {%v}\n", client.id)
		case <-ctx.Done():
			socketLogger.Emit(logger.REMOVE, "Shutting down socket hub! Closing all clients.\n")
			return
		}
	}
}

// Send accepts a socket message and will emit this message on
// the send channel - message is ignored if hub is not running (see Start())
// A message provided that has a Target will only be sent to the client with
// a matching ID
func (hub *SocketHub) Send(message *SocketMessage) {
	if !hub.running.Load() {
		socketLogger.Emit(logger.DEBUG, "Socket hub is offline, dropping message %s\n", message.Title)
		return
	}

	select {
	case hub.sendCh <- message:
	case <-hub.doneCh:
	}
}

// Upgrades a given HTTP request to a websocket and adds the new clients to the hub.
// Returns once the client disconnects.
func (hub *SocketHub) UpgradeToSocket(w http.ResponseWriter, r *http.Request) {
	if !hub.running.Load() {
		socketLogger.Emit(logger.ERROR, "Failed to upgrade incoming HTTP request to a websocket: SocketHub has not been started!\n")
		http.Error(w, "socket hub offline", http.StatusServiceUnavailable)
		return
	}

	// Generate the UUID first - if we do this later and it fails... we've already
	// upgraded the connection to a websocket.
	id, err := uuid.NewRandom()
	if err != nil {
		socketLogger.Emit(logger.ERROR, "Failed to generate UUID for new connection - aborting!\n")
		return
	}

	sock, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		socketLogger.Emit(logger.ERROR, "Failed to upgrade incoming HTTP request to a websocket: %v\n", err)
		return
	}

	client := &socketClient{id: id, socket: sock}
	select {
	case hub.registerCh <- client:
	case <-hub.doneCh:
		client.Close()
		return
	}

	// Send welcome message to this client with the current state
	body := make(map[string]interface{})
	if hub.connectionCallback != nil {
		for k, v := range hub.connectionCallback() {
			body[k] = v
		}
	}
	body["client"] = id

	hub.Send(&SocketMessage{
		Title:  "CONNECTION_ESTABLISHED",
		Body:   body,
		Target: &id,
		Type:   Welcome,
	})

	// Ensure the client is deregistered once its read loop closes, either
	// because the client disconnected or an error occurred.
	defer func() {
		select {
		case hub.deregisterCh <- client:
		case <-hub.doneCh:
		}
		client.Close()
	}()

	if err := client.Read(hub.receiveCh, hub.doneCh); err != nil {
		socketLogger.Emit(logger.DEBUG, "Client {%v} closed: %v\n", client.id, err)
	}
}

// Closes the sockethub by closing all connected clients and sockets
func (hub *SocketHub) close() {
	close(hub.doneCh)
	for _, client := range hub.clients {
		client.Close()
	}

	hub.clients = nil
	hub.running.Store(false)
	socketLogger.Emit(logger.STOP, "Socket hub is now closed!\n")
}

// handleMessage forwards the command to the bound handler if one
// exists. If none exists, the client is sent a failure reply.
func (hub *SocketHub) handleMessage(command *SocketMessage) {
	if command.Type != Command {
		socketLogger.Emit(logger.WARNING, "SocketHub received a message from client {%v} of type {%v} - only commands can be sent to the server!\n", command.Origin, command.Type)
		return
	}

	replyWithError := func(err string) {
		hub.Send(&SocketMessage{
			Title:  "COMMAND_FAILURE",
			Id:     command.Id,
			Target: command.Origin,
			Body:   map[string]interface{}{"command": command.Title, "error": err},
			Type:   ErrorResponse,
		})
	}

	if handler, ok := hub.handlers[command.Title]; ok {
		if err := handler(hub, command); err != nil {
			socketLogger.Emit(logger.ERROR, "Handler for command '%v' returned error - %v\n", command.Title, err)
			replyWithError(err.Error())
		} else {
			socketLogger.Emit(logger.SUCCESS, "Handler for command '%v' executed successfully\n", command.Title)
		}

		return
	}

	replyWithError("Unknown command")
	socketLogger.Emit(logger.WARNING, "No handler found for command '%v'\n", command.Title)
}

// findClient returns the client with the matching uuid and its index in
// the client list, or -1 and nil.
func (hub *SocketHub) findClient(id uuid.UUID) (int, *socketClient) {
	for idx, client := range hub.clients {
		if client.id == id {
			return idx, client
		}
	}

	return -1, nil
}

// broadcastMessage sends the provided message to every connected
// client. A client which cannot be written to is skipped; its read
// loop will deregister it.
func (hub *SocketHub) broadcastMessage(message *SocketMessage) {
	for _, client := range hub.clients {
		if err := client.SendMessage(message); err != nil {
			socketLogger.Emit(logger.WARNING, "Failed to broadcast %s to client {%v}: %v\n", message.Title, client.id, err)
		}
	}
}
