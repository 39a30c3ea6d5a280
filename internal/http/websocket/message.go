package websocket

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

type socketMessageType int

const (
	Update socketMessageType = iota
	Command
	Response
	ErrorResponse
	Welcome
)

// ArgumentKind is the JSON type a command argument must decode as.
type ArgumentKind int

const (
	StringArgument ArgumentKind = iota
	NumberArgument
)

func (kind ArgumentKind) String() string {
	switch kind {
	case StringArgument:
		return "string"
	case NumberArgument:
		return "number"
	default:
		return fmt.Sprintf("ArgumentKind(%d)", int(kind))
	}
}

// SocketMessage is a command, update or reply passed through the socket.
// Replies carry the Id of the command they answer; Origin and Target
// identify the client a command came from and the client a reply is for.
type SocketMessage struct {
	Title  string                 `json:"title"`
	Body   map[string]interface{} `json:"arguments"`
	Id     int                    `json:"id"`
	Type   socketMessageType      `json:"type"`
	Origin *uuid.UUID             `json:"-"`
	Target *uuid.UUID             `json:"-"`
}

// ValidateArguments checks that every required argument is present with
// the expected kind. Strings must also be non-empty. All problems are
// reported together, in key order.
func (message *SocketMessage) ValidateArguments(required map[string]ArgumentKind) error {
	keys := make([]string, 0, len(required))
	for key := range required {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		kind := required[key]
		value, ok := message.Body[key]
		if !ok {
			errs = append(errs, fmt.Errorf("argument '%s' is missing", key))
			continue
		}

		switch kind {
		case StringArgument:
			if s, ok := value.(string); !ok || s == "" {
				errs = append(errs, fmt.Errorf("argument '%s' must be a non-empty %s, got %#v", key, kind, value))
			}
		case NumberArgument:
			if _, ok := value.(float64); !ok {
				errs = append(errs, fmt.Errorf("argument '%s' must be a %s, got %#v", key, kind, value))
			}
		default:
			errs = append(errs, fmt.Errorf("argument '%s' has unknown kind %s", key, kind))
		}
	}

	return errors.Join(errs...)
}

// String returns the named argument if it is present as a string.
func (message *SocketMessage) String(key string) (string, bool) {
	s, ok := message.Body[key].(string)
	return s, ok
}

// FormReply returns a new message addressed to the sender of this one,
// carrying its Id. The original arguments are echoed under "command".
func (message *SocketMessage) FormReply(replyTitle string, replyBody map[string]interface{}, replyType socketMessageType) *SocketMessage {
	if replyBody == nil {
		replyBody = make(map[string]interface{}, 1)
	}
	replyBody["command"] = message.Body

	return &SocketMessage{
		Title:  replyTitle,
		Body:   replyBody,
		Type:   replyType,
		Id:     message.Id,
		Target: message.Origin,
	}
}
