package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ent0n29/calld/internal/modules"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeModulesUpdated MessageType = "modules_updated"
	TypeErrorEvent     MessageType = "error_event"
	TypePing           MessageType = "ping"
	TypePong           MessageType = "pong"
	TypeListModules    MessageType = "list_modules"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ModulesUpdated carries the full module list, never a diff.
type ModulesUpdated struct {
	Type    MessageType          `json:"type"`
	Modules []modules.Descriptor `json:"modules"`
}

func NewModulesUpdated(mods []modules.Descriptor) ModulesUpdated {
	if mods == nil {
		mods = []modules.Descriptor{}
	}
	return ModulesUpdated{Type: TypeModulesUpdated, Modules: mods}
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

func NewErrorEvent(code, detail string) ErrorEvent {
	return ErrorEvent{Type: TypeErrorEvent, Code: code, Detail: detail}
}

type Ping struct {
	Type MessageType `json:"type"`
}

type Pong struct {
	Type MessageType `json:"type"`
}

// ListModules asks the server to resend the current module list.
type ListModules struct {
	Type MessageType `json:"type"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypePing:
		return Ping{Type: TypePing}, nil
	case TypeListModules:
		return ListModules{Type: TypeListModules}, nil
	case "":
		return nil, errors.New("missing message type")
	default:
		return nil, ErrUnsupportedType
	}
}
