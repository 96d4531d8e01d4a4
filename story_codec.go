/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	tagJoin             = "join"
	tagStartGame        = "start_game"
	tagSubmitStory      = "submit_story"
	tagRequestReveal    = "request_reveal"
	tagNextStoryTrigger = "next_story_trigger"
	tagPing             = "ping"
)

const (
	joinTypeCreate = "create"
	joinTypeJoin   = "join"
)

var (
	errEmptyFrame      = errors.New("empty frame")
	errMissingType     = errors.New("missing type")
	errUnknownCommand  = errors.New("unknown command")
	errInvalidJoinType = errors.New("invalid join type")
)

// Command is a decoded client message. The set of implementations is closed.
type Command interface {
	Tag() string
	isCommand()
}

// Messages coming from clients
type JoinCommand struct {
	JoinType string `json:"joinType"` // "create" or "join"
	Name     string `json:"name"`
	Room     string `json:"room"`
}

type StartGameCommand struct{}

type SubmitStoryCommand struct {
	Story string `json:"story"`
}

type RequestRevealCommand struct{}

type NextStoryTriggerCommand struct{}

type PingCommand struct{}

func (*JoinCommand) Tag() string             { return tagJoin }
func (*StartGameCommand) Tag() string        { return tagStartGame }
func (*SubmitStoryCommand) Tag() string      { return tagSubmitStory }
func (*RequestRevealCommand) Tag() string    { return tagRequestReveal }
func (*NextStoryTriggerCommand) Tag() string { return tagNextStoryTrigger }
func (*PingCommand) Tag() string             { return tagPing }

func (*JoinCommand) isCommand()             {}
func (*StartGameCommand) isCommand()        {}
func (*SubmitStoryCommand) isCommand()      {}
func (*RequestRevealCommand) isCommand()    {}
func (*NextStoryTriggerCommand) isCommand() {}
func (*PingCommand) isCommand()             {}

// commandTypes maps each wire tag to a constructor for its payload.
var commandTypes = map[string]func() Command{
	tagJoin:             func() Command { return &JoinCommand{} },
	tagStartGame:        func() Command { return &StartGameCommand{} },
	tagSubmitStory:      func() Command { return &SubmitStoryCommand{} },
	tagRequestReveal:    func() Command { return &RequestRevealCommand{} },
	tagNextStoryTrigger: func() Command { return &NextStoryTriggerCommand{} },
	tagPing:             func() Command { return &PingCommand{} },
}

type envelope struct {
	Type string `json:"type"`
}

// decodeCommand parses one inbound frame. Unknown tags yield errUnknownCommand,
// so callers can tell them apart from malformed payloads.
func decodeCommand(frame []byte) (Command, error) {
	if len(frame) == 0 {
		return nil, errEmptyFrame
	}

	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return nil, errMissingType
	}

	newCommand, ok := commandTypes[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errUnknownCommand, env.Type)
	}

	cmd := newCommand()
	if err := json.Unmarshal(frame, cmd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}

	if join, ok := cmd.(*JoinCommand); ok {
		switch join.JoinType {
		case joinTypeCreate, joinTypeJoin:
		default:
			return nil, fmt.Errorf("%w: %q", errInvalidJoinType, join.JoinType)
		}
	}

	return cmd, nil
}

// Messages sent to clients

// ErrorMessage is sent only to the originating client. Type names the
// command that failed.
type ErrorMessage struct {
	Type    string `json:"type"`
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func newErrorMessage(tag string, err error) ErrorMessage {
	return ErrorMessage{
		Type:    tag,
		Error:   true,
		Message: errorText(err),
	}
}

// SessionInfoMessage tells a client which player and room it now represents.
type SessionInfoMessage struct {
	Type        string `json:"type"` // "session_info"
	Room        string `json:"room"`
	Name        string `json:"name"`
	IsHost      bool   `json:"is_host"`
	Reconnected bool   `json:"reconnected"`
}

type LobbyPlayer struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Submitted bool   `json:"submitted,omitempty"`
}

// LobbyStateMessage is broadcast whenever the roster or round progress changes.
type LobbyStateMessage struct {
	Type    string        `json:"type"` // "lobby_state"
	Room    string        `json:"room"`
	Host    string        `json:"host"`
	Phase   string        `json:"phase"` // "open", "playing", "reviewing"
	Round   int           `json:"round,omitempty"`
	Rounds  int           `json:"rounds,omitempty"`
	Players []LobbyPlayer `json:"players"`
}

type GameStartedMessage struct {
	Type    string   `json:"type"` // "game_started"
	Rounds  int      `json:"rounds"`
	Players []string `json:"players"`
}

// NextStoryMessage asks one player to continue a story. Previous holds the
// fragment written last round by the preceding player.
type NextStoryMessage struct {
	Type      string `json:"type"` // "next_story"
	Round     int    `json:"round"`
	Rounds    int    `json:"rounds"`
	Previous  string `json:"previous"`
	Submitted bool   `json:"submitted,omitempty"`
}

type GameOverMessage struct {
	Type    string `json:"type"` // "game_over"
	Stories int    `json:"stories"`
}

type RevealFragment struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

// RevealMessage carries one fully assembled story.
type RevealMessage struct {
	Type      string           `json:"type"` // "reveal"
	Index     int              `json:"index"`
	Total     int              `json:"total"`
	Starter   string           `json:"starter"`
	Story     string           `json:"story"`
	Fragments []RevealFragment `json:"fragments"`
}

type PingMessage struct {
	Type string `json:"type"` // "ping"
}

func encodeEvent(event any) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", event, err)
	}
	return data, nil
}
