package main

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	maxNameLength     = 32
	maxRoomLength     = 32
	maxStoryLength    = 1000
	maxCodeCollisions = 16
)

var (
	errInvalidRoom    = errors.New("room code is invalid")
	errInvalidName    = errors.New("name is invalid")
	errNameTooLong    = errors.New("name is too long")
	errAlreadyJoined  = errors.New("connection already joined a room")
	errEmptyStory     = errors.New("story is empty")
	errStoryTooLong   = errors.New("story is too long")
	errCodeExhausted  = errors.New("no free room code found")
	errCodeGeneration = errors.New("room code generation failed")
)

type handlerFunc func(c *Client, cmd Command)

// Dispatcher routes decoded commands to their handler. The table is built
// once and never modified, so it is read without locking.
type Dispatcher struct {
	handlers map[string]handlerFunc
}

// handle adapts a handler for one concrete command type. A command of any
// other type is ignored.
func handle[T Command](fn func(*Client, T)) handlerFunc {
	return func(c *Client, cmd Command) {
		typed, ok := cmd.(T)
		if !ok {
			return
		}
		fn(c, typed)
	}
}

func newDispatcher(s *StoryServer) *Dispatcher {
	return &Dispatcher{
		handlers: map[string]handlerFunc{
			tagJoin:             handle(s.handleJoin),
			tagStartGame:        handle(s.handleStartGame),
			tagSubmitStory:      handle(s.handleSubmitStory),
			tagRequestReveal:    handle(s.handleRequestReveal),
			tagNextStoryTrigger: handle(s.handleNextStoryTrigger),
			tagPing:             handle(s.handlePing),
		},
	}
}

// dispatch decodes frame and runs its handler. The returned error only
// describes a dropped frame; nothing is sent back to the client for it.
func (d *Dispatcher) dispatch(c *Client, frame []byte) error {
	cmd, err := decodeCommand(frame)
	if err != nil {
		return err
	}

	h, ok := d.handlers[cmd.Tag()]
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownCommand, cmd.Tag())
	}
	h(c, cmd)

	return nil
}

func normalizeInput(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// normalizeRoom folds a room code to upper case, the alphabet generated
// codes use, so typed codes match regardless of case.
func normalizeRoom(s string) string {
	return strings.ToUpper(normalizeInput(s))
}

func validateName(raw string) (string, error) {
	name := normalizeInput(raw)
	switch {
	case name == "":
		return "", errInvalidName
	case utf8.RuneCountInString(name) > maxNameLength:
		return "", errNameTooLong
	}
	return name, nil
}

func validateStory(raw string) (string, error) {
	story := strings.TrimSpace(raw)
	switch {
	case story == "":
		return "", errEmptyStory
	case utf8.RuneCountInString(story) > maxStoryLength:
		return "", errStoryTooLong
	}
	return story, nil
}

func (s *StoryServer) reject(c *Client, tag string, err error) {
	logf(s.cfg, "GAMES: Rejected %s from %s: %v", tag, c.id, err)
	c.queue(newErrorMessage(tag, err))
}

// resolve finds the player behind c and the room it belongs to.
func (s *StoryServer) resolve(c *Client) (*Player, *Lobby, bool) {
	p, ok := s.connections.lookup(c)
	if !ok {
		return nil, nil, false
	}

	l, ok := s.lobbies.get(p.Room)
	if !ok {
		return nil, nil, false
	}

	return p, l, true
}

// generateCode returns a code no live room uses.
func (s *StoryServer) generateCode() (string, error) {
	for range maxCodeCollisions {
		code, err := s.newCode()
		if err != nil {
			return "", fmt.Errorf("%w: %w", errCodeGeneration, err)
		}
		if !s.lobbies.exists(code) {
			return code, nil
		}
	}
	return "", errCodeExhausted
}

func (s *StoryServer) handleJoin(c *Client, cmd *JoinCommand) {
	if _, ok := s.connections.lookup(c); ok {
		s.reject(c, tagJoin, errAlreadyJoined)
		return
	}

	switch cmd.JoinType {
	case joinTypeCreate:
		s.createRoom(c, cmd)
	case joinTypeJoin:
		s.joinRoom(c, cmd)
	}
}

func (s *StoryServer) createRoom(c *Client, cmd *JoinCommand) {
	name, err := validateName(cmd.Name)
	if err != nil {
		s.reject(c, tagJoin, err)
		return
	}

	code := normalizeRoom(cmd.Room)
	switch {
	case code == "":
		code, err = s.generateCode()
		if err != nil {
			errorf(s.cfg, "ROOMS: %v", err)
			s.reject(c, tagJoin, err)
			return
		}
	case utf8.RuneCountInString(code) > maxRoomLength:
		s.reject(c, tagJoin, errInvalidRoom)
		return
	}

	host := newPlayer(name, code)
	host.attach(c)

	l := newLobby(code, host)
	if err := l.open(s.lobbies); err != nil {
		s.reject(c, tagJoin, err)
		return
	}
	s.connections.associate(c, host)

	logf(s.cfg, "ROOMS: Player %q created room %s (%d rooms open)", name, code, s.lobbies.count())
}

func (s *StoryServer) joinRoom(c *Client, cmd *JoinCommand) {
	code := normalizeRoom(cmd.Room)
	if code == "" {
		s.reject(c, tagJoin, errInvalidRoom)
		return
	}

	l, ok := s.lobbies.get(code)
	if !ok {
		s.reject(c, tagJoin, errRoomNotFound)
		return
	}

	name, err := validateName(cmd.Name)
	if err != nil {
		s.reject(c, tagJoin, err)
		return
	}

	p, err := l.join(c, name)
	if err != nil {
		s.reject(c, tagJoin, err)
		return
	}
	s.connections.associate(c, p)

	logf(s.cfg, "ROOMS: Player %q joined room %s", name, code)
}

func (s *StoryServer) handleStartGame(c *Client, _ *StartGameCommand) {
	p, l, ok := s.resolve(c)
	if !ok {
		return
	}

	if l.startGame(p) {
		logf(s.cfg, "GAMES: Game started in room %s by %q", l.code, p.Name)
	}
}

func (s *StoryServer) handleSubmitStory(c *Client, cmd *SubmitStoryCommand) {
	p, l, ok := s.resolve(c)
	if !ok {
		return
	}

	story, err := validateStory(cmd.Story)
	if err != nil {
		s.reject(c, tagSubmitStory, err)
		return
	}

	if l.acceptStory(p, story) {
		logf(s.cfg, "GAMES: Round completed in room %s", l.code)
	}
}

// handleRequestReveal advances the reveal cursor. Only the host may, and only
// once the game is over with stories left to show; anything else is ignored.
// The whole check runs under the room lock so two requests cannot both pass it.
func (s *StoryServer) handleRequestReveal(c *Client, _ *RequestRevealCommand) {
	p, l, ok := s.resolve(c)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || p != l.host {
		return
	}

	game := l.gameLocked()
	if game == nil || !game.isGameOver() || game.allStoriesRevealed() {
		return
	}

	reveal := game.advanceReveal()
	l.sendLocked(reveal)

	logf(s.cfg, "GAMES: Revealed story %d/%d in room %s", reveal.Index+1, reveal.Total, l.code)
}

func (s *StoryServer) handleNextStoryTrigger(c *Client, _ *NextStoryTriggerCommand) {
	_, l, ok := s.resolve(c)
	if !ok {
		return
	}

	l.sendNextStory()
}

func (s *StoryServer) handlePing(c *Client, _ *PingCommand) {
	c.queue(PingMessage{Type: tagPing})
}

// disconnect runs once per connection when it closes.
func (s *StoryServer) disconnect(c *Client) {
	p, ok := s.connections.lookup(c)
	s.connections.remove(c)
	if !ok {
		return
	}

	l, ok := s.lobbies.get(p.Room)
	if !ok {
		return
	}

	if l.leave(c, p, s.lobbies) {
		logf(s.cfg, "ROOMS: Closed room %s (%d rooms open, %d players connected)",
			p.Room,
			s.lobbies.count(),
			s.connections.count(),
		)
		return
	}
	logf(s.cfg, "ROOMS: Player %q left room %s", p.Name, p.Room)
}
