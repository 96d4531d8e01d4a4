package main

import (
	"errors"
	"sync"

	"go.uber.org/multierr"
)

const (
	minPlayers = 2
	maxPlayers = 32
)

var (
	errNameTaken      = errors.New("player name already exists")
	errGameInProgress = errors.New("game already in progress")
	errRoomFull       = errors.New("room is full")
)

// lobbyPhase is one of openPhase, playingPhase or reviewingPhase. Only the
// game-bearing phases carry a Game, so a story cannot reach an open room.
type lobbyPhase interface {
	name() string
}

type openPhase struct{}

type playingPhase struct {
	game *Game
}

type reviewingPhase struct {
	game *Game
}

func (openPhase) name() string      { return "open" }
func (playingPhase) name() string   { return "playing" }
func (reviewingPhase) name() string { return "reviewing" }

// Lobby is one room. Every field is guarded by mu; methods with the Locked
// suffix expect the caller to hold it.
type Lobby struct {
	mu sync.Mutex

	code    string
	players []*Player
	host    *Player
	phase   lobbyPhase
	closed  bool
}

func newLobby(code string, host *Player) *Lobby {
	return &Lobby{
		code:    code,
		players: []*Player{host},
		host:    host,
		phase:   openPhase{},
	}
}

func (l *Lobby) findPlayerLocked(name string) *Player {
	for _, p := range l.players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (l *Lobby) hasPlayerLocked(p *Player) bool {
	for _, existing := range l.players {
		if existing == p {
			return true
		}
	}
	return false
}

// addPlayerLocked appends p unless it is already on the roster.
func (l *Lobby) addPlayerLocked(p *Player) {
	if l.hasPlayerLocked(p) {
		return
	}
	l.players = append(l.players, p)
}

// removePlayerLocked drops p from the roster. Only open rooms free slots;
// once a game started the entry stays so the player count is fixed.
func (l *Lobby) removePlayerLocked(p *Player) {
	if _, ok := l.phase.(openPhase); !ok {
		return
	}

	dst := l.players[:0]
	for _, existing := range l.players {
		if existing != p {
			dst = append(dst, existing)
		}
	}
	clear(l.players[len(dst):])
	l.players = dst

	if l.host == p {
		l.host = nil
		if len(l.players) > 0 {
			l.host = l.players[0]
		}
	}
}

func (l *Lobby) connectedCountLocked() int {
	count := 0
	for _, p := range l.players {
		if p.connected {
			count++
		}
	}
	return count
}

func (l *Lobby) gameLocked() *Game {
	switch phase := l.phase.(type) {
	case playingPhase:
		return phase.game
	case reviewingPhase:
		return phase.game
	}
	return nil
}

// join attaches c to the player called name, reclaiming a disconnected
// player of that name if there is one.
func (l *Lobby) join(c *Client, name string) (*Player, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, errRoomNotFound
	}

	p := l.findPlayerLocked(name)
	switch {
	case p != nil && p.connected:
		return nil, errNameTaken
	case p != nil:
		p.attach(c)
		l.sendSessionInfoLocked(p, true)
		l.broadcastStateLocked()
		l.resyncLocked(p)
		return p, nil
	}

	if _, ok := l.phase.(openPhase); !ok {
		return nil, errGameInProgress
	}
	if len(l.players) >= maxPlayers {
		return nil, errRoomFull
	}

	p = newPlayer(name, l.code)
	p.attach(c)
	l.addPlayerLocked(p)
	l.sendSessionInfoLocked(p, false)
	l.broadcastStateLocked()

	return p, nil
}

// open registers a freshly created room and greets its host. The room is
// locked while it is published so the host hears about it before anyone else
// can join.
func (l *Lobby) open(lobbies *lobbyRegistry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := lobbies.create(l); err != nil {
		return err
	}

	l.sendSessionInfoLocked(l.host, false)
	l.broadcastStateLocked()

	return nil
}

// leave runs when c closes. It reports whether the room emptied and was
// closed; the caller holds no lock, and the registry entry is dropped before
// mu is released so a racing join sees either a live room or none.
func (l *Lobby) leave(c *Client, p *Player, lobbies *lobbyRegistry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || p.client != c || !l.hasPlayerLocked(p) {
		return false
	}

	p.detach()
	l.removePlayerLocked(p)

	if l.connectedCountLocked() == 0 {
		l.closed = true
		lobbies.remove(l.code, l)
		return true
	}

	l.broadcastStateLocked()
	return false
}

// startGame is a no-op unless requester is the host, the room is open (or
// finished revealing) and enough players are connected.
func (l *Lobby) startGame(requester *Player) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || requester != l.host || l.connectedCountLocked() < minPlayers {
		return false
	}

	switch phase := l.phase.(type) {
	case openPhase:
	case reviewingPhase:
		if !phase.game.allStoriesRevealed() {
			return false
		}
		l.pruneDisconnectedLocked()
	default:
		return false
	}

	game := newGame(l.players)
	l.phase = playingPhase{game: game}

	names := make([]string, 0, len(l.players))
	for _, p := range l.players {
		names = append(names, p.Name)
	}
	l.sendLocked(GameStartedMessage{
		Type:    "game_started",
		Rounds:  game.rounds(),
		Players: names,
	})
	l.broadcastStateLocked()

	return true
}

func (l *Lobby) pruneDisconnectedLocked() {
	l.phase = openPhase{}
	for _, p := range append([]*Player(nil), l.players...) {
		if !p.connected {
			l.removePlayerLocked(p)
		}
	}
}

// acceptStory forwards text to the running game. It reports whether the
// submission completed a round.
func (l *Lobby) acceptStory(p *Player, text string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	phase, ok := l.phase.(playingPhase)
	if !ok || l.closed {
		return false
	}

	accepted, roundComplete := phase.game.acceptStory(p, text)
	if !accepted {
		return false
	}

	if !roundComplete {
		l.broadcastStateLocked()
		return false
	}

	if phase.game.isGameOver() {
		l.phase = reviewingPhase{game: phase.game}
		l.broadcastStateLocked()
		l.sendLocked(GameOverMessage{
			Type:    "game_over",
			Stories: phase.game.rounds(),
		})
		return true
	}

	l.broadcastStateLocked()
	l.sendNextStoryLocked()

	return true
}

// sendNextStory re-sends the current round's prompt to every participant.
func (l *Lobby) sendNextStory() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sendNextStoryLocked()
}

func (l *Lobby) sendNextStoryLocked() {
	phase, ok := l.phase.(playingPhase)
	if !ok {
		return
	}

	for _, p := range phase.game.players {
		l.sendToLocked(p, nextStoryFor(phase.game, p))
	}
}

func nextStoryFor(g *Game, p *Player) NextStoryMessage {
	return NextStoryMessage{
		Type:      "next_story",
		Round:     g.round + 1,
		Rounds:    g.rounds(),
		Previous:  g.previousFragment(p),
		Submitted: g.hasSubmitted(p),
	}
}

// resyncLocked catches a reconnected player up with the running game.
func (l *Lobby) resyncLocked(p *Player) {
	switch phase := l.phase.(type) {
	case playingPhase:
		l.sendToLocked(p, nextStoryFor(phase.game, p))
	case reviewingPhase:
		l.sendToLocked(p, GameOverMessage{
			Type:    "game_over",
			Stories: phase.game.rounds(),
		})
		for i := 0; i < phase.game.revealed; i++ {
			l.sendToLocked(p, phase.game.storyAt(i))
		}
	}
}

// sendLocked delivers msg to every connected member. Disconnected players
// are skipped.
func (l *Lobby) sendLocked(msg any) {
	for _, p := range l.players {
		l.sendToLocked(p, msg)
	}
}

func (l *Lobby) sendToLocked(p *Player, msg any) {
	if p == nil || !p.connected || p.client == nil {
		return
	}
	p.client.queue(msg)
}

func (l *Lobby) sendSessionInfoLocked(p *Player, reconnected bool) {
	l.sendToLocked(p, SessionInfoMessage{
		Type:        "session_info",
		Room:        l.code,
		Name:        p.Name,
		IsHost:      p == l.host,
		Reconnected: reconnected,
	})
}

func (l *Lobby) stateLocked() LobbyStateMessage {
	msg := LobbyStateMessage{
		Type:    "lobby_state",
		Room:    l.code,
		Phase:   l.phase.name(),
		Players: make([]LobbyPlayer, 0, len(l.players)),
	}
	if l.host != nil {
		msg.Host = l.host.Name
	}

	game := l.gameLocked()
	if game != nil {
		msg.Round = min(game.round+1, game.rounds())
		msg.Rounds = game.rounds()
	}

	for _, p := range l.players {
		lp := LobbyPlayer{
			Name:      p.Name,
			Connected: p.connected,
		}
		if _, ok := l.phase.(playingPhase); ok {
			lp.Submitted = game.hasSubmitted(p)
		}
		msg.Players = append(msg.Players, lp)
	}

	return msg
}

func (l *Lobby) broadcastStateLocked() {
	l.sendLocked(l.stateLocked())
}

// closeConnections disconnects every member's client.
func (l *Lobby) closeConnections() error {
	l.mu.Lock()
	clients := make([]*Client, 0, len(l.players))
	for _, p := range l.players {
		if p.client != nil {
			clients = append(clients, p.client)
		}
	}
	l.mu.Unlock()

	var err error
	for _, c := range clients {
		err = multierr.Append(err, c.close())
	}
	return err
}
