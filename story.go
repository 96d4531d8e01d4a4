// Storybox Story Game
//
// Players gather in a room identified by a short code. The host starts a game,
// then every round each player writes one short fragment, seeing only the
// fragment the previous player wrote. After as many rounds as there are
// players, the host reveals the finished stories one at a time.
//
// Features:
// - One WebSocket per client: /story/:room/ws
// - The player who creates a room is its host
// - Players are identified by display name within a room; a disconnected
//   player can reclaim their seat (and their fragments) by rejoining with the same name
// - Rooms close as soon as no connected player remains
// - Random room codes via crypto/rand, with server-side collision check
// - PNG QR code of each room URL at /story/:room/qr, via go-qrcode

package main

import (
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Player is one display name inside one room. Its mutable fields are guarded
// by the owning Lobby's mutex.
type Player struct {
	Name string
	Room string

	client    *Client
	connected bool
}

func newPlayer(name, room string) *Player {
	return &Player{
		Name: name,
		Room: room,
	}
}

func (p *Player) attach(c *Client) {
	p.client = c
	p.connected = true
}

func (p *Player) detach() {
	p.client = nil
	p.connected = false
}

// Client is one open connection. Everything sent to it is queued here and
// written by a single writePump, so per-connection order holds.
type Client struct {
	id    string
	conn  *websocket.Conn
	limit int

	mu      sync.Mutex
	pending []any
	wake    chan struct{}
	closed  bool
}

func newClient(conn *websocket.Conn, limit int) *Client {
	return &Client{
		id:    uuid.NewString(),
		conn:  conn,
		limit: limit,
		wake:  make(chan struct{}, 1),
	}
}

// queue enqueues msg without blocking. A lobby_state replaces one still
// waiting at the tail, since only the latest snapshot matters. A client that
// lets limit messages pile up is disconnected.
func (c *Client) queue(msg any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	if _, ok := msg.(LobbyStateMessage); ok && len(c.pending) > 0 {
		last := len(c.pending) - 1
		if _, ok := c.pending[last].(LobbyStateMessage); ok {
			c.pending[last] = msg
			return true
		}
	}

	if len(c.pending) >= c.limit {
		_ = c.closeLocked()
		return false
	}
	c.pending = append(c.pending, msg)

	select {
	case c.wake <- struct{}{}:
	default:
	}

	return true
}

// take hands over everything queued so far.
func (c *Client) take() []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs := c.pending
	c.pending = nil
	return msgs
}

func (c *Client) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.pending = nil
	close(c.wake)

	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// StoryServer ties the registries and the dispatcher together.
type StoryServer struct {
	cfg         *Config
	connections *connectionRegistry
	lobbies     *lobbyRegistry
	newCode     CodeGenerator
	dispatcher  *Dispatcher
}

func newStoryServer(cfg *Config, newCode CodeGenerator) *StoryServer {
	s := &StoryServer{
		cfg:         cfg,
		connections: newConnectionRegistry(),
		lobbies:     newLobbyRegistry(),
		newCode:     newCode,
	}
	s.dispatcher = newDispatcher(s)

	return s
}

// Frames over maxMessageSize are dropped. Past hardReadLimitFactor times that,
// the connection is closed.
const hardReadLimitFactor = 16

var errFrameTooLarge = errors.New("frame too large")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func serveWS(s *StoryServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			errorf(s.cfg, "SERVE: Upgrade failed for %s: %v", realIP(r), err)
			return
		}

		client := newClient(conn, s.cfg.sendBuffer)
		logf(s.cfg, "SERVE: Connection %s opened from %s", client.id, realIP(r))

		go client.writePump(s.cfg)
		client.readPump(s)
	}
}

func (c *Client) readPump(s *StoryServer) {
	defer func() {
		s.disconnect(c)
		_ = c.close()
		logf(s.cfg, "SERVE: Connection %s closed", c.id)
	}()

	c.conn.SetReadLimit(int64(s.cfg.maxMessageSize) * hardReadLimitFactor)

	for {
		_, r, err := c.conn.NextReader()
		if err != nil {
			return
		}

		frame, err := readFrame(r, s.cfg.maxMessageSize)
		switch {
		case errors.Is(err, errFrameTooLarge):
			logf(s.cfg, "GAMES: Dropped frame from %s: %v", c.id, err)
			continue
		case err != nil:
			return
		}

		if err := s.dispatcher.dispatch(c, frame); err != nil {
			logf(s.cfg, "GAMES: Dropped frame from %s: %v", c.id, err)
		}
	}
}

// readFrame reads one message of at most limit bytes. A longer message is
// consumed and discarded so the connection stays usable.
func readFrame(r io.Reader, limit int) ([]byte, error) {
	frame, err := io.ReadAll(io.LimitReader(r, int64(limit)+1))
	if err != nil {
		return nil, err
	}

	if len(frame) > limit {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: over %d bytes", errFrameTooLarge, limit)
	}

	return frame, nil
}

func (c *Client) writePump(cfg *Config) {
	defer c.conn.Close()

	for range c.wake {
		for _, msg := range c.take() {
			data, err := encodeEvent(msg)
			if err != nil {
				errorf(cfg, "SERVE: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

const qrSize = 320

// roomURL is the address players open to reach room, as seen by r.
func roomURL(cfg *Config, r *http.Request, path, room string) string {
	scheme := cfg.scheme()
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}

	return scheme + "://" + r.Host + cfg.prefix + path + "/" + url.PathEscape(room)
}

// serveRoomQR renders the room's join URL as a PNG so players can scan it
// off the host's screen.
func serveRoomQR(cfg *Config, path string) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room := normalizeRoom(ps.ByName("room"))
		if room == "" || utf8.RuneCountInString(room) > maxRoomLength {
			http.Error(w, "invalid room code", http.StatusBadRequest)
			return
		}

		png, err := qrcode.Encode(roomURL(cfg, r, path, room), qrcode.Medium, qrSize)
		if err != nil {
			errorf(cfg, "SERVE: QR code for room %s: %v", room, err)
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		securityHeaders(cfg, w)

		written, err := w.Write(png)
		if err != nil {
			errorf(cfg, "SERVE: QR code for room %s to %s: %v", room, realIP(r), err)
			return
		}

		logf(cfg, "SERVE: QR code for room %s (%d B) to %s", room, written, realIP(r))
	}
}

func serveRoomPage(cfg *Config, s *StoryServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		room := normalizeRoom(ps.ByName("room"))
		open := s.lobbies.exists(room)
		room = html.EscapeString(room)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		body := "Room " + room + " is waiting for its host."
		if open {
			body = "Room " + room + " is open. Connect to ./ws and send a join command."
		}

		_, _ = w.Write([]byte(newPage("Storybox "+room, body)))
	}
}

// redirectNewRoom handles GET /path by generating an unused room code and
// redirecting to /path/:room.
func redirectNewRoom(cfg *Config, path string, s *StoryServer) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code, err := s.generateCode()
		if err != nil {
			http.Error(w, "failed to generate room code", http.StatusInternalServerError)
			return
		}

		logf(cfg, "ROOMS: Suggested room %s%s/%s", cfg.prefix, path, code)
		http.Redirect(w, r, cfg.prefix+path+"/"+code, http.StatusTemporaryRedirect)
	}
}

// registerStoryGame sets up routes so that:
//   - $path          → redirects to a new random room code
//   - $path/:room    → landing page
//   - $path/:room/ws → WebSocket
//   - $path/:room/qr → PNG QR code for the room URL
func registerStoryGame(cfg *Config, path string, mux *httprouter.Router) *StoryServer {
	s := newStoryServer(cfg, randomCodeGenerator(cfg.codeLength))

	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, path, s))
	mux.GET(cfg.prefix+path+"/:room", serveRoomPage(cfg, s))
	mux.GET(cfg.prefix+path+"/:room/ws", serveWS(s))
	mux.GET(cfg.prefix+path+"/:room/qr", serveRoomQR(cfg, path))

	return s
}
