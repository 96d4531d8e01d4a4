/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

var (
	errRoomExists   = errors.New("room code already exists")
	errRoomNotFound = errors.New("room does not exist")
)

// connectionRegistry maps an open connection to the player it represents.
// It only routes; marking players disconnected is the caller's job.
type connectionRegistry struct {
	mu      sync.RWMutex
	players map[*Client]*Player
}

func newConnectionRegistry() *connectionRegistry {
	return &connectionRegistry{
		players: make(map[*Client]*Player),
	}
}

func (r *connectionRegistry) associate(c *Client, p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.players[c] = p
}

func (r *connectionRegistry) lookup(c *Client) (*Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.players[c]
	return p, ok
}

func (r *connectionRegistry) remove(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.players, c)
}

func (r *connectionRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.players)
}

// lobbyRegistry owns every live Lobby, keyed by room code.
type lobbyRegistry struct {
	mu      sync.RWMutex
	lobbies map[string]*Lobby
}

func newLobbyRegistry() *lobbyRegistry {
	return &lobbyRegistry{
		lobbies: make(map[string]*Lobby),
	}
}

// create registers l under its code unless the code is taken.
func (r *lobbyRegistry) create(l *Lobby) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.lobbies[l.code]; exists {
		return fmt.Errorf("%w: %q", errRoomExists, l.code)
	}
	r.lobbies[l.code] = l

	return nil
}

func (r *lobbyRegistry) get(code string) (*Lobby, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.lobbies[code]
	return l, ok
}

func (r *lobbyRegistry) exists(code string) bool {
	_, ok := r.get(code)
	return ok
}

// remove deletes code only while it still maps to l, so a stale close can
// never drop a newer room that reused the code.
func (r *lobbyRegistry) remove(code string, l *Lobby) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.lobbies[code]; ok && current == l {
		delete(r.lobbies, code)
	}
}

func (r *lobbyRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.lobbies)
}

// closeAll disconnects every client of every room (used on shutdown).
func (r *lobbyRegistry) closeAll() error {
	r.mu.RLock()
	lobbies := make([]*Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		lobbies = append(lobbies, l)
	}
	r.mu.RUnlock()

	var err error
	for _, l := range lobbies {
		err = multierr.Append(err, l.closeConnections())
	}
	return err
}

// CodeGenerator produces candidate room codes.
type CodeGenerator func() (string, error)

// Letters that cannot be confused with each other when read aloud or off a screen.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func randomCodeGenerator(length int) CodeGenerator {
	return func() (string, error) {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}

		out := make([]byte, length)
		for i := range out {
			out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
		}

		return string(out), nil
	}
}
