package main

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLobbyRegistry_CreateRejectsLiveCode(t *testing.T) {
	r := newLobbyRegistry()

	first := newLobby("R1", newPlayer("Alice", "R1"))
	require.NoError(t, r.create(first))

	err := r.create(newLobby("R1", newPlayer("Bob", "R1")))
	require.ErrorIs(t, err, errRoomExists)

	got, ok := r.get("R1")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestLobbyRegistry_RemoveIgnoresStaleLobby(t *testing.T) {
	r := newLobbyRegistry()

	stale := newLobby("R1", newPlayer("Alice", "R1"))
	require.NoError(t, r.create(stale))
	r.remove("R1", stale)
	assert.False(t, r.exists("R1"))

	fresh := newLobby("R1", newPlayer("Bob", "R1"))
	require.NoError(t, r.create(fresh))

	r.remove("R1", stale)

	got, ok := r.get("R1")
	require.True(t, ok, "removing a stale lobby must not drop its successor")
	assert.Same(t, fresh, got)
}

func TestLobbyRegistry_ConcurrentCreateOnlyOneWins(t *testing.T) {
	r := newLobbyRegistry()

	const attempts = 32

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()

			err := r.create(newLobby("SAME", newPlayer(fmt.Sprintf("p%d", i), "SAME")))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, r.count())
}

func TestConnectionRegistry_ConcurrentAccess(t *testing.T) {
	r := newConnectionRegistry()

	const clients = 64

	var wg sync.WaitGroup
	for i := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()

			c := newClient(nil, 1)
			p := newPlayer(fmt.Sprintf("p%d", i), "ROOM")

			r.associate(c, p)

			got, ok := r.lookup(c)
			assert.True(t, ok)
			assert.Same(t, p, got)

			if i%2 == 0 {
				r.remove(c)

				_, ok := r.lookup(c)
				assert.False(t, ok)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, clients/2, r.count())
}

func TestRandomCodeGenerator(t *testing.T) {
	gen := randomCodeGenerator(6)

	seen := make(map[string]bool)
	for range 50 {
		code, err := gen()
		require.NoError(t, err)
		require.Len(t, code, 6)

		for _, r := range code {
			assert.Contains(t, roomCodeAlphabet, string(r))
		}
		seen[code] = true
	}

	assert.Greater(t, len(seen), 1, "codes should not repeat every time")
}
