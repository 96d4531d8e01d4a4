package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlayers(names ...string) []*Player {
	players := make([]*Player, 0, len(names))
	for _, name := range names {
		players = append(players, newPlayer(name, "ROOM"))
	}
	return players
}

func playRound(t *testing.T, g *Game, players []*Player, texts ...string) {
	t.Helper()

	require.Len(t, texts, len(players))
	for i, p := range players {
		accepted, complete := g.acceptStory(p, texts[i])
		require.True(t, accepted, "fragment from %s was not accepted", p.Name)
		assert.Equal(t, i == len(players)-1, complete)
	}
}

func TestGame_RotationPassesPreviousPlayersFragment(t *testing.T) {
	players := testPlayers("Alice", "Bob", "Carol")
	g := newGame(players)

	require.Equal(t, 3, g.rounds())
	for _, p := range players {
		assert.Empty(t, g.previousFragment(p), "nothing to continue in the first round")
	}

	playRound(t, g, players, "a0", "b0", "c0")

	assert.Equal(t, "c0", g.previousFragment(players[0]))
	assert.Equal(t, "a0", g.previousFragment(players[1]))
	assert.Equal(t, "b0", g.previousFragment(players[2]))

	playRound(t, g, players, "a1", "b1", "c1")

	assert.Equal(t, "c1", g.previousFragment(players[0]))
	assert.Equal(t, "a1", g.previousFragment(players[1]))
	assert.Equal(t, "b1", g.previousFragment(players[2]))
	assert.False(t, g.isGameOver())

	playRound(t, g, players, "a2", "b2", "c2")

	require.True(t, g.isGameOver())

	want := []struct {
		starter string
		story   string
		authors []string
	}{
		{"Alice", "a0 b1 c2", []string{"Alice", "Bob", "Carol"}},
		{"Bob", "b0 c1 a2", []string{"Bob", "Carol", "Alice"}},
		{"Carol", "c0 a1 b2", []string{"Carol", "Alice", "Bob"}},
	}

	for i, w := range want {
		require.False(t, g.allStoriesRevealed())

		reveal := g.advanceReveal()
		assert.Equal(t, "reveal", reveal.Type)
		assert.Equal(t, i, reveal.Index)
		assert.Equal(t, 3, reveal.Total)
		assert.Equal(t, w.starter, reveal.Starter)
		assert.Equal(t, w.story, reveal.Story)

		authors := make([]string, 0, len(reveal.Fragments))
		for _, f := range reveal.Fragments {
			authors = append(authors, f.Author)
		}
		assert.Equal(t, w.authors, authors)
	}

	assert.True(t, g.allStoriesRevealed())
}

func TestGame_ResubmissionOverwritesWithinRound(t *testing.T) {
	players := testPlayers("Alice", "Bob")
	g := newGame(players)

	accepted, complete := g.acceptStory(players[0], "first")
	require.True(t, accepted)
	require.False(t, complete)
	assert.True(t, g.hasSubmitted(players[0]))

	accepted, complete = g.acceptStory(players[0], "second")
	require.True(t, accepted)
	require.False(t, complete, "a resubmission must not count as another player's fragment")

	_, complete = g.acceptStory(players[1], "other")
	require.True(t, complete)

	assert.Equal(t, "second", g.previousFragment(players[1]))
	assert.False(t, g.hasSubmitted(players[0]), "submitted flags reset for the new round")
}

func TestGame_RejectsOutsiders(t *testing.T) {
	players := testPlayers("Alice", "Bob")
	g := newGame(players)

	accepted, complete := g.acceptStory(newPlayer("Mallory", "ROOM"), "hi")
	assert.False(t, accepted)
	assert.False(t, complete)
	assert.Empty(t, g.previousFragment(newPlayer("Mallory", "ROOM")))
}

func TestGame_NoFragmentsAfterGameOver(t *testing.T) {
	players := testPlayers("Alice", "Bob")
	g := newGame(players)

	playRound(t, g, players, "one", "two")
	playRound(t, g, players, "three", "four")
	require.True(t, g.isGameOver())

	accepted, complete := g.acceptStory(players[0], "late")
	assert.False(t, accepted)
	assert.False(t, complete)
}

func TestGame_KeepsRosterSnapshot(t *testing.T) {
	players := testPlayers("Alice", "Bob")
	g := newGame(players)

	players[0] = newPlayer("Eve", "ROOM")

	assert.Equal(t, "Alice", g.players[0].Name)
}
