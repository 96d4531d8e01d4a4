package main

import "strings"

// Fragment is one player's contribution to a story.
type Fragment struct {
	Author *Player
	Text   string
}

// Game tracks one play-through. Every participant writes one fragment per
// round and there are as many rounds as participants. In round r participant
// p writes into story (p-r) mod N, so each player continues the fragment the
// previous player in roster order wrote last round. Story i is opened by
// participant i.
//
// Game does not lock; its Lobby serializes every call.
type Game struct {
	players []*Player
	stories [][]Fragment

	round   int
	pending []string
	written []bool

	revealed int
}

func newGame(players []*Player) *Game {
	n := len(players)

	g := &Game{
		players: append([]*Player(nil), players...),
		stories: make([][]Fragment, n),
		pending: make([]string, n),
		written: make([]bool, n),
	}
	for i := range g.stories {
		g.stories[i] = make([]Fragment, 0, n)
	}

	return g
}

func (g *Game) rounds() int {
	return len(g.players)
}

func (g *Game) indexOf(p *Player) int {
	for i, candidate := range g.players {
		if candidate == p {
			return i
		}
	}
	return -1
}

func (g *Game) storyFor(participant, round int) int {
	n := len(g.players)
	return ((participant-round)%n + n) % n
}

// acceptStory records text as p's fragment for the current round. A second
// submission in the same round replaces the first. It reports whether this
// submission completed the round; the round has already advanced when it does.
func (g *Game) acceptStory(p *Player, text string) (accepted, roundComplete bool) {
	if g.isGameOver() {
		return false, false
	}

	idx := g.indexOf(p)
	if idx < 0 {
		return false, false
	}

	g.pending[idx] = text
	g.written[idx] = true

	for _, done := range g.written {
		if !done {
			return true, false
		}
	}

	for i, fragment := range g.pending {
		s := g.storyFor(i, g.round)
		g.stories[s] = append(g.stories[s], Fragment{Author: g.players[i], Text: fragment})
		g.pending[i] = ""
		g.written[i] = false
	}
	g.round++

	return true, true
}

func (g *Game) hasSubmitted(p *Player) bool {
	idx := g.indexOf(p)
	return idx >= 0 && g.written[idx]
}

// previousFragment returns the text p is asked to continue this round.
func (g *Game) previousFragment(p *Player) string {
	idx := g.indexOf(p)
	if idx < 0 || g.round == 0 || g.isGameOver() {
		return ""
	}

	story := g.stories[g.storyFor(idx, g.round)]
	if len(story) == 0 {
		return ""
	}
	return story[len(story)-1].Text
}

func (g *Game) isGameOver() bool {
	return g.round >= g.rounds()
}

func (g *Game) allStoriesRevealed() bool {
	return g.revealed >= len(g.players)
}

// advanceReveal moves the reveal cursor forward by one and returns the story
// it passed. Callers check isGameOver and allStoriesRevealed first.
func (g *Game) advanceReveal() RevealMessage {
	idx := g.revealed
	g.revealed++

	return g.storyAt(idx)
}

// storyAt assembles story idx in the order its fragments were written.
func (g *Game) storyAt(idx int) RevealMessage {
	story := g.stories[idx]

	texts := make([]string, 0, len(story))
	fragments := make([]RevealFragment, 0, len(story))
	for _, f := range story {
		texts = append(texts, f.Text)
		fragments = append(fragments, RevealFragment{
			Author: f.Author.Name,
			Text:   f.Text,
		})
	}

	return RevealMessage{
		Type:      "reveal",
		Index:     idx,
		Total:     len(g.players),
		Starter:   g.players[idx].Name,
		Story:     strings.Join(texts, " "),
		Fragments: fragments,
	}
}
