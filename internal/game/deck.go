// internal/game/deck.go
package game

import (
	"math/rand"
	"time"
)

// DeckSize is a standard 52-card deck. Cards are plain ints 1..52; suit and
// rank presentation belongs to the clients.
const DeckSize = 52

// Deck is a card source with a consume cursor. The session builds one per
// hand; tests inject an explicit card order.
type Deck struct {
	cards  []int
	cursor int
}

// NewDeck returns a freshly shuffled 52-card deck.
func NewDeck() *Deck {
	cards := make([]int, DeckSize)
	for i := range cards {
		cards[i] = i + 1
	}
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	r.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	return &Deck{cards: cards}
}

// NewOrderedDeck returns a deck that deals the given cards in order.
func NewOrderedDeck(cards []int) *Deck {
	cp := make([]int, len(cards))
	copy(cp, cards)
	return &Deck{cards: cp}
}

// Draw consumes the next card. ok is false once the deck is exhausted.
func (d *Deck) Draw() (int, bool) {
	if d.cursor >= len(d.cards) {
		return 0, false
	}
	c := d.cards[d.cursor]
	d.cursor++
	return c, true
}

// DrawN consumes n cards; the slice is shorter if the deck runs out.
func (d *Deck) DrawN(n int) []int {
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		c, ok := d.Draw()
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}

// Remaining reports how many cards are left.
func (d *Deck) Remaining() int {
	return len(d.cards) - d.cursor
}
