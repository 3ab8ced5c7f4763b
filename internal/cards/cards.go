package cards

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// LowWaterMark is the remaining-card count below which Shuffle rebuilds
// the full 52-card deck instead of permuting what is left.
const LowWaterMark = 20

// DeckSize is the number of cards in a fresh deck.
const DeckSize = 52

var ErrEmptyDeck = errors.New("deck is empty")

var (
	Suits = []string{"hearts", "diamonds", "clubs", "spades"}
	Ranks = []string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}
)

// ── Card ──────────────────────────────────────────────────────────────────────

type Card struct {
	Suit string `json:"suit"`
	Rank string `json:"rank"`
}

// NewCard validates suit and rank against the canonical deck.
func NewCard(suit, rank string) (Card, error) {
	if !contains(Suits, suit) {
		return Card{}, fmt.Errorf("unknown suit %q", suit)
	}
	if !contains(Ranks, rank) {
		return Card{}, fmt.Errorf("unknown rank %q", rank)
	}
	return Card{Suit: suit, Rank: rank}, nil
}

// Value is the blackjack value with aces counted high.
func (c Card) Value() int {
	switch c.Rank {
	case "A":
		return 11
	case "J", "Q", "K", "10":
		return 10
	default:
		v := 0
		fmt.Sscanf(c.Rank, "%d", &v)
		return v
	}
}

func (c Card) IsAce() bool { return c.Rank == "A" }

var suitGlyphs = map[string]string{"hearts": "♥", "diamonds": "♦", "clubs": "♣", "spades": "♠"}

func (c Card) String() string {
	return c.Rank + suitGlyphs[c.Suit]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ── Deck ──────────────────────────────────────────────────────────────────────

// Deck is a single 52-card deck dealt from the end. It is not safe for
// concurrent use; the owning table serializes access.
type Deck struct {
	cards   []Card
	rng     *rand.Rand
	stacked bool
}

// NewDeck builds and shuffles a full deck. A nil rng gets a time-seeded one.
func NewDeck(rng *rand.Rand) *Deck {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	d := &Deck{rng: rng}
	d.Reset()
	return d
}

// NewStackedDeck returns a deck that deals the given cards in order, first
// card first. Shuffle leaves a stacked deck untouched; once it runs dry,
// Reset replaces it with an ordinary unshuffled deck.
func NewStackedDeck(order ...Card) *Deck {
	cards := make([]Card, len(order))
	for i, c := range order {
		cards[len(order)-1-i] = c
	}
	return &Deck{cards: cards, stacked: true}
}

func fullDeck() []Card {
	cards := make([]Card, 0, DeckSize)
	for _, s := range Suits {
		for _, r := range Ranks {
			cards = append(cards, Card{Suit: s, Rank: r})
		}
	}
	return cards
}

// Reset regenerates all 52 cards and permutes them.
func (d *Deck) Reset() {
	d.stacked = false
	d.cards = fullDeck()
	d.permute()
}

// Shuffle regenerates the deck when fewer than LowWaterMark cards remain,
// otherwise permutes the remaining cards in place.
func (d *Deck) Shuffle() {
	if d.stacked {
		return
	}
	if len(d.cards) < LowWaterMark {
		d.Reset()
		return
	}
	d.permute()
}

func (d *Deck) permute() {
	if d.rng == nil {
		return
	}
	d.rng.Shuffle(len(d.cards), func(i, j int) { d.cards[i], d.cards[j] = d.cards[j], d.cards[i] })
}

// Deal removes and returns the last card.
func (d *Deck) Deal() (Card, error) {
	if len(d.cards) == 0 {
		return Card{}, ErrEmptyDeck
	}
	c := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return c, nil
}

func (d *Deck) Remaining() int { return len(d.cards) }

// ── Hand ──────────────────────────────────────────────────────────────────────

// Hand keeps its total derived from its cards: aces count 11 until the total
// would pass 21, then drop to 1 one at a time.
type Hand struct {
	cards    []Card
	total    int
	softAces int
}

func NewHand(cards ...Card) *Hand {
	h := &Hand{}
	for _, c := range cards {
		h.Add(c)
	}
	return h
}

// Add appends the card and re-derives the total.
func (h *Hand) Add(c Card) {
	h.cards = append(h.cards, c)
	h.total += c.Value()
	if c.IsAce() {
		h.softAces++
	}
	for h.total > 21 && h.softAces > 0 {
		h.total -= 10
		h.softAces--
	}
}

func (h *Hand) Total() int { return h.total }

// Soft reports whether an ace is still counted as 11.
func (h *Hand) Soft() bool { return h.softAces > 0 }

func (h *Hand) Len() int { return len(h.cards) }

func (h *Hand) Busted() bool { return h.total > 21 }

// Blackjack is a two-card 21.
func (h *Hand) Blackjack() bool { return len(h.cards) == 2 && h.total == 21 }

// Cards returns a copy of the dealt cards.
func (h *Hand) Cards() []Card {
	out := make([]Card, len(h.cards))
	copy(out, h.cards)
	return out
}

func (h *Hand) String() string {
	parts := make([]string, len(h.cards))
	for i, c := range h.cards {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}
