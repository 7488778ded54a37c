// Telephone pictionary game state.
//
// A game is an ordered sequence of entries, alternating between text
// phrases and drawings. Each entry is written (or drawn) in response to
// the previous one: the first player writes a phrase, the next draws it,
// the next captions the drawing without seeing the original phrase, and
// so on. The sequence is the whole game; nothing is ever edited or
// removed once appended, only cleared ("New") or replaced ("Load").
//
// The Game struct owns the sequence plus a review flag, and pushes a
// fresh snapshot to all connected clients after every mutation so the
// page re-renders without polling. All decision logic (what the player
// must supply next, which entry a drawing lookup resolves to) lives in
// free functions over []Entry so it can be exercised without a server.

package main

import (
	"sync"

	"github.com/gorilla/websocket"
)

// EntryKind discriminates the two entry variants.
type EntryKind string

const (
	KindPhrase  EntryKind = "phrase"
	KindDrawing EntryKind = "drawing"
)

// Entry is one item in the game sequence: either a text phrase or the
// raw bytes of a directly renderable image. Exactly one of Phrase and
// Drawing is meaningful, selected by Kind.
type Entry struct {
	Kind    EntryKind
	Phrase  string
	Drawing []byte
}

func PhraseEntry(text string) Entry {
	return Entry{Kind: KindPhrase, Phrase: text}
}

func DrawingEntry(data []byte) Entry {
	return Entry{Kind: KindDrawing, Drawing: data}
}

// InputKind is what the player must supply next.
type InputKind string

const (
	InputInitialPhrase InputKind = "initial_phrase"
	InputDrawing       InputKind = "drawing"
	InputPhrase        InputKind = "phrase"
)

// NextInput derives the required next submission from the last entry:
// an empty game starts with a phrase, a phrase must be drawn, and a
// drawing must be captioned.
func NextInput(entries []Entry) InputKind {
	if len(entries) == 0 {
		return InputInitialPhrase
	}
	if entries[len(entries)-1].Kind == KindPhrase {
		return InputDrawing
	}
	return InputPhrase
}

// DrawingAt returns the image bytes of entries[index]. A phrase at that
// index yields an empty result, and an index outside the sequence
// yields ErrIndexOutOfRange.
func DrawingAt(entries []Entry, index int) ([]byte, error) {
	if index < 0 || index >= len(entries) {
		return nil, ErrIndexOutOfRange
	}
	if entries[index].Kind != KindDrawing {
		return nil, nil
	}
	return entries[index].Drawing, nil
}

// EntryView is the client-facing shape of one entry. Drawings carry no
// payload here; the page fetches them by position via /entry/<index>.
type EntryView struct {
	Kind EntryKind `json:"kind"`
	Text string    `json:"text,omitempty"`
}

// Snapshot is the full client-facing game state, pushed over the
// websocket after every mutation and served on demand at /state.
type Snapshot struct {
	Next    InputKind   `json:"next"`
	Review  bool        `json:"review"`
	Entries []EntryView `json:"entries"`
}

type gameClient struct {
	conn *websocket.Conn
	send chan Snapshot
}

// Game is the single state holder for one session. All mutation happens
// under one mutex, and every mutation broadcasts the resulting snapshot,
// mirroring the reactive re-render of the page.
type Game struct {
	mu      sync.RWMutex
	entries []Entry
	review  bool
	clients map[*gameClient]bool
}

func NewGame() *Game {
	return &Game{
		clients: make(map[*gameClient]bool),
	}
}

// Append pushes an entry onto the end of the sequence. The kind is not
// checked against NextInput; the page only ever offers the matching
// input widget, and loaded files are taken as-is.
func (g *Game) Append(e Entry) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries = append(g.entries, e)

	return g.broadcastLocked()
}

// Clear empties the sequence in place. Idempotent on an empty game.
func (g *Game) Clear() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries = nil
	g.review = false

	return g.broadcastLocked()
}

// Replace substitutes the whole sequence, used by load. The caller's
// slice is not retained.
func (g *Game) Replace(entries []Entry) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entries = append([]Entry(nil), entries...)

	return g.broadcastLocked()
}

// SetReview flips the page between active-entry mode and the read-only
// review of the full sequence. The sequence itself is untouched.
func (g *Game) SetReview(review bool) Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.review = review

	return g.broadcastLocked()
}

// Entries returns a copy of the current sequence.
func (g *Game) Entries() []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return append([]Entry(nil), g.entries...)
}

// Drawing resolves a drawing lookup by index against the live sequence.
func (g *Game) Drawing(index int) ([]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return DrawingAt(g.entries, index)
}

func (g *Game) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.snapshotLocked()
}

func (g *Game) snapshotLocked() Snapshot {
	views := make([]EntryView, 0, len(g.entries))
	for _, e := range g.entries {
		view := EntryView{Kind: e.Kind}
		if e.Kind == KindPhrase {
			view.Text = e.Phrase
		}
		views = append(views, view)
	}

	return Snapshot{
		Next:    NextInput(g.entries),
		Review:  g.review,
		Entries: views,
	}
}

// broadcastLocked sends the current snapshot to every connected client,
// dropping any client whose send buffer is full.
func (g *Game) broadcastLocked() Snapshot {
	snap := g.snapshotLocked()

	for client := range g.clients {
		select {
		case client.send <- snap:
		default:
			delete(g.clients, client)
			close(client.send)
		}
	}

	return snap
}

func (g *Game) register(c *gameClient) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.clients[c] = true

	// Seed the new client so it renders without waiting for a mutation.
	c.send <- g.snapshotLocked()
}

func (g *Game) unregister(c *gameClient) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.clients[c]; ok {
		delete(g.clients, c)
		close(c.send)
	}
}
