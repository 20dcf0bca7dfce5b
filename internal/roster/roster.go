// Package roster is the observable session view state: the ordered set of
// tiles the rendering layer draws. The coordinator is its only writer.
package roster

import (
	"sync"

	"github.com/huddlelabs/huddle/internal/domain"
	"github.com/huddlelabs/huddle/internal/media"
)

// Tile is one renderable entry: a peer identity and its live stream.
type Tile struct {
	ID     domain.PeerID
	Name   string
	Stream media.Stream
}

// Roster keeps tiles in insertion order, the local participant always
// first. At most one tile per peer id.
type Roster struct {
	mu    sync.RWMutex
	self  domain.PeerID
	order []domain.PeerID
	tiles map[domain.PeerID]*Tile
}

func New(self Tile) *Roster {
	r := &Roster{
		self:  self.ID,
		tiles: make(map[domain.PeerID]*Tile),
	}
	r.order = append(r.order, self.ID)
	r.tiles[self.ID] = &self
	return r
}

// Add inserts a tile if the peer is not present yet. Reports whether the
// tile was inserted.
func (r *Roster) Add(id domain.PeerID, name string, stream media.Stream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tiles[id]; ok {
		return false
	}
	r.order = append(r.order, id)
	r.tiles[id] = &Tile{ID: id, Name: name, Stream: stream}
	return true
}

// Remove drops a peer's tile. The local tile cannot be removed.
func (r *Roster) Remove(id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.self {
		return false
	}
	if _, ok := r.tiles[id]; !ok {
		return false
	}
	delete(r.tiles, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// ReplaceStream swaps only the stream of an existing tile, preserving
// position and name.
func (r *Roster) ReplaceStream(id domain.PeerID, stream media.Stream) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	tile, ok := r.tiles[id]
	if !ok {
		return false
	}
	tile.Stream = stream
	return true
}

func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Snapshot returns the tiles in render order.
func (r *Roster) Snapshot() []Tile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.tiles[id])
	}
	return out
}
