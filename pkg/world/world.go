// Package world provides an in-memory game world for running usecode
// outside the game: a flat item table with containers and 3D boxes. It
// implements the live-entity and search queries of the usecode machine.
package world

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/zurustar/ucvm/pkg/logger"
	"github.com/zurustar/ucvm/pkg/vm"
)

var (
	ErrReservedID       = errors.New("item id 0 is reserved")
	ErrDuplicateItem    = errors.New("duplicate item")
	ErrUnknownContainer = errors.New("unknown container")
	ErrUnknownItem      = errors.New("unknown item")
)

// Item is an entity of the world. Items with a Container live inside it
// and their coordinates are ignored by area and surface searches.
type Item struct {
	ID        uint16
	Shape     uint16
	Frame     uint16
	Quality   uint16
	X, Y, Z   int32
	XLen      int32 // box extent
	YLen      int32
	ZLen      int32
	Container uint16
}

// World is an item table. It is not safe for concurrent use.
type World struct {
	items map[uint16]*Item
	log   *slog.Logger
}

// Option is a functional option for configuring the World.
type Option func(*World)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(w *World) {
		w.log = log
	}
}

// New creates an empty world.
func New(opts ...Option) *World {
	w := &World{
		items: make(map[uint16]*Item),
		log:   logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Add inserts a copy of it.
func (w *World) Add(it Item) error {
	switch {
	case it.ID == 0:
		return ErrReservedID
	case w.items[it.ID] != nil:
		return fmt.Errorf("item %d: %w", it.ID, ErrDuplicateItem)
	case it.Container != 0 && w.items[it.Container] == nil:
		return fmt.Errorf("item %d in %d: %w", it.ID, it.Container, ErrUnknownContainer)
	}
	w.items[it.ID] = &it
	return nil
}

// Remove deletes an item and everything inside it.
func (w *World) Remove(id uint16) error {
	if w.items[id] == nil {
		return fmt.Errorf("item %d: %w", id, ErrUnknownItem)
	}
	for _, c := range w.Contents(id, true) {
		delete(w.items, c)
	}
	delete(w.items, id)
	return nil
}

// Item returns the item with the given id.
func (w *World) Item(id uint16) (*Item, bool) {
	it, ok := w.items[id]
	return it, ok
}

// Len returns the number of items.
func (w *World) Len() int { return len(w.items) }

// ItemExists reports whether id names an item.
func (w *World) ItemExists(id uint16) bool {
	return id != 0 && w.items[id] != nil
}

// Contents returns the ids of the items directly inside container, or at
// any depth if recurse is set, in id order.
func (w *World) Contents(container uint16, recurse bool) []uint16 {
	var ids []uint16
	for id, it := range w.items {
		if it.Container == container {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if !recurse {
		return ids
	}
	out := make([]uint16, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
		out = append(out, w.Contents(id, true)...)
	}
	return out
}

// topLevel returns the outermost container of it, or it itself.
func (w *World) topLevel(it *Item) *Item {
	for it.Container != 0 {
		parent := w.items[it.Container]
		if parent == nil {
			break
		}
		it = parent
	}
	return it
}

// Search runs a usecode search. Candidates that fail the loopscript are
// dropped; a malformed loopscript aborts the search.
func (w *World) Search(q vm.SearchQuery) ([]uint16, error) {
	origin, ok := w.items[q.Item]
	if !ok {
		return nil, fmt.Errorf("search origin %d: %w", q.Item, ErrUnknownItem)
	}

	var candidates []uint16
	switch q.Kind {
	case vm.SearchArea:
		candidates = w.area(w.topLevel(origin), int32(q.Range), q.Recurse)
	case vm.SearchContainer:
		candidates = w.Contents(origin.ID, q.Recurse)
	case vm.SearchSurface:
		candidates = w.surface(origin, q.Above, q.Below)
	default:
		return nil, fmt.Errorf("search kind %v not supported", q.Kind)
	}

	out := candidates[:0]
	for _, id := range candidates {
		ok, err := Match(q.Script, w.items[id])
		if err != nil {
			return nil, fmt.Errorf("%v search from %d: %w", q.Kind, q.Item, err)
		}
		if ok {
			out = append(out, id)
		}
	}
	w.log.Debug("search", "kind", q.Kind, "origin", q.Item, "candidates", len(candidates), "matches", len(out))
	return out, nil
}

// area returns the top-level items whose position lies within rng of
// origin on both axes, excluding origin.
func (w *World) area(origin *Item, rng int32, recurse bool) []uint16 {
	var ids []uint16
	for id, it := range w.items {
		if it.Container != 0 || it == origin {
			continue
		}
		if abs(it.X-origin.X) <= rng && abs(it.Y-origin.Y) <= rng {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	if !recurse {
		return ids
	}
	out := make([]uint16, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
		out = append(out, w.Contents(id, true)...)
	}
	return out
}

// surface returns the top-level items resting on origin (above) or that
// origin rests on (below). Boxes must overlap in the XY plane.
func (w *World) surface(origin *Item, above, below bool) []uint16 {
	var ids []uint16
	for id, it := range w.items {
		if it.Container != 0 || it == origin || !overlapXY(origin, it) {
			continue
		}
		if above && it.Z == origin.Z+origin.ZLen {
			ids = append(ids, id)
		} else if below && origin.Z == it.Z+it.ZLen {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func overlapXY(a, b *Item) bool {
	return a.X < b.X+max(b.XLen, 1) && b.X < a.X+max(a.XLen, 1) &&
		a.Y < b.Y+max(b.YLen, 1) && b.Y < a.Y+max(a.YLen, 1)
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
