// Package editor holds the in-progress state of a document being authored.
//
// Store mutations never fail: operations on missing or fixed blocks degrade to no-ops so that
// stale UI callbacks never break an editing session. Callers that need to know whether anything
// changed can diff snapshots (block.Changed) or use the Strict variants.
//
// A Store is meant to be used by one author at a time and is not safe for concurrent use.
package editor

import (
	"github.com/pkg/errors"

	"github.com/trezcool/tribunal/core/block"
)

var (
	// errors
	ErrBlockNotFound = errors.New("block not found")
	ErrBlockFixed    = errors.New("block is fixed")
	ErrInvalidMove   = errors.New("invalid move")
	ErrNotMedia      = errors.New("block does not hold an asset")
)

// Direction of a single step move.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

type Store struct {
	blocks []block.Block // always sorted by Order, orders contiguous
}

// NewStore returns a store holding a normalized copy of blocks.
// Fixed blocks are moved to the front so that they make up the fixed prefix.
func NewStore(blocks ...block.Block) *Store {
	norm := block.Normalize(blocks)
	fixed := make([]block.Block, 0, 2)
	mutable := make([]block.Block, 0, len(norm))
	for _, b := range norm {
		if b.IsFixed {
			fixed = append(fixed, b)
		} else {
			mutable = append(mutable, b)
		}
	}
	s := &Store{blocks: append(fixed, mutable...)}
	s.renumber()
	return s
}

// NewDocument returns a store seeded with the canonical heading: a fixed title and a fixed subtitle.
func NewDocument() *Store {
	title := block.New(block.TypeTitle, 0)
	title.IsFixed = true
	subtitle := block.New(block.TypeSubtitle, 1)
	subtitle.IsFixed = true
	return &Store{blocks: []block.Block{title, subtitle}}
}

func (s *Store) renumber() {
	block.Renumber(s.blocks)
}

func (s *Store) Len() int {
	return len(s.blocks)
}

// IndexOf returns the position of the block in reading order, -1 if not found.
func (s *Store) IndexOf(id string) int {
	for i, b := range s.blocks {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// Get returns a copy of the block.
func (s *Store) Get(id string) (block.Block, bool) {
	if i := s.IndexOf(id); i >= 0 {
		return s.blocks[i].Clone(), true
	}
	return block.Block{}, false
}

// FixedPrefix returns the number of fixed blocks heading the document.
func (s *Store) FixedPrefix() int {
	n := 0
	for _, b := range s.blocks {
		if !b.IsFixed {
			break
		}
		n++
	}
	return n
}

// Snapshot returns a deep copy of the blocks sorted by order.
func (s *Store) Snapshot() []block.Block {
	out := block.Clone(s.blocks)
	if out == nil {
		out = []block.Block{}
	}
	return out
}

// AddBlock appends a block of the given type at the end of the document and returns its ID.
func (s *Store) AddBlock(typ block.Type) string {
	b := block.New(typ, len(s.blocks))
	s.blocks = append(s.blocks, b)
	return b.ID
}

// UpdateContent replaces the content of the block and merges patch into its metadata.
// An empty content is stored as block.Placeholder. No-op if the block does not exist.
func (s *Store) UpdateContent(id, content string, patch block.Metadata) {
	_ = s.UpdateContentStrict(id, content, patch)
}

func (s *Store) UpdateContentStrict(id, content string, patch block.Metadata) error {
	i := s.IndexOf(id)
	if i < 0 {
		return ErrBlockNotFound
	}
	s.blocks[i].Content = block.NormalizeContent(content)
	s.blocks[i].Metadata = s.blocks[i].Metadata.Merge(patch)
	return nil
}

// Resize sets the display size of an image or video block. Non-positive dimensions are left unchanged.
func (s *Store) Resize(id string, width, height int) {
	i := s.IndexOf(id)
	if i < 0 || !s.blocks[i].Type.IsMedia() {
		return
	}
	patch := make(block.Metadata, 2)
	if width > 0 {
		patch[block.KeyWidth] = width
	}
	if height > 0 {
		patch[block.KeyHeight] = height
	}
	s.blocks[i].Metadata = s.blocks[i].Metadata.Merge(patch)
}

// RemoveBlock removes the block unless it is fixed.
func (s *Store) RemoveBlock(id string) {
	_ = s.RemoveBlockStrict(id)
}

func (s *Store) RemoveBlockStrict(id string) error {
	i := s.IndexOf(id)
	if i < 0 {
		return ErrBlockNotFound
	}
	if s.blocks[i].IsFixed {
		return ErrBlockFixed
	}
	s.blocks = append(s.blocks[:i], s.blocks[i+1:]...)
	s.renumber()
	return nil
}

// MoveBlock moves the block one step up or down, within the mutable region of the document.
func (s *Store) MoveBlock(id string, dir Direction) {
	_ = s.MoveBlockStrict(id, dir)
}

func (s *Store) MoveBlockStrict(id string, dir Direction) error {
	i := s.IndexOf(id)
	if i < 0 {
		return ErrBlockNotFound
	}
	switch dir {
	case Up:
		return s.ReorderStrict(id, i-1)
	case Down:
		return s.ReorderStrict(id, i+1)
	default:
		return errors.Wrapf(ErrInvalidMove, "direction %q", dir)
	}
}

// Reorder moves the block to targetIndex (in reading order) and renumbers every block.
// The target is clamped to the document; fixed blocks can neither be moved nor displaced.
func (s *Store) Reorder(id string, targetIndex int) {
	_ = s.ReorderStrict(id, targetIndex)
}

func (s *Store) ReorderStrict(id string, targetIndex int) error {
	i := s.IndexOf(id)
	if i < 0 {
		return ErrBlockNotFound
	}
	if s.blocks[i].IsFixed {
		return ErrBlockFixed
	}
	if targetIndex >= len(s.blocks) {
		targetIndex = len(s.blocks) - 1
	}
	if prefix := s.FixedPrefix(); targetIndex < prefix {
		return errors.Wrapf(ErrInvalidMove, "index %d is inside the fixed prefix", targetIndex)
	}
	if targetIndex == i {
		return nil
	}

	moved := s.blocks[i]
	rest := append(s.blocks[:i:i], s.blocks[i+1:]...)
	blocks := make([]block.Block, 0, len(s.blocks))
	blocks = append(blocks, rest[:targetIndex]...)
	blocks = append(blocks, moved)
	blocks = append(blocks, rest[targetIndex:]...)
	s.blocks = blocks
	s.renumber()
	return nil
}
