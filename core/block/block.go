// Package block defines the content blocks lesson documents are made of.
//
// A document is an ordered sequence of blocks; sorted by Order it is exactly what a reader sees.
// Content is kept as a single string whatever the block type, typed views (Text, Image, ...)
// interpret Content and Metadata according to the block's Type.
package block

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Placeholder is stored instead of an empty content so that an emptied block stays
// visible and distinguishable from a deleted one.
const Placeholder = " "

// Type is the variant of a block.
type Type string

const (
	TypeText      Type = "text"
	TypeImage     Type = "image"
	TypeVideo     Type = "video"
	TypeLink      Type = "link"
	TypeCode      Type = "code"
	TypeQuote     Type = "quote"
	TypeChecklist Type = "checklist"
	TypeDivider   Type = "divider"
	TypeTitle     Type = "title"
	TypeSubtitle  Type = "subtitle"
	TypeList      Type = "list"
	TypeURL       Type = "url"
	TypeCarousel  Type = "carousel"
)

var (
	Types = []Type{
		TypeText, TypeImage, TypeVideo, TypeLink, TypeCode, TypeQuote, TypeChecklist,
		TypeDivider, TypeTitle, TypeSubtitle, TypeList, TypeURL, TypeCarousel,
	}

	// errors
	ErrInvalidType    = errors.New("invalid block type")
	ErrDuplicateID    = errors.New("duplicate block id")
	ErrDuplicateOrder = errors.New("duplicate block order")
	ErrOrderGap       = errors.New("block orders are not contiguous")
)

func (t Type) Valid() bool {
	for _, typ := range Types {
		if t == typ {
			return true
		}
	}
	return false
}

// IsHeading reports whether blocks of this type make up a document's canonical heading.
func (t Type) IsHeading() bool {
	return t == TypeTitle || t == TypeSubtitle
}

// IsMedia reports whether blocks of this type hold an asset (and can be resized).
func (t Type) IsMedia() bool {
	return t == TypeImage || t == TypeVideo
}

type Block struct {
	ID       string   `json:"id" yaml:"id"`
	Type     Type     `json:"type" yaml:"type"`
	Order    int      `json:"order" yaml:"order"`
	Content  string   `json:"content" yaml:"content"`
	Metadata Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	IsFixed  bool     `json:"isFixed" yaml:"isFixed"`
}

// New returns a block of the given type with a fresh ID and its default content.
func New(typ Type, order int) Block {
	return Block{
		ID:      NewID(),
		Type:    typ,
		Order:   order,
		Content: DefaultContent(typ),
	}
}

func NewID() string {
	return uuid.New().String()
}

// DefaultContent is the content of a freshly added block.
func DefaultContent(typ Type) string {
	switch typ {
	case TypeChecklist:
		return "☐ "
	case TypeCode:
		return "// code"
	default:
		return Placeholder
	}
}

// NormalizeContent coerces an empty content to the placeholder.
func NormalizeContent(content string) string {
	if content == "" {
		return Placeholder
	}
	return content
}

// HasContent reports whether the block carries something other than blank or default content.
func (b Block) HasContent() bool {
	c := strings.TrimSpace(b.Content)
	return c != "" && c != strings.TrimSpace(DefaultContent(b.Type))
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	b.Metadata = b.Metadata.Clone()
	return b
}

// Sort sorts blocks in place by Order (stable, so ties keep their relative position).
func Sort(blocks []Block) {
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Order < blocks[j].Order })
}

// Clone returns a deep copy of blocks.
func Clone(blocks []Block) []Block {
	if blocks == nil {
		return nil
	}
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	return out
}

// Renumber assigns contiguous orders (0..n-1) following the current slice order.
func Renumber(blocks []Block) {
	for i := range blocks {
		blocks[i].Order = i
	}
}

// Normalize returns a sorted, renumbered deep copy of blocks with empty contents replaced by the placeholder
// and missing IDs generated.
func Normalize(blocks []Block) []Block {
	out := Clone(blocks)
	Sort(out)
	Renumber(out)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = NewID()
		}
		out[i].Content = NormalizeContent(out[i].Content)
	}
	return out
}

// Validate checks the save-time invariants of a document: known types, unique IDs,
// unique and contiguous orders.
func Validate(blocks []Block) error {
	ids := make(map[string]bool, len(blocks))
	orders := make(map[int]bool, len(blocks))
	for _, b := range blocks {
		if !b.Type.Valid() {
			return errors.Wrapf(ErrInvalidType, "block %s: %q", b.ID, b.Type)
		}
		if ids[b.ID] {
			return errors.Wrapf(ErrDuplicateID, "block %s", b.ID)
		}
		ids[b.ID] = true
		if orders[b.Order] {
			return errors.Wrapf(ErrDuplicateOrder, "order %d", b.Order)
		}
		orders[b.Order] = true
	}
	for i := 0; i < len(blocks); i++ {
		if !orders[i] {
			return errors.Wrapf(ErrOrderGap, "missing order %d", i)
		}
	}
	return nil
}
