package editor

import (
	"context"

	"github.com/trezcool/tribunal/core/asset"
	"github.com/trezcool/tribunal/core/block"
)

// OpKind names an editing operation.
type OpKind string

const (
	OpAdd     OpKind = "add"
	OpUpdate  OpKind = "update"
	OpResize  OpKind = "resize"
	OpRemove  OpKind = "remove"
	OpMove    OpKind = "move"
	OpReorder OpKind = "reorder"
)

// Op is one serialized editing operation, as sent by an editing client.
type Op struct {
	Op        OpKind         `json:"op" yaml:"op"`
	ID        string         `json:"id,omitempty" yaml:"id,omitempty"`
	Type      block.Type     `json:"type,omitempty" yaml:"type,omitempty"`
	Content   *string        `json:"content,omitempty" yaml:"content,omitempty"`
	Metadata  block.Metadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Direction Direction      `json:"direction,omitempty" yaml:"direction,omitempty"`
	Index     int            `json:"index,omitempty" yaml:"index,omitempty"`
	Width     int            `json:"width,omitempty" yaml:"width,omitempty"`
	Height    int            `json:"height,omitempty" yaml:"height,omitempty"`
}

// Apply runs ops in order and returns the IDs of the blocks added.
// Like every Store mutation it never fails: invalid or unknown ops are skipped.
//
// An add op may carry a content and metadata, in which case the new block is filled right away;
// an add op with an invalid type is skipped.
func (s *Store) Apply(ops ...Op) []string {
	var added []string
	for _, op := range ops {
		switch op.Op {
		case OpAdd:
			if !op.Type.Valid() {
				continue
			}
			id := s.AddBlock(op.Type)
			if op.Content != nil || op.Metadata != nil {
				content := block.DefaultContent(op.Type)
				if op.Content != nil {
					content = *op.Content
				}
				s.UpdateContent(id, content, op.Metadata)
			}
			added = append(added, id)
		case OpUpdate:
			b, ok := s.Get(op.ID)
			if !ok {
				continue
			}
			content := b.Content
			if op.Content != nil {
				content = *op.Content
			}
			s.UpdateContent(op.ID, content, op.Metadata)
		case OpResize:
			s.Resize(op.ID, op.Width, op.Height)
		case OpRemove:
			s.RemoveBlock(op.ID)
		case OpMove:
			s.MoveBlock(op.ID, op.Direction)
		case OpReorder:
			s.Reorder(op.ID, op.Index)
		}
	}
	return added
}

// AttachAsset uploads a and, on success only, makes it the content of the image or video block.
// Upload errors (wrong type, too large...) are returned and the block is left unchanged.
func (s *Store) AttachAsset(ctx context.Context, id string, uploader asset.Uploader, a asset.Asset) error {
	if err := s.checkMedia(id); err != nil {
		return err
	}
	stored, err := uploader.Upload(ctx, a)
	if err != nil {
		return err
	}
	return s.UpdateContentStrict(id, stored.Content, block.Metadata{
		block.KeyFileName: stored.FileName,
		block.KeyFileType: stored.FileType,
	})
}

func (s *Store) checkMedia(id string) error {
	b, ok := s.Get(id)
	if !ok {
		return ErrBlockNotFound
	}
	if !b.Type.IsMedia() {
		return ErrNotMedia
	}
	return nil
}

// CheckMedia returns ErrBlockNotFound or ErrNotMedia unless id is an image or video block.
func CheckMedia(blocks []block.Block, id string) error {
	return NewStore(blocks...).checkMedia(id)
}
