package store

import (
	"errors"

	"github.com/tagshelf/tagshelf/internal/tagstore/hierarchy"
)

var (
	// ErrNotFound indicates a project or tag absent from the cache.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the requested entity is already present.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNoChange indicates the store is already in the requested state.
	ErrNoChange = errors.New("no change")

	// ErrConflict indicates a rename onto a tag that already exists.
	ErrConflict = errors.New("tag already exists")

	// ErrCycle indicates a move or merge beneath the tag's own subtree.
	ErrCycle = errors.New("tag cannot be placed beneath itself")

	// ErrInvalidMove indicates a move of a tag onto itself.
	ErrInvalidMove = errors.New("invalid move")

	// ErrInvalidColor indicates a color outside the palette.
	ErrInvalidColor = errors.New("color not in palette")

	// ErrInvalidTag aliases hierarchy.ErrInvalidTag for callers of this package.
	ErrInvalidTag = hierarchy.ErrInvalidTag
)

// IsNoop reports whether err means the store already was in the requested
// state.
func IsNoop(err error) bool {
	return errors.Is(err, ErrNoChange) || errors.Is(err, ErrAlreadyExists)
}
