package cardreport

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores for paths that do not exist.
var ErrNotFound = errors.New("resource not found")

// ResourceKind classifies a stored resource.
type ResourceKind int

const (
	KindOther ResourceKind = iota
	KindCollection
	KindAddressBook
	KindCard
)

func (k ResourceKind) String() string {
	switch k {
	case KindCollection:
		return "collection"
	case KindAddressBook:
		return "addressbook"
	case KindCard:
		return "card"
	default:
		return "other"
	}
}

// IsCollection reports whether resources of this kind can have children.
func (k ResourceKind) IsCollection() bool {
	return k == KindCollection || k == KindAddressBook
}

// Resource describes one node of the store tree. Path is slash separated
// and rooted at "/".
type Resource struct {
	Path        string
	Kind        ResourceKind
	DisplayName string
	Description string
	Size        int64
	ModTime     time.Time
}

// Store is the read side of a card store.
type Store interface {
	Stat(ctx context.Context, path string) (Resource, error)
	// Children lists the direct children of a collection in a stable order.
	Children(ctx context.Context, path string) ([]Resource, error)
	// Get returns the stored bytes of a card.
	Get(ctx context.Context, path string) ([]byte, error)
}
