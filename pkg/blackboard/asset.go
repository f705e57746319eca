package blackboard

import (
	"errors"
	"fmt"
)

// KeyID identifies a key within an asset chain. IDs of parent keys come first.
type KeyID uint8

// InvalidKey is returned by name lookups that find nothing.
const InvalidKey KeyID = 255

// MaxKeys is the number of keys an asset chain may hold.
const MaxKeys = int(InvalidKey)

var (
	// ErrInvalidKey is returned when a key id or name does not resolve.
	ErrInvalidKey = errors.New("invalid blackboard key")

	// ErrKeyTypeMismatch is returned when a key is read or written as the wrong type.
	ErrKeyTypeMismatch = errors.New("blackboard key type mismatch")

	// ErrDuplicateKey is returned when two keys in an asset chain share a name.
	ErrDuplicateKey = errors.New("duplicate blackboard key")

	// ErrNotFinalized is returned when an asset is used before Finalize.
	ErrNotFinalized = errors.New("blackboard asset not finalized")
)

// Key is one named, typed entry of an asset.
type Key struct {
	ID   KeyID
	Name string
	Type KeyType
}

// Asset is an ordered list of named, typed keys with optional inheritance
// from a parent asset. Keys are added while building; Finalize assigns ids
// and freezes the asset.
type Asset struct {
	Name   string
	Parent *Asset

	keys       []Key
	firstKeyID KeyID
	finalized  bool
}

// NewAsset creates an empty asset inheriting from parent (which may be nil).
func NewAsset(name string, parent *Asset) *Asset {
	return &Asset{Name: name, Parent: parent}
}

// AddKey appends a key. It returns the asset so definitions can be chained.
// Adding keys after Finalize has no effect.
func (a *Asset) AddKey(name string, t KeyType) *Asset {
	if !a.finalized {
		a.keys = append(a.keys, Key{ID: InvalidKey, Name: name, Type: t})
	}
	return a
}

// Finalize assigns key ids and validates the chain.
// A key shadowing a parent key of an equal type is dropped from this asset;
// shadowing with a different type is an error.
func (a *Asset) Finalize() error {
	if a.finalized {
		return nil
	}

	first := 0
	if a.Parent != nil {
		if err := a.Parent.Finalize(); err != nil {
			return fmt.Errorf("parent asset '%s': %w", a.Parent.Name, err)
		}
		first = a.Parent.NumKeys()
	}

	kept := make([]Key, 0, len(a.keys))
	seen := make(map[string]bool, len(a.keys))
	for _, k := range a.keys {
		if k.Name == "" {
			return fmt.Errorf("asset '%s': key name cannot be empty", a.Name)
		}
		if seen[k.Name] {
			return fmt.Errorf("asset '%s': %w: %s", a.Name, ErrDuplicateKey, k.Name)
		}
		seen[k.Name] = true

		if a.Parent != nil {
			if id := a.Parent.KeyID(k.Name); id != InvalidKey {
				parentKey, _ := a.Parent.Key(id)
				if !parentKey.Type.Equal(k.Type) {
					return fmt.Errorf("asset '%s': %w: %s shadows parent key of type %s with %s",
						a.Name, ErrDuplicateKey, k.Name, parentKey.Type, k.Type)
				}
				continue
			}
		}
		kept = append(kept, k)
	}

	if first+len(kept) > MaxKeys {
		return fmt.Errorf("asset '%s': too many keys (%d, max %d)", a.Name, first+len(kept), MaxKeys)
	}

	for i := range kept {
		kept[i].ID = KeyID(first + i)
	}
	a.keys = kept
	a.firstKeyID = KeyID(first)
	a.finalized = true
	return nil
}

// IsFinalized reports whether Finalize has succeeded.
func (a *Asset) IsFinalized() bool {
	return a.finalized
}

// FirstKeyID is the id of this asset's first own key (the number of keys in
// the parent chain).
func (a *Asset) FirstKeyID() KeyID {
	return a.firstKeyID
}

// NumKeys returns the number of keys including inherited ones.
func (a *Asset) NumKeys() int {
	return int(a.firstKeyID) + len(a.keys)
}

// KeyID resolves a key name through the parent chain.
// Returns InvalidKey when no key has that name.
func (a *Asset) KeyID(name string) KeyID {
	for it := a; it != nil; it = it.Parent {
		for _, k := range it.keys {
			if k.Name == name {
				return k.ID
			}
		}
	}
	return InvalidKey
}

// Key returns the key with the given id.
func (a *Asset) Key(id KeyID) (Key, bool) {
	for it := a; it != nil; it = it.Parent {
		if id >= it.firstKeyID && int(id) < it.NumKeys() {
			return it.keys[id-it.firstKeyID], true
		}
	}
	return Key{}, false
}

// Keys returns every key of the chain in id order.
func (a *Asset) Keys() []Key {
	var out []Key
	if a.Parent != nil {
		out = a.Parent.Keys()
	}
	return append(out, a.keys...)
}

// IsChildOf reports whether other appears in this asset's parent chain.
func (a *Asset) IsChildOf(other *Asset) bool {
	for it := a.Parent; it != nil; it = it.Parent {
		if it == other {
			return true
		}
	}
	return false
}

// IsCompatibleWith reports whether a tree built against other can run on a
// blackboard of this asset: other must be this asset or one of its parents.
func (a *Asset) IsCompatibleWith(other *Asset) bool {
	return other == nil || a == other || a.IsChildOf(other)
}
