package blackboard

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"reflect"
	"sort"
)

// NotifyResult tells the instance whether an observer wants further notifications.
type NotifyResult int

const (
	ContinueObserving NotifyResult = iota
	RemoveObserver
)

// Observer is called after a key's value changed.
type Observer func(b *Instance, key KeyID) NotifyResult

// ObserverHandle identifies one registration.
type ObserverHandle uint64

type observerEntry struct {
	handle ObserverHandle
	owner  any
	fn     Observer
}

// Instance holds the runtime values for one agent's blackboard.
//
// Plain values live in a flat byte buffer whose layout is fixed by the asset at
// creation time. Object, Class and String values live in one reference slot per
// key. An Instance is not safe for concurrent use; it belongs to the goroutine
// that ticks the agent.
type Instance struct {
	asset   *Asset
	keys    []Key
	offsets []int
	values  []byte
	refs    []any

	observers  map[KeyID][]observerEntry
	nextHandle ObserverHandle

	paused bool
	queued map[KeyID]struct{}
}

// NewInstance allocates the value buffer for a finalized asset and sets every
// key to its default.
func NewInstance(asset *Asset) (*Instance, error) {
	if asset == nil || !asset.IsFinalized() {
		return nil, ErrNotFinalized
	}

	keys := asset.Keys()
	b := &Instance{
		asset:     asset,
		keys:      keys,
		offsets:   make([]int, len(keys)),
		refs:      make([]any, len(keys)),
		observers: make(map[KeyID][]observerEntry),
		queued:    make(map[KeyID]struct{}),
	}

	size := 0
	for i, k := range keys {
		b.offsets[i] = size
		size += k.Type.ValueSize()
	}
	b.values = make([]byte, size)

	for _, k := range keys {
		b.resetValue(k)
	}
	return b, nil
}

// Asset returns the asset the instance was created from.
func (b *Instance) Asset() *Asset {
	return b.asset
}

// IsCompatibleWith reports whether a tree built for asset may use this instance.
func (b *Instance) IsCompatibleWith(asset *Asset) bool {
	return b.asset.IsCompatibleWith(asset)
}

// KeyID resolves a key name. Returns InvalidKey for unknown names.
func (b *Instance) KeyID(name string) KeyID {
	return b.asset.KeyID(name)
}

// Key returns the key definition for id.
func (b *Instance) Key(id KeyID) (Key, bool) {
	if int(id) >= len(b.keys) {
		return Key{}, false
	}
	return b.keys[id], true
}

// KeyType returns the type of a key, or false for an invalid id.
func (b *Instance) KeyType(id KeyID) (KeyType, bool) {
	k, ok := b.Key(id)
	return k.Type, ok
}

// NumKeys returns the number of keys, inherited ones included.
func (b *Instance) NumKeys() int {
	return len(b.keys)
}

// ValueOffset returns the byte range a key occupies in the value buffer.
// Reference kinds report an empty range.
func (b *Instance) ValueOffset(id KeyID) (offset, size int, ok bool) {
	if int(id) >= len(b.keys) {
		return 0, 0, false
	}
	return b.offsets[id], b.keys[id].Type.ValueSize(), true
}

// RegisterObserver adds fn as an observer of key. The owner groups
// registrations for UnregisterObserversFrom and may be nil.
func (b *Instance) RegisterObserver(key KeyID, owner any, fn Observer) ObserverHandle {
	if int(key) >= len(b.keys) || fn == nil {
		return 0
	}
	b.nextHandle++
	b.observers[key] = append(b.observers[key], observerEntry{handle: b.nextHandle, owner: owner, fn: fn})
	return b.nextHandle
}

// UnregisterObserver removes one registration.
func (b *Instance) UnregisterObserver(key KeyID, handle ObserverHandle) {
	list := b.observers[key]
	for i, e := range list {
		if e.handle == handle {
			b.observers[key] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(b.observers[key]) == 0 {
		delete(b.observers, key)
	}
}

// UnregisterObserversFrom removes every registration made with owner.
func (b *Instance) UnregisterObserversFrom(owner any) {
	for key, list := range b.observers {
		kept := list[:0:0]
		for _, e := range list {
			if e.owner != owner {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(b.observers, key)
		} else {
			b.observers[key] = kept
		}
	}
}

// ObserverCount returns the number of observers registered for key.
func (b *Instance) ObserverCount(key KeyID) int {
	return len(b.observers[key])
}

// PauseUpdates defers observer notifications until ResumeUpdates.
func (b *Instance) PauseUpdates() {
	b.paused = true
}

// ResumeUpdates notifies observers of every key changed while paused, once
// per key, in key-id order.
func (b *Instance) ResumeUpdates() {
	b.paused = false
	if len(b.queued) == 0 {
		return
	}

	ids := make([]KeyID, 0, len(b.queued))
	for id := range b.queued {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	b.queued = make(map[KeyID]struct{})

	for _, id := range ids {
		b.notifyObservers(id)
	}
}

// IsPaused reports whether notifications are being deferred.
func (b *Instance) IsPaused() bool {
	return b.paused
}

func (b *Instance) notifyObservers(key KeyID) {
	if b.paused {
		b.queued[key] = struct{}{}
		return
	}

	snapshot := append([]observerEntry(nil), b.observers[key]...)
	for _, e := range snapshot {
		// skip entries removed by an earlier callback
		if !b.isRegistered(key, e.handle) {
			continue
		}
		if e.fn(b, key) == RemoveObserver {
			b.UnregisterObserver(key, e.handle)
		}
	}
}

func (b *Instance) isRegistered(key KeyID, handle ObserverHandle) bool {
	for _, e := range b.observers[key] {
		if e.handle == handle {
			return true
		}
	}
	return false
}

// slot returns the byte range of key after checking its kind.
func (b *Instance) slot(id KeyID, kinds ...Kind) ([]byte, error) {
	if int(id) >= len(b.keys) {
		return nil, fmt.Errorf("%w: id %d", ErrInvalidKey, id)
	}
	k := b.keys[id]
	for _, want := range kinds {
		if k.Type.Kind == want {
			off := b.offsets[id]
			size := k.Type.ValueSize()
			return b.values[off : off+size : off+size], nil
		}
	}
	err := fmt.Errorf("%w: key '%s' is %s, accessed as %s", ErrKeyTypeMismatch, k.Name, k.Type, kinds[0])
	log.Printf("[Blackboard] %v", err)
	return nil, err
}

func (b *Instance) setBytes(id KeyID, value []byte, kinds ...Kind) error {
	s, err := b.slot(id, kinds...)
	if err != nil {
		return err
	}
	if b.keys[id].Type.ValuesEqual(s, value) {
		return nil
	}
	copy(s, value)
	b.notifyObservers(id)
	return nil
}

func (b *Instance) ref(id KeyID, kind Kind) (any, error) {
	if _, err := b.slot(id, kind); err != nil {
		return nil, err
	}
	return b.refs[id], nil
}

func (b *Instance) setRef(id KeyID, kind Kind, value any) error {
	if _, err := b.slot(id, kind); err != nil {
		return err
	}
	if refsEqual(b.refs[id], value) {
		return nil
	}
	b.refs[id] = value
	b.notifyObservers(id)
	return nil
}

func refsEqual(a, c any) bool {
	if a == nil || c == nil {
		return a == nil && c == nil
	}
	ta, tc := reflect.TypeOf(a), reflect.TypeOf(c)
	if ta != tc || !ta.Comparable() {
		return false
	}
	return a == c
}

// ClearValue resets a key to its default value, notifying observers if it changed.
func (b *Instance) ClearValue(id KeyID) error {
	k, ok := b.Key(id)
	if !ok {
		return fmt.Errorf("%w: id %d", ErrInvalidKey, id)
	}
	if k.Type.IsReference() {
		return b.setRef(id, k.Type.Kind, defaultRef(k.Type.Kind))
	}
	return b.setBytes(id, defaultBytes(k.Type), k.Type.Kind)
}

func (b *Instance) resetValue(k Key) {
	if k.Type.IsReference() {
		b.refs[k.ID] = defaultRef(k.Type.Kind)
		return
	}
	off := b.offsets[k.ID]
	copy(b.values[off:off+k.Type.ValueSize()], defaultBytes(k.Type))
}

func defaultRef(kind Kind) any {
	switch kind {
	case KindClass, KindString:
		return ""
	}
	return nil
}

func defaultBytes(t KeyType) []byte {
	switch t.Kind {
	case KindVector:
		return encodeVec3(InvalidVector.X, InvalidVector.Y, InvalidVector.Z)
	case KindRotator:
		return encodeVec3(InvalidRotator.Pitch, InvalidRotator.Yaw, InvalidRotator.Roll)
	}
	return make([]byte, t.ValueSize())
}

func encodeVec3(a, c, d float32) []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:], math.Float32bits(a))
	binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(c))
	binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(d))
	return buf
}

func decodeVec3(s []byte) (float32, float32, float32) {
	return math.Float32frombits(binary.LittleEndian.Uint32(s[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(s[4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(s[8:]))
}

// GetValueAsObject returns an Object key's value.
func (b *Instance) GetValueAsObject(id KeyID) (any, error) {
	return b.ref(id, KindObject)
}

// SetValueAsObject stores an Object key's value.
func (b *Instance) SetValueAsObject(id KeyID, v any) error {
	return b.setRef(id, KindObject, v)
}

// GetValueAsClass returns a Class key's value (a class name).
func (b *Instance) GetValueAsClass(id KeyID) (string, error) {
	v, err := b.ref(id, KindClass)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// SetValueAsClass stores a Class key's value.
func (b *Instance) SetValueAsClass(id KeyID, v string) error {
	return b.setRef(id, KindClass, v)
}

// GetValueAsString returns a String key's value.
func (b *Instance) GetValueAsString(id KeyID) (string, error) {
	v, err := b.ref(id, KindString)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}

// SetValueAsString stores a String key's value.
func (b *Instance) SetValueAsString(id KeyID, v string) error {
	return b.setRef(id, KindString, v)
}

// GetValueAsEnum returns the index stored under an Enum or NativeEnum key.
func (b *Instance) GetValueAsEnum(id KeyID) (uint8, error) {
	s, err := b.slot(id, KindEnum, KindNativeEnum)
	if err != nil {
		return 0, err
	}
	return s[0], nil
}

// SetValueAsEnum stores an enum index.
func (b *Instance) SetValueAsEnum(id KeyID, v uint8) error {
	return b.setBytes(id, []byte{v}, KindEnum, KindNativeEnum)
}

// GetValueAsInt returns an Int key's value.
func (b *Instance) GetValueAsInt(id KeyID) (int32, error) {
	s, err := b.slot(id, KindInt)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(s)), nil
}

// SetValueAsInt stores an Int key's value.
func (b *Instance) SetValueAsInt(id KeyID, v int32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(v))
	return b.setBytes(id, buf[:], KindInt)
}

// GetValueAsFloat returns a Float key's value.
func (b *Instance) GetValueAsFloat(id KeyID) (float32, error) {
	s, err := b.slot(id, KindFloat)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(s)), nil
}

// SetValueAsFloat stores a Float key's value.
func (b *Instance) SetValueAsFloat(id KeyID, v float32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
	return b.setBytes(id, buf[:], KindFloat)
}

// GetValueAsBool returns a Bool key's value.
func (b *Instance) GetValueAsBool(id KeyID) (bool, error) {
	s, err := b.slot(id, KindBool)
	if err != nil {
		return false, err
	}
	return s[0] != 0, nil
}

// SetValueAsBool stores a Bool key's value.
func (b *Instance) SetValueAsBool(id KeyID, v bool) error {
	var val byte
	if v {
		val = 1
	}
	return b.setBytes(id, []byte{val}, KindBool)
}

// GetValueAsName returns a Name key's value.
func (b *Instance) GetValueAsName(id KeyID) (string, error) {
	s, err := b.slot(id, KindName)
	if err != nil {
		return "", err
	}
	return nameOf(binary.LittleEndian.Uint32(s)), nil
}

// SetValueAsName stores a Name key's value.
func (b *Instance) SetValueAsName(id KeyID, v string) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], internName(v))
	return b.setBytes(id, buf[:], KindName)
}

// GetValueAsVector returns a Vector key's value. Unset keys hold InvalidVector.
func (b *Instance) GetValueAsVector(id KeyID) (Vector, error) {
	s, err := b.slot(id, KindVector)
	if err != nil {
		return InvalidVector, err
	}
	x, y, z := decodeVec3(s)
	return Vector{X: x, Y: y, Z: z}, nil
}

// SetValueAsVector stores a Vector key's value.
func (b *Instance) SetValueAsVector(id KeyID, v Vector) error {
	return b.setBytes(id, encodeVec3(v.X, v.Y, v.Z), KindVector)
}

// GetValueAsRotator returns a Rotator key's value. Unset keys hold InvalidRotator.
func (b *Instance) GetValueAsRotator(id KeyID) (Rotator, error) {
	s, err := b.slot(id, KindRotator)
	if err != nil {
		return InvalidRotator, err
	}
	p, y, r := decodeVec3(s)
	return Rotator{Pitch: p, Yaw: y, Roll: r}, nil
}

// SetValueAsRotator stores a Rotator key's value.
func (b *Instance) SetValueAsRotator(id KeyID, v Rotator) error {
	return b.setBytes(id, encodeVec3(v.Pitch, v.Yaw, v.Roll), KindRotator)
}

// Name-based accessors resolve the key on every call.

func (b *Instance) GetValueAsObjectByName(name string) (any, error) {
	return b.GetValueAsObject(b.KeyID(name))
}

func (b *Instance) SetValueAsObjectByName(name string, v any) error {
	return b.SetValueAsObject(b.KeyID(name), v)
}

func (b *Instance) GetValueAsClassByName(name string) (string, error) {
	return b.GetValueAsClass(b.KeyID(name))
}

func (b *Instance) SetValueAsClassByName(name string, v string) error {
	return b.SetValueAsClass(b.KeyID(name), v)
}

func (b *Instance) GetValueAsStringByName(name string) (string, error) {
	return b.GetValueAsString(b.KeyID(name))
}

func (b *Instance) SetValueAsStringByName(name string, v string) error {
	return b.SetValueAsString(b.KeyID(name), v)
}

func (b *Instance) GetValueAsEnumByName(name string) (uint8, error) {
	return b.GetValueAsEnum(b.KeyID(name))
}

func (b *Instance) SetValueAsEnumByName(name string, v uint8) error {
	return b.SetValueAsEnum(b.KeyID(name), v)
}

func (b *Instance) GetValueAsIntByName(name string) (int32, error) {
	return b.GetValueAsInt(b.KeyID(name))
}

func (b *Instance) SetValueAsIntByName(name string, v int32) error {
	return b.SetValueAsInt(b.KeyID(name), v)
}

func (b *Instance) GetValueAsFloatByName(name string) (float32, error) {
	return b.GetValueAsFloat(b.KeyID(name))
}

func (b *Instance) SetValueAsFloatByName(name string, v float32) error {
	return b.SetValueAsFloat(b.KeyID(name), v)
}

func (b *Instance) GetValueAsBoolByName(name string) (bool, error) {
	return b.GetValueAsBool(b.KeyID(name))
}

func (b *Instance) SetValueAsBoolByName(name string, v bool) error {
	return b.SetValueAsBool(b.KeyID(name), v)
}

func (b *Instance) GetValueAsNameByName(name string) (string, error) {
	return b.GetValueAsName(b.KeyID(name))
}

func (b *Instance) SetValueAsNameByName(name string, v string) error {
	return b.SetValueAsName(b.KeyID(name), v)
}

func (b *Instance) GetValueAsVectorByName(name string) (Vector, error) {
	return b.GetValueAsVector(b.KeyID(name))
}

func (b *Instance) SetValueAsVectorByName(name string, v Vector) error {
	return b.SetValueAsVector(b.KeyID(name), v)
}

func (b *Instance) GetValueAsRotatorByName(name string) (Rotator, error) {
	return b.GetValueAsRotator(b.KeyID(name))
}

func (b *Instance) SetValueAsRotatorByName(name string, v Rotator) error {
	return b.SetValueAsRotator(b.KeyID(name), v)
}
