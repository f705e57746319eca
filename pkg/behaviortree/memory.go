package behaviortree

import (
	"encoding/binary"
	"math"
)

// Memory is a node's slice of its instance memory. Accessors read and write
// little-endian values at byte offsets relative to the start of the slice.
type Memory []byte

const (
	memoryAlignment     = 8
	compositeHeaderSize = 4
	auxHeaderSize       = 8
)

func alignMemory(n int) int {
	return (n + memoryAlignment - 1) &^ (memoryAlignment - 1)
}

func (m Memory) Bool(off int) bool         { return m[off] != 0 }
func (m Memory) Uint8(off int) uint8       { return m[off] }
func (m Memory) SetUint8(off int, v uint8) { m[off] = v }

func (m Memory) SetBool(off int, v bool) {
	if v {
		m[off] = 1
	} else {
		m[off] = 0
	}
}

func (m Memory) Int16(off int) int16 {
	return int16(binary.LittleEndian.Uint16(m[off:]))
}

func (m Memory) SetInt16(off int, v int16) {
	binary.LittleEndian.PutUint16(m[off:], uint16(v))
}

func (m Memory) Int32(off int) int32 {
	return int32(binary.LittleEndian.Uint32(m[off:]))
}

func (m Memory) SetInt32(off int, v int32) {
	binary.LittleEndian.PutUint32(m[off:], uint32(v))
}

func (m Memory) Uint32(off int) uint32 {
	return binary.LittleEndian.Uint32(m[off:])
}

func (m Memory) SetUint32(off int, v uint32) {
	binary.LittleEndian.PutUint32(m[off:], v)
}

func (m Memory) Uint64(off int) uint64 {
	return binary.LittleEndian.Uint64(m[off:])
}

func (m Memory) SetUint64(off int, v uint64) {
	binary.LittleEndian.PutUint64(m[off:], v)
}

func (m Memory) Float32(off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(m[off:]))
}

func (m Memory) SetFloat32(off int, v float32) {
	binary.LittleEndian.PutUint32(m[off:], math.Float32bits(v))
}

func (m Memory) Float64(off int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(m[off:]))
}

func (m Memory) SetFloat64(off int, v float64) {
	binary.LittleEndian.PutUint64(m[off:], math.Float64bits(v))
}

// composite header: current child, override child
func (m Memory) currentChild() int      { return int(m.Int16(0)) }
func (m Memory) setCurrentChild(i int)  { m.SetInt16(0, int16(i)) }
func (m Memory) overrideChild() int     { return int(m.Int16(2)) }
func (m Memory) setOverrideChild(i int) { m.SetInt16(2, int16(i)) }

// aux header: next tick remaining, accumulated delta
func (m Memory) nextTickRemaining() float32     { return m.Float32(0) }
func (m Memory) setNextTickRemaining(v float32) { m.SetFloat32(0, v) }
func (m Memory) accumulatedDelta() float32      { return m.Float32(4) }
func (m Memory) setAccumulatedDelta(v float32)  { m.SetFloat32(4, v) }
