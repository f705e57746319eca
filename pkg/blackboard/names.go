package blackboard

import "sync"

// Name keys store an interned id so that they fit the value buffer.
// The table is process-wide and only grows; id 0 is the empty name.
var names = struct {
	sync.RWMutex
	ids    map[string]uint32
	values []string
}{
	ids:    map[string]uint32{"": 0},
	values: []string{""},
}

func internName(s string) uint32 {
	names.RLock()
	id, ok := names.ids[s]
	names.RUnlock()
	if ok {
		return id
	}

	names.Lock()
	defer names.Unlock()
	if id, ok := names.ids[s]; ok {
		return id
	}
	id = uint32(len(names.values))
	names.values = append(names.values, s)
	names.ids[s] = id
	return id
}

func nameOf(id uint32) string {
	names.RLock()
	defer names.RUnlock()
	if int(id) < len(names.values) {
		return names.values[id]
	}
	return ""
}
