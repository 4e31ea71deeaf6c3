package client

import (
	"sort"
	"sync"

	"localshare/core"
)

// View is a client-side mirror of the host registry. Pushed items are merged
// idempotently by id; a session's catch-up list then replaces everything the
// view held from earlier sessions. Items are kept sorted by id, which for host
// generated ids is registry order.
type View struct {
	mu         sync.Mutex
	items      []core.Item
	index      map[string]struct{}
	generation uint64

	// pushed holds items merged since the current session started. They
	// survive the session's catch-up, which may predate them.
	pushed map[string]core.Item

	// OnChange, when set, is called after every change with a copy of the list.
	OnChange func(items []core.Item)
}

func NewView() *View {
	return &View{
		index:  make(map[string]struct{}),
		pushed: make(map[string]core.Item),
	}
}

// BeginSession starts tracking pushed items for a new push session and
// returns the generation to pass to ApplySnapshot. Call it once the host has
// confirmed the subscription and before fetching the list.
func (v *View) BeginSession() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pushed = make(map[string]core.Item)
	return v.generation
}

// Merge adds items not already present and reports how many were new.
func (v *View) Merge(items ...core.Item) int {
	v.mu.Lock()
	for _, item := range items {
		if item.ID != "" {
			v.pushed[item.ID] = item
		}
	}
	added := v.mergeLocked(items)
	snapshot := v.snapshotLocked(added)
	v.mu.Unlock()

	v.notify(snapshot)
	return added
}

// ApplySnapshot makes a fetched list authoritative: the view becomes items
// plus whatever was pushed since BeginSession. Items from earlier sessions
// that the host no longer has are dropped. When a clear arrived since
// BeginSession returned gen, the list predates it and is discarded. It
// reports whether the list was applied.
func (v *View) ApplySnapshot(gen uint64, items []core.Item) bool {
	v.mu.Lock()
	if gen != v.generation {
		v.mu.Unlock()
		return false
	}

	previous := v.items
	v.items = nil
	v.index = make(map[string]struct{})
	v.mergeLocked(items)
	for _, item := range v.pushed {
		v.mergeLocked([]core.Item{item})
	}

	changed := 0
	if !sameIDs(previous, v.items) {
		changed = 1
	}
	snapshot := v.snapshotLocked(changed)
	v.mu.Unlock()

	v.notify(snapshot)
	return true
}

// Clear empties the view and starts a new generation.
func (v *View) Clear() {
	v.mu.Lock()
	v.items = nil
	v.index = make(map[string]struct{})
	v.pushed = make(map[string]core.Item)
	v.generation++
	snapshot := v.snapshotLocked(1)
	v.mu.Unlock()

	v.notify(snapshot)
}

func (v *View) Generation() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.generation
}

// Items returns a copy in host order.
func (v *View) Items() []core.Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]core.Item, len(v.items))
	copy(out, v.items)
	return out
}

func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.items)
}

func (v *View) mergeLocked(items []core.Item) int {
	added := 0
	for _, item := range items {
		if item.ID == "" {
			continue
		}
		if _, ok := v.index[item.ID]; ok {
			continue
		}
		v.index[item.ID] = struct{}{}
		v.items = append(v.items, item)
		added++
	}
	if added > 0 {
		sort.SliceStable(v.items, func(i, j int) bool {
			return v.items[i].ID < v.items[j].ID
		})
	}
	return added
}

func (v *View) snapshotLocked(changed int) []core.Item {
	if v.OnChange == nil || changed == 0 {
		return nil
	}
	out := make([]core.Item, len(v.items))
	copy(out, v.items)
	return out
}

func (v *View) notify(snapshot []core.Item) {
	if snapshot != nil && v.OnChange != nil {
		v.OnChange(snapshot)
	}
}

func sameIDs(a, b []core.Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}
