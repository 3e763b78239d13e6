// Package breakpoint implements the table of armed source locations.
//
// A breakpoint is identified by its insertion index, which is also the id
// the IDE sees. Removing a breakpoint leaves a hole so every other id stays
// valid; indices are never reused.
package breakpoint

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ctagard/dbgpd/pkg/types"
)

// FileScheme is stripped from paths the IDE sends.
const FileScheme = "file://"

type entry struct {
	location string
	removed  bool
}

// Registry is an ordered table of "path:line" locations.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Location builds the normalized "path:line" key for a source position.
func Location(path string, line int) string {
	return fmt.Sprintf("%s:%d", strings.TrimPrefix(path, FileScheme), line)
}

// Set arms path:line and returns its id. Setting an armed location again
// returns the existing id.
func (r *Registry) Set(path string, line int) int {
	loc := Location(path, line)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id := r.indexLocked(loc); id >= 0 {
		return id
	}
	r.entries = append(r.entries, entry{location: loc})
	return len(r.entries) - 1
}

// Remove disarms the breakpoint with the given id. Unknown ids are ignored.
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id < 0 || id >= len(r.entries) {
		return
	}
	r.entries[id].removed = true
}

// Armed reports whether file:line is a live breakpoint.
func (r *Registry) Armed(file string, line int) bool {
	loc := Location(file, line)

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexLocked(loc) >= 0
}

// Lookup returns the location for a live id.
func (r *Registry) Lookup(id int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id < 0 || id >= len(r.entries) || r.entries[id].removed {
		return "", false
	}
	return r.entries[id].location, true
}

// List returns the live breakpoints in id order.
func (r *Registry) List() []types.BreakpointInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]types.BreakpointInfo, 0, len(r.entries))
	for id, e := range r.entries {
		if e.removed {
			continue
		}
		list = append(list, types.BreakpointInfo{ID: id, Location: e.location})
	}
	return list
}

// Len returns the number of live breakpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		if !e.removed {
			n++
		}
	}
	return n
}

// indexLocked does the linear scan. Breakpoint tables are small.
func (r *Registry) indexLocked(loc string) int {
	for id, e := range r.entries {
		if !e.removed && e.location == loc {
			return id
		}
	}
	return -1
}
