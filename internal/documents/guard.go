package documents

import "sync"

// inflight tracks documents with an extraction running in this process.
// The zero value is ready to use.
type inflight struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// acquire claims id. The returned release must be called once the run ends.
func (g *inflight) acquire(id string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ids == nil {
		g.ids = make(map[string]struct{})
	}
	if _, busy := g.ids[id]; busy {
		return nil, false
	}
	g.ids[id] = struct{}{}
	return func() {
		g.mu.Lock()
		delete(g.ids, id)
		g.mu.Unlock()
	}, true
}

// held reports whether id is claimed in this process.
func (g *inflight) held(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.ids[id]
	return busy
}
