package installer

import (
	"sync"

	"github.com/opskernel/pimhub/internal/pim/metrics"
)

// pendingDeletes tracks, per plugin id, file paths the installer could not
// delete immediately (the OS still had them locked) and must retry on a
// future successful load.
type pendingDeletes struct {
	mu    sync.Mutex
	paths map[string][]string
}

func newPendingDeletes() *pendingDeletes {
	return &pendingDeletes{paths: map[string][]string{}}
}

func (p *pendingDeletes) add(pluginID, path string) {
	p.mu.Lock()
	p.paths[pluginID] = append(p.paths[pluginID], path)
	count := p.countLocked()
	p.mu.Unlock()
	metrics.SetPendingDeletions(count)
}

// takeAndClear returns and clears every path pending for pluginID. The
// installer calls this right after a successful load so the last worker's
// cleanup wins.
func (p *pendingDeletes) takeAndClear(pluginID string) []string {
	p.mu.Lock()
	paths := p.paths[pluginID]
	delete(p.paths, pluginID)
	count := p.countLocked()
	p.mu.Unlock()
	metrics.SetPendingDeletions(count)
	return paths
}

func (p *pendingDeletes) countLocked() int {
	n := 0
	for _, paths := range p.paths {
		n += len(paths)
	}
	return n
}
