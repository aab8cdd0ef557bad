package cache

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ProgramCache holds compiled rule and guard programs keyed by their owning
// entity id. It is an explicit object passed by reference into the
// validators; when a question or edge is reconfigured the owner invalidates
// its key and the next lookup recompiles.
type ProgramCache struct {
	mu       sync.RWMutex
	programs map[string]*vm.Program
	sources  map[string]string
}

func NewProgramCache() *ProgramCache {
	return &ProgramCache{
		programs: make(map[string]*vm.Program),
		sources:  make(map[string]string),
	}
}

// Get returns the compiled program for key, compiling source on a miss. A
// changed source under the same key recompiles, so stale configuration can
// never be evaluated.
func (c *ProgramCache) Get(key, source string) (*vm.Program, error) {
	c.mu.RLock()
	program, ok := c.programs[key]
	cached := c.sources[key]
	c.mu.RUnlock()

	if ok && cached == source {
		return program, nil
	}

	program, err := expr.Compile(source)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.programs[key] = program
	c.sources[key] = source
	c.mu.Unlock()

	return program, nil
}

// Invalidate drops the compiled program for key.
func (c *ProgramCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.programs, key)
	delete(c.sources, key)
	c.mu.Unlock()
}

// Reset drops every compiled program.
func (c *ProgramCache) Reset() {
	c.mu.Lock()
	c.programs = make(map[string]*vm.Program)
	c.sources = make(map[string]string)
	c.mu.Unlock()
}

// Len reports how many programs are currently compiled.
func (c *ProgramCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}
