package pmm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sharedcode/pmtree"
)

// region is one allocated block of the in-memory pool.
type region struct {
	data []byte
	// freed marks a region whose id has been returned via Free during the
	// current transaction; the bytes are kept around until commit so abort
	// can resurrect them.
	freed bool
}

// inMemoryManager is a reference Manager backed by a plain Go map. It is not
// safe for concurrent transactions: only one transaction may be open at a
// time, matching spec.md's single-writer assumption for a given pool.
type inMemoryManager struct {
	mu    sync.Mutex
	pool  map[pmtree.UUID]*region
	stage Stage

	// undo log for the in-flight transaction.
	snapshots map[pmtree.UUID][]byte // id -> pre-transaction bytes, first-enrollment-wins
	allocated []pmtree.UUID          // ids allocated during this transaction, freed wholesale on abort
	freedNow  []pmtree.UUID          // ids Free'd during this transaction, resurrected on abort
}

// NewInMemory returns a Manager whose pool lives entirely in process memory.
// It grounds spec.md's abstract PMM in a concrete, dependency-free
// implementation suitable for tests. The façade has no built-in default
// Manager: its constructors take one from the caller.
func NewInMemory() Manager {
	return &inMemoryManager{
		pool: make(map[pmtree.UUID]*region),
	}
}

func (m *inMemoryManager) TxBegin(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stage == StageWorking {
		return pmtree.New(pmtree.StageViolation, fmt.Errorf("transaction already begun"), nil)
	}
	m.stage = StageWorking
	m.snapshots = make(map[pmtree.UUID][]byte)
	m.allocated = nil
	m.freedNow = nil
	return nil
}

func (m *inMemoryManager) TxCommit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stage != StageWorking {
		return pmtree.New(pmtree.StageViolation, fmt.Errorf("no transaction in progress"), nil)
	}
	for _, id := range m.freedNow {
		delete(m.pool, id)
	}
	m.stage = StageCommitted
	m.snapshots = nil
	m.allocated = nil
	m.freedNow = nil
	return nil
}

func (m *inMemoryManager) TxAbort(ctx context.Context, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stage != StageWorking {
		return pmtree.New(pmtree.StageViolation, fmt.Errorf("no transaction in progress"), nil)
	}
	for id, snap := range m.snapshots {
		if r, ok := m.pool[id]; ok {
			r.data = snap
			r.freed = false
		}
	}
	for _, id := range m.allocated {
		delete(m.pool, id)
	}
	m.stage = StageAborted
	m.snapshots = nil
	m.allocated = nil
	m.freedNow = nil
	return nil
}

func (m *inMemoryManager) TxStage() Stage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage
}

func (m *inMemoryManager) requireWorking() error {
	if m.stage != StageWorking {
		return pmtree.New(pmtree.StageViolation, fmt.Errorf("operation requires an active transaction"), nil)
	}
	return nil
}

func (m *inMemoryManager) Alloc(ctx context.Context, size int) (pmtree.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireWorking(); err != nil {
		return pmtree.NilUUID, err
	}
	if size < 0 {
		return pmtree.NilUUID, pmtree.New(pmtree.Invalid, fmt.Errorf("negative allocation size %d", size), nil)
	}
	id := pmtree.NewUUID()
	m.pool[id] = &region{data: make([]byte, size)}
	m.allocated = append(m.allocated, id)
	return id, nil
}

func (m *inMemoryManager) Zalloc(ctx context.Context, size int) (pmtree.UUID, error) {
	// make([]byte, size) is already zero-filled; Alloc already provides
	// Zalloc's guarantee for this backing store.
	return m.Alloc(ctx, size)
}

func (m *inMemoryManager) Free(ctx context.Context, id pmtree.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireWorking(); err != nil {
		return err
	}
	r, ok := m.pool[id]
	if !ok || r.freed {
		return pmtree.New(pmtree.NoHandle, fmt.Errorf("unknown or already-freed id %s", id), id)
	}
	if _, enrolled := m.snapshots[id]; !enrolled {
		m.snapshots[id] = append([]byte(nil), r.data...)
	}
	r.freed = true
	m.freedNow = append(m.freedNow, id)
	return nil
}

func (m *inMemoryManager) IDToPtr(ctx context.Context, id pmtree.UUID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.pool[id]
	if !ok || r.freed {
		return nil, pmtree.New(pmtree.NoHandle, fmt.Errorf("unknown or freed id %s", id), id)
	}
	return r.data, nil
}

func (m *inMemoryManager) TxAdd(ctx context.Context, id pmtree.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireWorking(); err != nil {
		return err
	}
	r, ok := m.pool[id]
	if !ok {
		return pmtree.New(pmtree.NoHandle, fmt.Errorf("unknown id %s", id), id)
	}
	if _, enrolled := m.snapshots[id]; !enrolled {
		m.snapshots[id] = append([]byte(nil), r.data...)
	}
	return nil
}

func (m *inMemoryManager) TxAddPtr(ctx context.Context, id pmtree.UUID, ptr []byte) error {
	// The in-memory backing store addresses everything by id; ptr is only
	// used by callers that already hold it from an earlier IDToPtr, so
	// enrollment reduces to TxAdd(id).
	return m.TxAdd(ctx, id)
}
