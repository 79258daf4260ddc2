package transaction

import "sync"

// Manager is the injected collaborator that owns the ID→*Transaction
// mapping. spec.md §9 flags a global transaction table as an anti-pattern
// for testability; every component that needs to look up a transaction by
// ID (chiefly the lock manager's wound-wait step) is handed a *Manager
// explicitly instead of reaching for a package-level singleton.
type Manager struct {
	mu   sync.RWMutex
	byID map[ID]*Transaction
}

// NewManager creates an empty transaction table.
func NewManager() *Manager {
	return &Manager{byID: make(map[ID]*Transaction)}
}

// Begin creates a new transaction at the given isolation level, registers
// it, and returns it.
func (m *Manager) Begin(isolation IsolationLevel) *Transaction {
	txn := New(NewID(), isolation)
	m.mu.Lock()
	m.byID[txn.id] = txn
	m.mu.Unlock()
	return txn
}

// Get looks up a transaction by ID.
func (m *Manager) Get(id ID) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	txn, ok := m.byID[id]
	return txn, ok
}

// Remove drops a finished transaction from the table.
func (m *Manager) Remove(id ID) {
	m.mu.Lock()
	delete(m.byID, id)
	m.mu.Unlock()
}

// Active returns every transaction still in the GROWING or SHRINKING phase.
func (m *Manager) Active() []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	active := make([]*Transaction, 0, len(m.byID))
	for _, txn := range m.byID {
		if txn.State() == Growing || txn.State() == Shrinking {
			active = append(active, txn)
		}
	}
	return active
}
