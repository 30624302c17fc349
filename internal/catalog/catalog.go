// Package catalog keeps the in-memory list of stored builds consistent
// while refreshes and local edits complete in any order.
//
// Every refresh and every local mutation takes a Ticket from one monotonic
// sequence when it starts. A completed refresh replaces the collection and
// then replays the mutations that started after it, so a list fetched
// before a delete can never bring the deleted row back. A refresh that
// started before the last applied one is dropped.
package catalog

import (
	"sync"

	"github.com/patternguard/console/internal/models"
)

// Ticket orders operations by the time they started.
type Ticket uint64

type mutationKind int

const (
	mutationInsert mutationKind = iota
	mutationRemove
)

type mutation struct {
	ticket Ticket
	kind   mutationKind
	record models.FileRecord // insert
	id     string            // remove
}

// Catalog is safe for concurrent use.
type Catalog struct {
	mu        sync.Mutex
	seq       Ticket
	applied   Ticket // ticket of the last applied refresh
	records   []models.FileRecord
	mutations []mutation
}

// New returns an empty Catalog.
func New() *Catalog {
	return &Catalog{}
}

// BeginRefresh takes a ticket for a list fetch that is about to start.
func (c *Catalog) BeginRefresh() Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next()
}

// BeginMutation takes a ticket for an upload or delete that is about to
// start.
func (c *Catalog) BeginMutation() Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next()
}

func (c *Catalog) next() Ticket {
	c.seq++
	return c.seq
}

// CompleteRefresh applies a fetched list. It reports false when the
// result was older than one already applied and was dropped.
func (c *Catalog) CompleteRefresh(ticket Ticket, records []models.FileRecord) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ticket <= c.applied {
		return false
	}
	c.applied = ticket

	c.records = append([]models.FileRecord(nil), records...)
	kept := c.mutations[:0]
	for _, m := range c.mutations {
		if m.ticket <= ticket {
			continue
		}
		c.apply(m)
		kept = append(kept, m)
	}
	c.mutations = kept
	return true
}

// Insert prepends record for a mutation that succeeded. A record whose ID
// is already present is not duplicated.
func (c *Catalog) Insert(ticket Ticket, record models.FileRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(mutation{ticket: ticket, kind: mutationInsert, record: record})
}

// Remove drops the record with id for a mutation that succeeded.
func (c *Catalog) Remove(ticket Ticket, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(mutation{ticket: ticket, kind: mutationRemove, id: id})
}

// record applies m now and keeps it for replay over refreshes that started
// before it. Caller holds c.mu.
func (c *Catalog) record(m mutation) {
	c.apply(m)
	if m.ticket > c.applied {
		c.mutations = append(c.mutations, m)
	}
}

// apply changes the collection. Caller holds c.mu.
func (c *Catalog) apply(m mutation) {
	switch m.kind {
	case mutationInsert:
		for _, r := range c.records {
			if r.ID == m.record.ID {
				return
			}
		}
		c.records = append([]models.FileRecord{m.record}, c.records...)
	case mutationRemove:
		kept := c.records[:0:0]
		for _, r := range c.records {
			if r.ID != m.id {
				kept = append(kept, r)
			}
		}
		c.records = kept
	}
}

// Records returns a copy of the collection.
func (c *Catalog) Records() []models.FileRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.FileRecord(nil), c.records...)
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Find returns the record with id.
func (c *Catalog) Find(id string) (models.FileRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range c.records {
		if r.ID == id {
			return r, true
		}
	}
	return models.FileRecord{}, false
}
