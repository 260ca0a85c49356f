package mempool

import "sort"

// Evict removes the lowest fee-density transactions until the pool is at
// or below maxSize, returning the number removed. Set already refuses
// new transactions once the pool is full; Evict exists for a node that
// wants to make room for a transaction it has independent reason to
// prefer (e.g. its own).
func (p *Pool) Evict() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.txs) <= p.maxSize {
		return 0
	}

	type idEntry struct {
		id string
		e  *entry
	}
	entries := make([]idEntry, 0, len(p.txs))
	for id, e := range p.txs {
		entries = append(entries, idEntry{id, e})
	}
	sort.Slice(entries, func(i, j int) bool {
		return feeDensity(entries[i].e.tx) < feeDensity(entries[j].e.tx)
	})

	evicted := 0
	for len(p.txs) > p.maxSize && evicted < len(entries) {
		delete(p.txs, entries[evicted].id)
		evicted++
	}
	return evicted
}
