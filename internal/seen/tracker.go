// Package seen remembers which messages have already been shown.
//
// The set lives in memory for the lifetime of the process and only grows.
package seen

import (
	"sync"

	"github.com/teemow/inboxmerge/internal/gmail"
)

// Classification splits a batch into messages not seen before and the rest.
type Classification struct {
	New   []gmail.Message
	Known []gmail.Message
}

// NewIDs returns the ids of the New group as a set.
func (c Classification) NewIDs() map[string]bool {
	out := make(map[string]bool, len(c.New))
	for _, m := range c.New {
		out[m.ID] = true
	}
	return out
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{ids: make(map[string]struct{})}
}

// Classify partitions msgs by whether their id was seen in an earlier call,
// then records every id. Order within each group is preserved.
func (t *Tracker) Classify(msgs []gmail.Message) Classification {
	t.mu.Lock()
	defer t.mu.Unlock()

	var c Classification
	for _, m := range msgs {
		if _, ok := t.ids[m.ID]; ok {
			c.Known = append(c.Known, m)
		} else {
			c.New = append(c.New, m)
		}
	}
	for _, m := range msgs {
		t.ids[m.ID] = struct{}{}
	}
	return c
}

func (t *Tracker) has(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[id]
	return ok
}

func (t *Tracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ids)
}
