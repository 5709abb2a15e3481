/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package source

import (
	"math/rand/v2"
	"sync"
)

// rotation picks random candidates without immediately repeating the
// previous pick for a key, once more than one candidate exists.
type rotation struct {
	mu   sync.Mutex
	last map[string]string
}

func newRotation() *rotation {
	return &rotation{last: make(map[string]string)}
}

// Pick returns the index of the selected candidate. ids must be non-empty.
func (r *rotation) Pick(key string, ids []string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := rand.IntN(len(ids))
	if len(ids) > 1 && ids[idx] == r.last[key] {
		// Shift to any other candidate; uniform enough for a jukebox.
		idx = (idx + 1 + rand.IntN(len(ids)-1)) % len(ids)
	}

	r.last[key] = ids[idx]
	return idx
}
