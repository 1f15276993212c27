package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CounterEntry is one key of a Counter with its count.
type CounterEntry struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// Counter is a key→count tally that remembers the order keys were first seen.
// The zero value and a nil *Counter are both empty counters; Inc requires a non-nil receiver.
type Counter struct {
	m *orderedmap.OrderedMap[string, int]
}

// NewCounter returns an empty counter.
func NewCounter() *Counter {
	return &Counter{m: orderedmap.New[string, int]()}
}

// Inc adds n to key, appending key if it has not been seen before.
func (c *Counter) Inc(key string, n int) {
	if c.m == nil {
		c.m = orderedmap.New[string, int]()
	}
	cur, _ := c.m.Get(key)
	c.m.Set(key, cur+n)
}

// Get returns the count for key, 0 if absent.
func (c *Counter) Get(key string) int {
	if c == nil || c.m == nil {
		return 0
	}
	v, _ := c.m.Get(key)
	return v
}

// Len returns the number of distinct keys.
func (c *Counter) Len() int {
	if c == nil || c.m == nil {
		return 0
	}
	return c.m.Len()
}

// Total returns the sum of all counts.
func (c *Counter) Total() int {
	total := 0
	for _, e := range c.Entries() {
		total += e.Count
	}
	return total
}

// Entries returns the counts in first-seen order.
func (c *Counter) Entries() []CounterEntry {
	if c == nil || c.m == nil {
		return nil
	}
	out := make([]CounterEntry, 0, c.m.Len())
	for pair := c.m.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, CounterEntry{Type: pair.Key, Count: pair.Value})
	}
	return out
}

// Keys returns the keys in first-seen order.
func (c *Counter) Keys() []string {
	entries := c.Entries()
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Type
	}
	return keys
}

// Clone returns an independent copy. Cloning nil yields an empty counter.
func (c *Counter) Clone() *Counter {
	out := NewCounter()
	for _, e := range c.Entries() {
		out.m.Set(e.Type, e.Count)
	}
	return out
}

// MarshalJSON encodes the counter as a JSON object whose keys keep first-seen order.
func (c *Counter) MarshalJSON() ([]byte, error) {
	if c == nil || c.m == nil {
		return []byte("{}"), nil
	}
	return c.m.MarshalJSON()
}

// UnmarshalJSON accepts either a JSON object (order of appearance is kept) or an array of
// {type,count} entries as written by MarshalEntries.
func (c *Counter) UnmarshalJSON(data []byte) error {
	c.m = orderedmap.New[string, int]()
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return nil
	case trimmed[0] == '[':
		var entries []CounterEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return fmt.Errorf("counter entries: %w", err)
		}
		for _, e := range entries {
			c.Inc(e.Type, e.Count)
		}
		return nil
	default:
		return c.m.UnmarshalJSON(trimmed)
	}
}

// MarshalEntries encodes the counter as an array of {type,count} entries.
// Storage uses this form because JSONB does not preserve object key order.
func (c *Counter) MarshalEntries() ([]byte, error) {
	entries := c.Entries()
	if entries == nil {
		entries = []CounterEntry{}
	}
	return json.Marshal(entries)
}

// CounterFromMap builds a counter from m, adding keys in sorted order for determinism.
func CounterFromMap(m map[string]int) *Counter {
	c := NewCounter()
	for _, k := range slices.Sorted(maps.Keys(m)) {
		c.Inc(k, m[k])
	}
	return c
}
