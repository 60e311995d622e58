// Package queue holds the ordered list of targets awaiting downstream
// integration. The list is a small JSON file so it survives restarts and
// stays hand-editable.
package queue

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
)

// Queue is an ordered set of target names.
type Queue struct {
	path  string
	items []string
}

// Load reads the queue at path. A missing or corrupt file yields an empty
// queue rather than an error; the file is recreated on the next save.
func Load(path string) *Queue {
	q := &Queue{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		return q
	}
	if err := json.Unmarshal(data, &q.items); err != nil {
		q.items = nil
	}
	return q
}

func (q *Queue) save() error {
	if dir := filepath.Dir(q.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(q.items, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(q.path, data, 0o644)
}

// Items returns the queue contents in order.
func (q *Queue) Items() []string {
	return slices.Clone(q.items)
}

// Add appends a target unless already queued. Reports whether it was added.
func (q *Queue) Add(name string) (bool, error) {
	if slices.Contains(q.items, name) {
		return false, nil
	}
	q.items = append(q.items, name)
	return true, q.save()
}

// Remove drops a target from the queue.
func (q *Queue) Remove(name string) error {
	before := len(q.items)
	q.items = slices.DeleteFunc(q.items, func(s string) bool { return s == name })
	if len(q.items) == before {
		return nil
	}
	return q.save()
}

// Next returns the front of the queue.
func (q *Queue) Next() (string, bool) {
	if len(q.items) == 0 {
		return "", false
	}
	return q.items[0], true
}

// Defer moves a target to the back of the queue.
func (q *Queue) Defer(name string) error {
	if !slices.Contains(q.items, name) {
		return errors.New("target not queued")
	}
	q.items = slices.DeleteFunc(q.items, func(s string) bool { return s == name })
	q.items = append(q.items, name)
	return q.save()
}
