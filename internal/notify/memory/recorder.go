// Package memory contains an in-memory notify subscriber for tests and the
// scrape CLI.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Recorder stores delivered events for inspection.
type Recorder struct {
	mu       sync.RWMutex
	messages []string
}

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{}
}

// Send records the text.
func (r *Recorder) Send(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	return nil
}

// Messages returns the recorded texts.
func (r *Recorder) Messages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.messages))
	copy(out, r.messages)
	return out
}

// Events decodes the recorded texts as JSON event envelopes and returns the
// value of each "event" field.
func (r *Recorder) Events() ([]string, error) {
	msgs := r.Messages()
	kinds := make([]string, 0, len(msgs))
	for i, m := range msgs {
		var env struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal([]byte(m), &env); err != nil {
			return nil, fmt.Errorf("decode message %d: %w", i, err)
		}
		kinds = append(kinds, env.Event)
	}
	return kinds, nil
}
