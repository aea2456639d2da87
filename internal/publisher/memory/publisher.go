// Package memory keeps session notices in process for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

const defaultCapacity = 1024

// attributer matches payloads that carry routing attributes, such as the
// session notices published by the progress sinks.
type attributer interface {
	Attributes() map[string]string
}

// Notice is one retained publish.
type Notice struct {
	ID         string
	Topic      string
	Payload    any
	Attributes map[string]string
}

// Publisher retains the most recent notices up to a fixed capacity so a
// long-running local console does not grow without bound.
type Publisher struct {
	mu       sync.RWMutex
	capacity int
	seq      int
	notices  []Notice
	err      error
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithCapacity bounds how many notices are retained. Non-positive values keep
// the default.
func WithCapacity(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.capacity = n
		}
	}
}

// New returns a memory Publisher.
func New(opts ...Option) *Publisher {
	p := &Publisher{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FailWith makes subsequent publishes return err (nil restores success).
func (p *Publisher) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish retains the notice, evicting the oldest one when full.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.seq++
	n := Notice{ID: fmt.Sprintf("memory-%d", p.seq), Topic: topic, Payload: payload}
	if a, ok := payload.(attributer); ok {
		n.Attributes = maps.Clone(a.Attributes())
	}
	if len(p.notices) == p.capacity {
		copy(p.notices, p.notices[1:])
		p.notices = p.notices[:len(p.notices)-1]
	}
	p.notices = append(p.notices, n)
	return n.ID, nil
}

// Messages returns the retained notices, oldest first.
func (p *Publisher) Messages() []Notice {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Notice, len(p.notices))
	copy(out, p.notices)
	return out
}

// Topic returns the retained notices published to topic.
func (p *Publisher) Topic(topic string) []Notice {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Notice
	for _, n := range p.notices {
		if n.Topic == topic {
			out = append(out, n)
		}
	}
	return out
}
