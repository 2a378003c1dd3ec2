// Package poll implements in-memory polls with one vote per voter.
package poll

import (
	"errors"
	"fmt"
	"sync"
)

const MaxOptions = 25 // Discord button-row ceiling

var (
	ErrNotFound       = errors.New("poll not found")
	ErrBadOption      = errors.New("option out of range")
	ErrNoOptions      = errors.New("a poll needs at least two options")
	ErrTooManyChoices = errors.New("too many options")
)

// Poll is a question with ordered options and a per-voter choice map.
type Poll struct {
	ID       string
	Question string
	Options  []string

	// votes maps voter identity to option index. One entry per voter is
	// the single-membership invariant.
	votes map[string]int
}

// Result is the tally for one option, in creation order.
type Result struct {
	Option string `json:"option"`
	Votes  int    `json:"votes"`
}

// Manager owns all live polls. Safe for concurrent use.
type Manager struct {
	mu    sync.Mutex
	seq   int
	polls map[string]*Poll
}

func NewManager() *Manager {
	return &Manager{polls: make(map[string]*Poll)}
}

// Create registers a poll and returns its ID.
func (m *Manager) Create(question string, options []string) (string, error) {
	if len(options) < 2 {
		return "", ErrNoOptions
	}
	if len(options) > MaxOptions {
		return "", ErrTooManyChoices
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	id := fmt.Sprintf("poll-%d", m.seq)
	opts := make([]string, len(options))
	copy(opts, options)
	m.polls[id] = &Poll{
		ID:       id,
		Question: question,
		Options:  opts,
		votes:    make(map[string]int),
	}
	return id, nil
}

// Vote records voter's choice. A voter holds at most one choice: voting for
// a different option moves the vote, re-voting the same option is a no-op
// confirm.
func (m *Manager) Vote(id string, option int, voter string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.polls[id]
	if !ok {
		return ErrNotFound
	}
	if option < 0 || option >= len(p.Options) {
		return ErrBadOption
	}
	p.votes[voter] = option
	return nil
}

// Results returns the tally in option order.
func (m *Manager) Results(id string) (string, []Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.polls[id]
	if !ok {
		return "", nil, ErrNotFound
	}

	results := make([]Result, len(p.Options))
	for i, opt := range p.Options {
		results[i] = Result{Option: opt}
	}
	for _, choice := range p.votes {
		results[choice].Votes++
	}
	return p.Question, results, nil
}

// Close removes a finished poll.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.polls, id)
}
