package instrument

import (
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// Instrument is a tradable security identified by its ticker.
type Instrument struct {
	Name   string `json:"name"`
	Ticker string `json:"ticker"`
}

var tickerRE = regexp.MustCompile(`^[A-Z]{2,10}$`)

// ValidTicker reports whether s is a well-formed ticker (2-10 uppercase
// letters).
func ValidTicker(s string) bool {
	return tickerRE.MatchString(s)
}

// Registry holds the listed instruments, keyed by ticker.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]Instrument
}

func NewRegistry() *Registry {
	return &Registry{instruments: make(map[string]Instrument)}
}

// Add lists a new instrument. The ticker must be unique and well-formed.
func (r *Registry) Add(ins Instrument) error {
	if !ValidTicker(ins.Ticker) {
		return fmt.Errorf("invalid ticker format %q", ins.Ticker)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instruments[ins.Ticker]; exists {
		return fmt.Errorf("ticker %s must be unique", ins.Ticker)
	}
	r.instruments[ins.Ticker] = ins
	return nil
}

// Remove delists an instrument. Resting orders and the ticker's book are left
// behind; they are simply no longer reachable through the public surface.
func (r *Registry) Remove(ticker string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.instruments[ticker]; !exists {
		return false
	}
	delete(r.instruments, ticker)
	return true
}

func (r *Registry) Exists(ticker string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instruments[ticker]
	return ok
}

// List returns all listed instruments sorted by ticker.
func (r *Registry) List() []Instrument {
	r.mu.RLock()
	out := make([]Instrument, 0, len(r.instruments))
	for _, ins := range r.instruments {
		out = append(out, ins)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}
