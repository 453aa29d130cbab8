package telemetry

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Config represents the runtime configuration exposed by the telemetry hub.
type Config struct {
	HistoryLimit     int `json:"historyLimit"`
	SubscriberBuffer int `json:"subscriberBuffer"`
}

const (
	minHistoryLimit     = 1
	maxHistoryLimit     = 100_000
	minSubscriberBuffer = 1
	maxSubscriberBuffer = 4096
)

func defaultConfig() Config {
	return Config{
		HistoryLimit:     5000,
		SubscriberBuffer: 64,
	}
}

func validateConfig(cfg Config, base Config) (Config, error) {
	if base.HistoryLimit == 0 || base.SubscriberBuffer == 0 {
		base = defaultConfig()
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = base.HistoryLimit
	}
	if cfg.SubscriberBuffer == 0 {
		cfg.SubscriberBuffer = base.SubscriberBuffer
	}
	if cfg.HistoryLimit < minHistoryLimit || cfg.HistoryLimit > maxHistoryLimit {
		return Config{}, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	if cfg.SubscriberBuffer < minSubscriberBuffer || cfg.SubscriberBuffer > maxSubscriberBuffer {
		return Config{}, fmt.Errorf("subscriber buffer must be between %d and %d", minSubscriberBuffer, maxSubscriberBuffer)
	}
	return cfg, nil
}

// Status summarizes the current sweep for dashboards.
type Status struct {
	SweepID   string    `json:"sweepId,omitempty"`
	State     string    `json:"state"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Faults    int       `json:"faults"`
	Last      *Event    `json:"last,omitempty"`
	Updated   time.Time `json:"updated"`
}

// Hub collects history and fans out telemetry events to subscribers.
type Hub struct {
	mu          sync.RWMutex
	history     []Event
	subscribers map[chan Event]struct{}
	config      Config
	status      Status
}

// NewHub builds a telemetry hub with the provided history limit.
func NewHub(historyLimit int) *Hub {
	cfg := defaultConfig()
	if historyLimit > 0 {
		cfg.HistoryLimit = historyLimit
	}
	cfg, err := validateConfig(cfg, defaultConfig())
	if err != nil {
		cfg = defaultConfig()
	}
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
		config:      cfg,
		status:      Status{State: "idle"},
	}
}

// Report implements Reporter and records a new event.
func (h *Hub) Report(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	h.mu.Lock()
	h.history = append(h.history, e)
	if len(h.history) > h.config.HistoryLimit {
		h.history = h.history[len(h.history)-h.config.HistoryLimit:]
	}
	h.updateStatus(e)
	for ch := range h.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
	h.mu.Unlock()
}

func (h *Hub) updateStatus(e Event) {
	s := &h.status
	if e.SweepID != "" && e.SweepID != s.SweepID {
		*s = Status{SweepID: e.SweepID, State: s.State}
	}
	switch e.Kind {
	case EventState:
		s.State = e.State
		if e.Total > 0 {
			s.Total = e.Total
		}
	case EventPoint:
		s.Completed = e.Index + 1
		if e.Total > 0 {
			s.Total = e.Total
		}
	case EventFault:
		s.Faults++
	}
	last := e
	s.Last = &last
	s.Updated = e.Timestamp
}

// History returns a copy of stored events.
func (h *Hub) History() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, len(h.history))
	copy(out, h.history)
	return out
}

// StatusSnapshot returns the current sweep summary.
func (h *Hub) StatusSnapshot() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// ConfigSnapshot returns the latest validated configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Subscribe registers a listener for live updates.
func (h *Hub) Subscribe() (chan Event, func()) {
	h.mu.Lock()
	ch := make(chan Event, h.config.SubscriberBuffer)
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

func (h *Hub) applyConfig(cfg Config) {
	h.config = cfg
	if len(h.history) > cfg.HistoryLimit {
		h.history = h.history[len(h.history)-cfg.HistoryLimit:]
	}
}

func (h *Hub) handleHistory(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.History())
}

func (h *Hub) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.StatusSnapshot())
}

func (h *Hub) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.ConfigSnapshot())
}

func (h *Hub) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var incoming Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	current := h.config
	h.mu.RUnlock()

	cfg, err := validateConfig(incoming, current)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.applyConfig(cfg)
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cfg)
}

func writeSSE(w http.ResponseWriter, e Event) {
	payload, _ := json.Marshal(e)
	w.Write([]byte("data: "))
	w.Write(payload)
	w.Write([]byte("\n\n"))
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	// send existing history for immediate display
	for _, e := range h.History() {
		writeSSE(w, e)
	}
	flusher.Flush()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, e)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
