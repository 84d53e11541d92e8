package profiling

import (
	"fmt"
	"io"
	"sync"
	"text/tabwriter"
	"time"
)

// Stopper ends a timed span.
type Stopper interface {
	Stop()
}

// Stat aggregates every span recorded under one name.
type Stat struct {
	Name  string        `json:"name"`
	Count int           `json:"count"`
	Total time.Duration `json:"total"`
	Max   time.Duration `json:"max"`
}

// Mean is the average span duration.
func (s Stat) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Recorder folds span durations into per-name totals, so its size does not
// grow with the number of execution cycles. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	enabled bool
	started time.Time
	stats   map[string]*Stat
	order   []string
}

// NewRecorder creates a disabled Recorder.
func NewRecorder() *Recorder {
	return &Recorder{stats: make(map[string]*Stat)}
}

// Enable starts recording. The wall clock for Summarize starts here.
func (r *Recorder) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled {
		return
	}
	r.enabled = true
	r.started = time.Now()
}

// Enabled reports whether spans are being recorded.
func (r *Recorder) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Start begins a span. Stop it exactly once, typically via defer.
func (r *Recorder) Start(name string) Stopper {
	if !r.Enabled() {
		return noopStopper{}
	}
	return &span{recorder: r, name: name, start: time.Now()}
}

func (r *Recorder) record(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stats[name]
	if !ok {
		st = &Stat{Name: name}
		r.stats[name] = st
		r.order = append(r.order, name)
	}
	st.Count++
	st.Total += d
	if d > st.Max {
		st.Max = d
	}
}

// Stats returns a copy of the aggregates in first-seen order.
func (r *Recorder) Stats() []Stat {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Stat, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.stats[name])
	}
	return out
}

// Summarize writes one row per span name with its share of wall time.
func (r *Recorder) Summarize(w io.Writer) {
	if !r.Enabled() {
		return
	}
	r.mu.Lock()
	wall := time.Since(r.started)
	r.mu.Unlock()

	fmt.Fprintln(w, "\n--- Timing Profile ---")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "span\tcount\ttotal\tmean\tmax\twall")
	for _, st := range r.Stats() {
		share := 0.0
		if wall > 0 {
			share = float64(st.Total) / float64(wall) * 100
		}
		fmt.Fprintf(tw, "%s\t%d\t%v\t%v\t%v\t%.1f%%\n",
			st.Name, st.Count, round(st.Total), round(st.Mean()), round(st.Max), share)
	}
	tw.Flush()
	fmt.Fprintln(w, "----------------------")
}

func round(d time.Duration) time.Duration {
	return d.Round(100 * time.Microsecond)
}

type span struct {
	recorder *Recorder
	name     string
	start    time.Time
	once     sync.Once
}

// Stop records the span. Extra calls are ignored.
func (s *span) Stop() {
	s.once.Do(func() {
		s.recorder.record(s.name, time.Since(s.start))
	})
}

type noopStopper struct{}

func (noopStopper) Stop() {}

var defaultRecorder = NewRecorder()

// Enable turns on the process-wide recorder.
func Enable() {
	defaultRecorder.Enable()
}

// Start begins a span on the process-wide recorder.
func Start(name string) Stopper {
	return defaultRecorder.Start(name)
}

// Summarize prints the process-wide recorder's table.
func Summarize(w io.Writer) {
	defaultRecorder.Summarize(w)
}
