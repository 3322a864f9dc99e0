// Package progress prints periodic crawl counters to the console.
package progress

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nao1215/friendcrawl/internal/clock"
	"github.com/nao1215/friendcrawl/internal/store"
)

// DefaultInterval is the time between progress lines.
const DefaultInterval = 10 * time.Second

// StatsSource provides aggregate counters without blocking the crawl.
type StatsSource interface {
	Stats() store.Stats
}

// Reporter writes a progress line on every tick. It only reads counters.
type Reporter struct {
	src      StatsSource
	w        io.Writer
	interval time.Duration
	clock    clock.Clock
	printer  *message.Printer

	mu        sync.Mutex
	start     time.Time
	baseline  store.Stats
	startOnce sync.Once
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithInterval sets the time between lines.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) {
		r.interval = d
	}
}

// WithClock sets the clock used for throughput.
func WithClock(c clock.Clock) Option {
	return func(r *Reporter) {
		r.clock = c
	}
}

// WithLanguage sets the language used for number formatting.
func WithLanguage(tag language.Tag) Option {
	return func(r *Reporter) {
		r.printer = message.NewPrinter(tag)
	}
}

// New returns a Reporter that reads src and writes to w.
func New(src StatsSource, w io.Writer, opts ...Option) *Reporter {
	r := &Reporter{
		src:      src,
		w:        w,
		interval: DefaultInterval,
		clock:    clock.New(),
		printer:  message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run prints a line every interval until ctx is done, then prints a last line.
func (r *Reporter) Run(ctx context.Context) error {
	if r.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	r.begin()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.print()
			return nil
		case <-ticker.C:
			r.print()
		}
	}
}

// begin records the baseline used for throughput.
func (r *Reporter) begin() {
	r.startOnce.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.start = r.clock.Now()
		r.baseline = r.src.Stats()
	})
}

func (r *Reporter) print() {
	fmt.Fprintln(r.w, r.Line())
}

// Line formats the current counters.
func (r *Reporter) Line() string {
	r.begin()
	s := r.src.Stats()

	r.mu.Lock()
	elapsed := r.clock.Now().Sub(r.start)
	expanded := s.Crawled - r.baseline.Crawled
	r.mu.Unlock()

	var perMinute float64
	if elapsed > 0 {
		perMinute = float64(expanded) / elapsed.Minutes()
	}

	return r.printer.Sprintf(
		"players %d | public %d | owning %d | unresolved %d | crawled %d | queue %d | %.1f expansions/min",
		s.Total,
		s.Public,
		s.Owning,
		s.UnresolvedOwnership,
		s.Crawled,
		s.Frontier,
		perMinute,
	)
}
