package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

const ruleWidth = 60

// SimpleWriter outputs a plain-text report for the terminal.
type SimpleWriter struct {
	baseWriter

	// maxOwners limits the owners listed. Zero lists all of them.
	maxOwners int
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithMaxOwners limits how many owners are listed.
func WithMaxOwners(n int) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.maxOwners = n
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the report.
func (w *SimpleWriter) Write(report *Report) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeCounters(&sb, report)
	w.writeOwners(&sb, report)

	return io.WriteString(w.output, sb.String())
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *Report) {
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	sb.WriteString("FRIENDCRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n\n")

	fmt.Fprintf(sb, "State file:     %s\n", report.StatePath)
	fmt.Fprintf(sb, "Target app:     %d\n", report.TargetApp)
	if report.LastActivity.IsZero() {
		sb.WriteString("Last activity:  never\n")
	} else {
		fmt.Fprintf(sb, "Last activity:  %s\n", humanize.RelTime(report.LastActivity, report.GeneratedAt, "ago", "from now"))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeCounters(sb *strings.Builder, report *Report) {
	s := report.Stats
	rows := []struct {
		label string
		value int
	}{
		{"Players", s.Total},
		{"  public", s.Public},
		{"  private", s.Private},
		{"  unresolved visibility", s.UnknownVisibility},
		{"Owning target app", s.Owning},
		{"Not owning", s.NotOwning},
		{"Ownership unresolved", s.UnresolvedOwnership},
		{"Library hidden", s.GamesHidden},
		{"Crawled", s.Crawled},
		{"Friends list hidden", s.FriendsHidden},
		{"Frontier", s.Frontier},
	}

	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	sb.WriteString("COUNTERS\n")
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	for _, row := range rows {
		fmt.Fprintf(sb, "%-26s %12s\n", row.label, humanize.Comma(int64(row.value)))
	}
	fmt.Fprintf(sb, "%-26s %11.1f%%\n", "Ownership rate", report.OwnershipRate()*100)
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeOwners(sb *strings.Builder, report *Report) {
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	fmt.Fprintf(sb, "OWNERS (%s)\n", humanize.Comma(int64(len(report.Owners))))
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")

	if len(report.Owners) == 0 {
		sb.WriteString("  none found yet\n")
		return
	}

	owners := report.Owners
	if w.maxOwners > 0 && len(owners) > w.maxOwners {
		owners = owners[:w.maxOwners]
	}
	for _, o := range owners {
		fmt.Fprintf(sb, "  %s\n", o.ID)
	}
	if rest := len(report.Owners) - len(owners); rest > 0 {
		fmt.Fprintf(sb, "  ... and %s more\n", humanize.Comma(int64(rest)))
	}
}
