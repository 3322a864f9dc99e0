package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs reports as GitHub-flavored Markdown.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the report.
func (w *MarkdownWriter) Write(report *Report) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeCounters(md, report)
	w.writeOwners(md, report)
	w.writeFooter(md, report)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *Report) {
	lastActivity := "never"
	if !report.LastActivity.IsZero() {
		lastActivity = humanize.RelTime(report.LastActivity, report.GeneratedAt, "ago", "from now")
	}

	md.H1("friendcrawl report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"State file", "`" + report.StatePath + "`"},
			{"Target app", strconv.Itoa(report.TargetApp)},
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Last activity", lastActivity},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeCounters(md *markdown.Markdown, report *Report) {
	s := report.Stats
	md.H2("Players")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Players", humanize.Comma(int64(s.Total))},
			{"Public", humanize.Comma(int64(s.Public))},
			{"Private", humanize.Comma(int64(s.Private))},
			{"Unresolved visibility", humanize.Comma(int64(s.UnknownVisibility))},
			{"Owning target app", humanize.Comma(int64(s.Owning))},
			{"Not owning", humanize.Comma(int64(s.NotOwning))},
			{"Ownership unresolved", humanize.Comma(int64(s.UnresolvedOwnership))},
			{"Library hidden", humanize.Comma(int64(s.GamesHidden))},
			{"Crawled", humanize.Comma(int64(s.Crawled))},
			{"Friends list hidden", humanize.Comma(int64(s.FriendsHidden))},
			{"Frontier", humanize.Comma(int64(s.Frontier))},
			{"Ownership rate", fmt.Sprintf("%.1f%%", report.OwnershipRate()*100)},
		},
	})

	if s.Total > 0 {
		w.writePieChart(md, report)
	}
	w.writeAlert(md, report)
}

// writePieChart writes a mermaid chart of the visibility split.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, report *Report) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Profile visibility"),
		piechart.WithShowData(true),
	)
	s := report.Stats
	if s.Public > 0 {
		chart.LabelAndIntValue("Public", uint64(s.Public))
	}
	if s.Private > 0 {
		chart.LabelAndIntValue("Private", uint64(s.Private))
	}
	if s.UnknownVisibility > 0 {
		chart.LabelAndIntValue("Unresolved", uint64(s.UnknownVisibility))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *Report) {
	s := report.Stats
	switch {
	case s.Total == 0:
		md.Warningf("The store is empty. Run `friendcrawl crawl` first.")
	case s.UnknownVisibility > 0 || s.UnresolvedOwnership > 0:
		md.Importantf(
			"%d identities have unresolved visibility and %d public identities await an ownership probe.",
			s.UnknownVisibility, s.UnresolvedOwnership,
		)
	case s.Frontier == 0:
		md.Tip("The frontier is exhausted: every reachable public profile has been expanded.")
	default:
		md.Note("The crawl can be resumed; the frontier still has identities to expand.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeOwners(md *markdown.Markdown, report *Report) {
	md.H2(fmt.Sprintf("Owners of app %d", report.TargetApp))
	md.PlainText("")
	if len(report.Owners) == 0 {
		md.PlainText("None found yet.")
		md.PlainText("")
		return
	}

	items := make([]string, 0, len(report.Owners))
	for _, o := range report.Owners {
		items = append(items, fmt.Sprintf("[%s](https://steamcommunity.com/profiles/%s)", o.ID, o.ID))
	}
	md.BulletList(items...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown, report *Report) {
	md.HorizontalRule()
	md.PlainText("")
	if report.Version != "" {
		md.PlainTextf("*Report generated by friendcrawl %s*", report.Version)
		return
	}
	md.PlainText("*Report generated by friendcrawl*")
}
