// Package report renders a summary of a player store.
//
// Writers:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: structured output for other tools
//   - MarkdownWriter: GitHub-flavored Markdown for sharing
//
// All writers consume a Report built by NewReport, so the counters shown
// are the same whatever the format.
package report
