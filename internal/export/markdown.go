package export

import (
	"fmt"
	"strings"

	"github.com/meetpipe/meetpipe/internal/task"
)

// Markdown renders a task's canonical result as a markdown document with
// a fixed section order: title, date, Summary, Key Points, Action Items,
// Transcript. Sections with no content are omitted.
func Markdown(t *task.MeetingTask) string {
	var b strings.Builder

	title := t.Title
	if title == "" {
		title = "Meeting Notes"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "%s\n", t.CreatedAt.UTC().Format("2006-01-02"))

	r := t.Result
	if r == nil {
		return b.String()
	}

	if r.SummaryHeadline != "" || r.SummaryBody != "" {
		b.WriteString("\n## Summary\n\n")
		if r.SummaryHeadline != "" {
			fmt.Fprintf(&b, "**%s**\n\n", r.SummaryHeadline)
		}
		if r.SummaryBody != "" {
			fmt.Fprintf(&b, "%s\n", r.SummaryBody)
		}
	}

	if len(r.KeyPoints) > 0 {
		b.WriteString("\n## Key Points\n\n")
		for _, p := range r.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}

	if len(r.ActionItems) > 0 {
		b.WriteString("\n## Action Items\n\n")
		for _, a := range r.ActionItems {
			fmt.Fprintf(&b, "- %s\n", a)
		}
	}

	if transcript := r.Transcript(); transcript != "" {
		b.WriteString("\n## Transcript\n\n")
		b.WriteString(transcript)
		b.WriteByte('\n')
	}

	return b.String()
}
