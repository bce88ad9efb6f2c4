package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/taskinity/example-email/internal/model"
	"github.com/taskinity/example-email/internal/orchestrator"
)

type printer struct {
	w     io.Writer
	bold  *color.Color
	green *color.Color
	red   *color.Color
	cyan  *color.Color
}

func newPrinter(w io.Writer, noColor bool) *printer {
	p := &printer{
		w:     w,
		bold:  color.New(color.Bold),
		green: color.New(color.FgGreen),
		red:   color.New(color.FgRed),
		cyan:  color.New(color.FgCyan),
	}
	if noColor {
		for _, c := range []*color.Color{p.bold, p.green, p.red, p.cyan} {
			c.DisableColor()
		}
	}
	return p
}

// summary 打印一次运行的结果
func (p *printer) summary(s model.RunStats) {
	p.bold.Fprintf(p.w, "Run %s\n", s.RunID)

	source := "mailbox"
	if s.CacheHit {
		source = "cache"
	}
	fmt.Fprintf(p.w, "  fetched     %d (from %s", s.Fetched, source)
	if s.ParseSkipped > 0 {
		fmt.Fprintf(p.w, ", %d unparseable", s.ParseSkipped)
	}
	fmt.Fprintln(p.w, ")")

	fmt.Fprintf(p.w, "  classified  urgent=%d has_attachment=%d regular=%d\n",
		s.Classified.Urgent, s.Classified.HasAttachment, s.Classified.Regular)

	if len(s.SkippedBranches) > 0 {
		p.cyan.Fprintf(p.w, "  skipped     %s\n", joinCategories(s.SkippedBranches))
	}
	if len(s.FailedBranches) > 0 {
		p.red.Fprintf(p.w, "  failed      %s\n", joinCategories(s.FailedBranches))
	}

	fmt.Fprintf(p.w, "  responses   ")
	p.green.Fprintf(p.w, "%d sent", s.Sent)
	fmt.Fprint(p.w, ", ")
	if s.Failed > 0 {
		p.red.Fprintf(p.w, "%d failed", s.Failed)
	} else {
		fmt.Fprintf(p.w, "%d failed", s.Failed)
	}
	if s.Duplicates > 0 {
		fmt.Fprintf(p.w, ", %d already answered", s.Duplicates)
	}
	fmt.Fprintln(p.w)
	fmt.Fprintf(p.w, "  duration    %s\n", s.Duration.Round(time.Millisecond))
}

func (p *printer) aborted(err error) {
	var runErr *orchestrator.RunError
	if errors.As(err, &runErr) {
		p.red.Fprintf(p.w, "Run aborted while %s\n", runErr.State)
	} else {
		p.red.Fprintln(p.w, "Run aborted")
	}
	fmt.Fprintf(p.w, "  %v\n", err)
}

func (p *printer) ok(format string, args ...any) {
	p.green.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) fail(format string, args ...any) {
	p.red.Fprintf(p.w, format+"\n", args...)
}

func joinCategories(cats []model.Category) string {
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}
