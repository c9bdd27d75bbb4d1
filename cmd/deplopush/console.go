package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"deplopush/internal/client"
	"deplopush/internal/deployment"
	"deplopush/internal/project"

	"github.com/charmbracelet/lipgloss"
)

// console renders human-facing output on stdout. Logs go to stderr.
type console struct {
	w    io.Writer
	ok   lipgloss.Style
	warn lipgloss.Style
	fail lipgloss.Style
	bold lipgloss.Style
}

func newConsole(w io.Writer) *console {
	r := lipgloss.NewRenderer(w)
	return &console{
		w:    w,
		ok:   r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		warn: r.NewStyle().Foreground(lipgloss.Color("11")).Bold(true),
		fail: r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		bold: r.NewStyle().Bold(true),
	}
}

func (c *console) Health(server string, h client.Health) {
	if h.Healthy {
		fmt.Fprintf(c.w, "%s %s\n", c.ok.Render("healthy"), server)
		return
	}
	reason := "no response"
	if h.Err != nil {
		reason = h.Err.Error()
	}
	fmt.Fprintf(c.w, "%s %s: %s\n", c.fail.Render("unhealthy"), server, reason)
}

func (c *console) Projects(projects []project.Project) {
	if len(projects) == 0 {
		fmt.Fprintln(c.w, "no projects deployed")
		return
	}

	tw := tabwriter.NewWriter(c.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, c.bold.Render("NAME")+"\t"+c.bold.Render("PATH"))
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\n", p.Name, p.Path)
	}
	_ = tw.Flush()
}

func (c *console) Plan(plan []deployment.PlannedUpload) {
	if len(plan) == 0 {
		fmt.Fprintln(c.w, "no archive files found")
		return
	}

	tw := tabwriter.NewWriter(c.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, c.bold.Render("ARCHIVE")+"\t"+c.bold.Render("PROJECT")+"\t"+c.bold.Render("SIZE"))
	for _, p := range plan {
		name := p.Project
		if p.NameErr != nil {
			name += " " + c.warn.Render("(invalid name)")
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\n", p.Archive.Path, name, p.Archive.Size)
	}
	_ = tw.Flush()
}

func (c *console) Summary(s deployment.Summary) {
	for _, r := range s.Results {
		if r.OK() {
			continue
		}
		fmt.Fprintf(c.w, "%s %s (%s): %s\n", c.fail.Render("failed"), r.Path, r.Outcome, r.Detail)
	}

	counts := fmt.Sprintf("succeeded %d, failed %d, total %d", s.Succeeded, s.Failed, s.Total)

	switch {
	case s.Status == deployment.StatusAborted:
		fmt.Fprintln(c.w, c.fail.Render("aborted")+" server health check failed, nothing deployed")
	case s.Status == deployment.StatusInterrupted:
		fmt.Fprintf(c.w, "%s %s, %d not attempted\n", c.fail.Render("interrupted"), counts, s.Total-s.Attempted())
	case s.Status == deployment.StatusEmpty:
		fmt.Fprintln(c.w, c.warn.Render("nothing to deploy")+" no archive files found")
	case s.Failed > 0:
		fmt.Fprintf(c.w, "%s %s\n", c.warn.Render("completed with failures"), counts)
	default:
		fmt.Fprintf(c.w, "%s %s\n", c.ok.Render("all archives deployed"), counts)
	}
}
