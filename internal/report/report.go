// Package report renders scan results for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"

	"urlguard/internal/analysis"
	"urlguard/internal/features"
	"urlguard/internal/repository"
	"urlguard/internal/updater"
)

var (
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow)
	green  = color.New(color.FgGreen)
	cyan   = color.New(color.FgCyan)
	gray   = color.New(color.FgHiBlack)
)

func PrintBanner(w io.Writer) {
	fig := figure.NewFigure("URLGUARD", "doom", true)
	_, _ = red.Fprint(w, fig.String())

	_, _ = cyan.Fprintln(w, "════════════════════════════════════════════════")
	_, _ = green.Fprintln(w, "    Phishing URL feature extraction and triage")
	_, _ = cyan.Fprintln(w, "════════════════════════════════════════════════")
}

func valueColor(v features.Value) *color.Color {
	switch v {
	case features.Phishing:
		return red
	case features.Suspicious:
		return yellow
	default:
		return green
	}
}

func verdictColor(v analysis.Verdict) *color.Color {
	switch v {
	case analysis.VerdictPhishing:
		return red
	case analysis.VerdictLegitimate:
		return green
	default:
		return yellow
	}
}

// WriteReport prints the verdict line and, when verbose, every feature with
// the fallbacks that produced defaults.
func WriteReport(w io.Writer, r *analysis.Report, verbose bool) error {
	fmt.Fprintf(w, "\n[+] %s\n", r.URL)
	fmt.Fprint(w, "    verdict: ")
	verdictColor(r.Verdict).Fprint(w, string(r.Verdict))
	if r.Prediction != nil {
		fmt.Fprintf(w, " (P(phishing)=%.3f)", r.Prediction.Probability)
	}
	gray.Fprintf(w, "  %d fallbacks, %v\n", len(r.Fallbacks), r.Duration.Round(time.Millisecond))

	if !verbose {
		return nil
	}

	fallbacks := make(map[features.Name]features.Fallback, len(r.Fallbacks))
	for _, f := range r.Fallbacks {
		fallbacks[f.Feature] = f
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, v := range r.Features.Values() {
		name := features.Names[i]
		note := ""
		if f, ok := fallbacks[name]; ok {
			note = gray.Sprintf("default: %v", f.Reason)
		}
		fmt.Fprintf(tw, "    %s\t%s\t%s\n", name, valueColor(v).Sprintf("%2d", v), note)
	}
	return tw.Flush()
}

// WriteJSON writes one report per line.
func WriteJSON(w io.Writer, r *analysis.Report) error {
	return json.NewEncoder(w).Encode(r)
}

func WriteHistory(w io.Writer, scans []repository.ScanRecord) error {
	if len(scans) == 0 {
		fmt.Fprintln(w, "No scans recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tVERDICT\tP\tFALLBACKS\tURL")
	for _, s := range scans {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\n",
			s.ScannedAt.Local().Format(time.DateTime),
			verdictColor(analysis.Verdict(s.Verdict)).Sprint(s.Verdict),
			s.Probability, s.Fallbacks, s.URL)
	}
	return tw.Flush()
}

func WriteUpdate(w io.Writer, results []updater.Result, blocked int) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			red.Fprintf(w, "  [!] %s: %v\n", r.Source, r.Err)
		case r.NotModified:
			gray.Fprintf(w, "  [=] %s: up to date\n", r.Source)
		default:
			green.Fprintf(w, "  [+] %s: %d rules\n", r.Source, r.Count)
		}
	}
	cyan.Fprintf(w, "  %d domains on the block-list\n", blocked)
}
