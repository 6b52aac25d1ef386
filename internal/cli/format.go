package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/t77yq/nitrite-automation/internal/model"
	"github.com/t77yq/nitrite-automation/internal/script"
	"github.com/t77yq/nitrite-automation/internal/security"
	"github.com/t77yq/nitrite-automation/internal/templates"
)

const timeLayout = "2006-01-02 15:04"

var levelColors = map[model.RiskLevel]*color.Color{
	model.RiskLow:      color.New(color.FgGreen),
	model.RiskMedium:   color.New(color.FgYellow),
	model.RiskHigh:     color.New(color.FgRed),
	model.RiskCritical: color.New(color.FgHiRed, color.Bold),
}

func colorLevel(level model.RiskLevel) string {
	if c, ok := levelColors[level]; ok {
		return c.Sprint(string(level))
	}
	return string(level)
}

// warningLevel extracts the level tag of a "[LEVEL] ..." warning line
func warningLevel(w string) model.RiskLevel {
	if !strings.HasPrefix(w, "[") {
		return ""
	}
	end := strings.Index(w, "]")
	if end < 0 {
		return ""
	}
	return model.RiskLevel(w[1:end])
}

func colorWarning(w string) string {
	if c, ok := levelColors[warningLevel(w)]; ok {
		return c.Sprint(w)
	}
	return w
}

func writeJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func writeWarnings(w io.Writer, warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintf(w, "  %s\n", colorWarning(warning))
	}
}

// printError prints err to w. A rejection lists every warning on its own line.
func printError(w io.Writer, err error) {
	var rejected *script.RejectedError
	if errors.As(err, &rejected) {
		fmt.Fprintf(w, "%s %s (risk level %s)\n", color.RedString("[x]"), script.ErrRejected, colorLevel(rejected.Level))
		writeWarnings(w, rejected.Warnings)
		return
	}
	fmt.Fprintf(w, "%s %v\n", color.RedString("[x]"), err)
}

func writeScriptsTable(w io.Writer, records []*model.ScriptRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLANGUAGE\tRISK\tVERSION\tRUNS\tLAST RUN")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID,
			r.Name,
			r.Language,
			colorLevel(r.Security.RiskLevel),
			r.Version,
			r.RunCount,
			formatTime(r.LastExecutedAt),
		)
	}
	return tw.Flush()
}

func writeScript(w io.Writer, r *model.ScriptRecord) {
	fmt.Fprintf(w, "ID: %s\n", r.ID)
	fmt.Fprintf(w, "Name: %s\n", r.Name)
	if r.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", r.Description)
	}
	fmt.Fprintf(w, "Language: %s\n", r.Language)
	fmt.Fprintf(w, "File: %s\n", r.SourcePath)
	if len(r.Tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(r.Tags, ", "))
	}
	fmt.Fprintf(w, "Version: %d\n", r.Version)
	fmt.Fprintf(w, "Runs: %d (last %s)\n", r.RunCount, formatTime(r.LastExecutedAt))
	validated := "yes"
	if !r.Security.Validated {
		validated = color.RedString("no")
	}
	fmt.Fprintf(w, "Risk: %s (validated: %s)\n", colorLevel(r.Security.RiskLevel), validated)
	writeWarnings(w, r.Security.Warnings)
}

func writeAnalysis(w io.Writer, a security.Analysis) {
	fmt.Fprintf(w, "Risk: %s\n", colorLevel(a.Level))
	fmt.Fprintf(w, "Lines: %d, Size: %d bytes\n", a.Stats.Lines, a.Stats.SizeBytes)
	rec := color.GreenString(a.Recommendation)
	if a.Recommendation != security.RecommendationOK {
		rec = color.YellowString(a.Recommendation)
	}
	fmt.Fprintf(w, "Recommendation: %s\n", rec)
	if len(a.Warnings) > 0 {
		fmt.Fprintln(w, "Warnings:")
		writeWarnings(w, a.Warnings)
	}
}

func writeResult(w io.Writer, r *model.ExecutionResult) {
	switch {
	case r.SecurityBlocked:
		fmt.Fprintf(w, "%s execution blocked by security validation (risk level %s)\n", color.RedString("[x]"), colorLevel(r.RiskLevel))
		writeWarnings(w, r.Warnings)
		return
	case r.TimedOut:
		fmt.Fprintf(w, "%s timed out after %s\n", color.RedString("[x]"), r.Duration.Round(time.Millisecond))
	case r.Success:
		fmt.Fprintf(w, "%s finished in %s\n", color.GreenString("[+]"), r.Duration.Round(time.Millisecond))
	default:
		fmt.Fprintf(w, "%s failed", color.RedString("[x]"))
		if r.ExitCode != nil {
			fmt.Fprintf(w, " with exit code %d", *r.ExitCode)
		}
		if r.Error != "" {
			fmt.Fprintf(w, ": %s", r.Error)
		}
		fmt.Fprintln(w)
	}
	if r.Stderr != "" {
		fmt.Fprintln(w, color.YellowString("stderr:"))
		fmt.Fprintln(w, strings.TrimRight(r.Stderr, "\n"))
	}
}

func writeTemplatesTable(w io.Writer, list []templates.Template) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tNAME\tLANGUAGE\tDESCRIPTION")
	for _, t := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Key, t.Name, t.Language, t.Description)
	}
	return tw.Flush()
}

func writeTasksTable(w io.Writer, tasks []*model.ScheduledTask) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSCRIPT\tSCHEDULE\tENABLED\tNEXT RUN\tLAST RUN\tRUNS")
	for _, t := range tasks {
		enabled := color.GreenString("yes")
		if !t.Enabled {
			enabled = color.YellowString("no")
		}
		next := "-"
		switch {
		case t.NextRun.Invalid:
			next = color.RedString(model.NextRunErrorSentinel)
		case t.NextRun.Valid():
			next = t.NextRun.Time.Local().Format(timeLayout)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%s\t%s\t%d\n",
			t.ID,
			t.Name,
			t.ScriptID,
			t.ScheduleType,
			t.ScheduleValue,
			enabled,
			next,
			formatTime(t.LastRun),
			t.RunCount,
		)
	}
	return tw.Flush()
}

func writeHistoryTable(w io.Writer, records []*model.ExecutionRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EXECUTED\tOUTCOME\tEXIT\tDURATION\tRISK\tTASK")
	for _, r := range records {
		exit := "-"
		if r.ExitCode != nil {
			exit = fmt.Sprintf("%d", *r.ExitCode)
		}
		task := r.TaskID
		if task == "" {
			task = "-"
		}
		executed := r.ExecutedAt
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			formatTime(&executed),
			outcome(r),
			exit,
			r.Duration.Round(time.Millisecond),
			colorLevel(r.RiskLevel),
			task,
		)
	}
	return tw.Flush()
}

func outcome(r *model.ExecutionRecord) string {
	switch {
	case r.SecurityBlocked:
		return color.RedString("blocked")
	case r.TimedOut:
		return color.RedString("timeout")
	case r.Success:
		return color.GreenString("ok")
	default:
		return color.RedString("failed")
	}
}

func writeEvent(w io.Writer, e *model.Event) {
	fmt.Fprintf(w, "%s %-16s", e.CreatedAt.Local().Format(time.RFC3339), e.Type)
	if e.ScriptID != "" {
		fmt.Fprintf(w, " script=%s", e.ScriptID)
	}
	if e.TaskID != "" {
		fmt.Fprintf(w, " task=%s", e.TaskID)
	}
	if e.RiskLevel != "" {
		fmt.Fprintf(w, " risk=%s", colorLevel(e.RiskLevel))
	}
	if e.Result != nil {
		fmt.Fprintf(w, " success=%t", e.Result.Success)
	}
	fmt.Fprintln(w)
}
