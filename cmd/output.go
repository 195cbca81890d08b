package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"site-sync/core/report"

	"go.uber.org/zap"
)

// printReport logs a run report summary.
func printReport(l *zap.Logger, r *report.Report) {
	t := r.Totals()
	l.Info("Run report",
		zap.String("run_id", r.RunID),
		zap.Bool("dry_run", r.DryRun),
		zap.Strings("phases", r.PhaseNames()),
		zap.Int("planned", t.Planned),
		zap.Int("created", t.Created),
		zap.Int("updated", t.Updated),
		zap.Int("deleted", t.Deleted),
		zap.Int("obsoleted", t.Obsoleted),
		zap.Int("failed", t.Failed),
		zap.Int("conflicts", len(r.Conflicts)),
		zap.Int("duplicates", len(r.Duplicates)),
	)

	for _, p := range r.Phases {
		fields := []zap.Field{zap.String("phase", p.Name), zap.Bool("executed", p.Executed)}
		for _, cat := range p.SortedCategories() {
			c := p.Counts[cat]
			fields = append(fields, zap.String(cat, fmt.Sprintf("planned=%d created=%d updated=%d deleted=%d failed=%d", c.Planned, c.Created, c.Updated, c.Deleted, c.Failed)))
		}
		if p.Error != "" {
			fields = append(fields, zap.String("error", p.Error))
		}
		l.Info("Phase", fields...)
	}

	// Show sample of conflicts (max 5 for logger)
	maxShow := min(5, len(r.Conflicts))
	for _, c := range r.Conflicts[:maxShow] {
		l.Warn("Conflict", zap.String("kind", c.Kind), zap.String("key", c.Key), zap.String("message", c.Message))
	}
	if len(r.Conflicts) > maxShow {
		l.Info("Additional conflicts not shown", zap.Int("count", len(r.Conflicts)-maxShow))
	}

	for _, d := range r.Drift {
		l.Warn("Residual drift after verification", zap.String("phase", d.Phase), zap.String("category", d.Category), zap.String("key", d.Key))
	}
	for name, remaining := range r.Quota {
		l.Info("Quota remaining", zap.String("gateway", name), zap.Int("remaining", remaining))
	}
}

// writeReport writes r to path in the format implied by its extension.
func writeReport(r *report.Report, path string) error {
	format := report.FormatJSON
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		format = report.FormatYAML
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()
	return report.Encode(f, r, format)
}

// confirmWrites prompts the user for confirmation unless yes is set.
func confirmWrites(yes bool) bool {
	if yes {
		fmt.Println("\n✓ Auto-confirmed via --yes flag")
		return true
	}

	fmt.Print("\n⚠️  Type 'yes' to write the changes: ")
	reader := bufio.NewReader(os.Stdin)
	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(response)
	return response == "yes"
}
