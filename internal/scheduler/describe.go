package scheduler

// readableCrons maps the default cron patterns the UI must render
// readably. Any pattern not in this table is
// displayed verbatim.
var readableCrons = map[string]string{
	"0 2 * * *":    "Daily at 2:00 AM",
	"0 * * * *":    "Every hour",
	"*/30 * * * *": "Every 30 minutes",
}

// Describe renders a cron expression for display, falling back to the
// expression itself when it isn't one of the known defaults.
func Describe(cronExpression string) string {
	if readable, ok := readableCrons[cronExpression]; ok {
		return readable
	}
	return cronExpression
}
