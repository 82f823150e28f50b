// File: internal/ui/apps.go
// Brief: Internal ui package implementation for 'apps table'.

// apps.go renders the deployed application list and detail card.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/example/nephelios/internal/progress"
)

var (
	appStatusRunning = color.New(color.FgGreen).SprintFunc()
	appStatusStopped = color.New(color.FgRed).SprintFunc()
	appCardLabel     = color.New(color.Bold).SprintFunc()
)

// AppRow is the flattened form of an application used by table, json, and yaml output.
type AppRow struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Domain  string `json:"domain" yaml:"domain"`
	Status  string `json:"status" yaml:"status"`
	Created string `json:"created" yaml:"created"`
}

func AppRows(apps []progress.DeployedApplication) []AppRow {
	rows := make([]AppRow, 0, len(apps))
	for _, app := range apps {
		rows = append(rows, AppRow{
			Name:    orDash(app.AppName),
			Type:    orDash(app.AppType),
			Domain:  orDash(app.Domain),
			Status:  orDash(app.Status),
			Created: formatCreated(app),
		})
	}
	return rows
}

// WriteAppsTable prints the application list. Running applications are green, everything else red.
func WriteAppsTable(out io.Writer, apps []progress.DeployedApplication, colorize bool) error {
	if len(apps) == 0 {
		_, err := fmt.Fprintln(out, "No applications deployed yet.")
		return err
	}
	rows := AppRows(apps)
	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		cells = append(cells, row.columns())
	}
	var paint func(row, col int, cell string) string
	if colorize {
		paint = func(row, col int, cell string) string {
			if col != 3 {
				return cell
			}
			return colorizeAppStatus(apps[row], cell)
		}
	}
	return WriteTable(out, []string{"NAME", "TYPE", "DOMAIN", "STATUS", "CREATED"}, cells, paint)
}

// WriteTable prints rows under headers with columns padded to their widest
// cell. paint, when set, decorates a cell after its width has been measured.
func WriteTable(out io.Writer, headers []string, rows [][]string, paint func(row, col int, cell string) string) error {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = runewidth.StringWidth(header)
	}
	for _, row := range rows {
		for i, col := range row {
			if i >= len(widths) {
				break
			}
			if w := runewidth.StringWidth(col); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	renderRow := func(rowIdx int, cols []string) {
		for i, col := range cols {
			shown := col
			if paint != nil && rowIdx >= 0 {
				shown = paint(rowIdx, i, col)
			}
			b.WriteString(shown)
			if i == len(cols)-1 {
				b.WriteString("\n")
				continue
			}
			padding := widths[i] - runewidth.StringWidth(col)
			if padding < 0 {
				padding = 0
			}
			b.WriteString(strings.Repeat(" ", padding+2))
		}
	}
	renderRow(-1, headers)
	for i, row := range rows {
		renderRow(i, row)
	}
	_, err := io.WriteString(out, b.String())
	return err
}

// WriteAppDetails prints the detail card for a single application.
func WriteAppDetails(out io.Writer, app progress.DeployedApplication, colorize bool) error {
	status := orDash(app.Status)
	if colorize {
		status = colorizeAppStatus(app, status)
	}
	fields := []struct {
		label string
		value string
	}{
		{"Application", orDash(app.AppName)},
		{"Type", orDash(app.AppType)},
		{"Status", status},
		{"Domain", orDash(app.Domain)},
		{"Repository", orDash(app.GitHubURL)},
		{"Container", shortContainerID(app.ContainerID)},
		{"Created", formatCreated(app)},
	}
	labelWidth := 0
	for _, f := range fields {
		if w := runewidth.StringWidth(f.label); w > labelWidth {
			labelWidth = w
		}
	}
	var b strings.Builder
	for _, f := range fields {
		label := runewidth.FillRight(f.label+":", labelWidth+1)
		if colorize {
			label = appCardLabel(label)
		}
		fmt.Fprintf(&b, "%s  %s\n", label, f.value)
	}
	_, err := io.WriteString(out, b.String())
	return err
}

func (r AppRow) columns() []string {
	return []string{r.Name, r.Type, r.Domain, r.Status, r.Created}
}

func colorizeAppStatus(app progress.DeployedApplication, text string) string {
	if app.Running() {
		return appStatusRunning(text)
	}
	return appStatusStopped(text)
}

func formatCreated(app progress.DeployedApplication) string {
	if ts, ok := app.CreatedTime(); ok {
		return ts.Local().Format(time.DateTime)
	}
	return orDash(app.CreatedAt)
}

func shortContainerID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 12 {
		return id[:12]
	}
	return orDash(id)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
