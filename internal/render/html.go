// Package render turns report snapshots into HTML and PDF documents.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"math"
	"strconv"
	"time"

	"github.com/sitereport/sitereport/internal/model"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

// HTMLRenderer renders snapshots with the embedded report template. Output is
// a function of the snapshot alone; the generation timestamp is not rendered,
// so re-running a month yields byte-identical HTML.
type HTMLRenderer struct {
	tmpl *template.Template
}

// NewHTMLRenderer parses the embedded template.
func NewHTMLRenderer() (*HTMLRenderer, error) {
	tmpl, err := template.New("report.html.tmpl").Funcs(funcs).ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &HTMLRenderer{tmpl: tmpl}, nil
}

// Render renders the snapshot to an HTML document.
func (r *HTMLRenderer) Render(s *model.ReportSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, s); err != nil {
		return nil, fmt.Errorf("render report %s/%s: %w", s.ClientID, s.MonthKey, err)
	}
	return buf.Bytes(), nil
}

type kpiView struct {
	Title  string
	Metric model.MetricWithDelta
	Bytes  bool
}

type deviceView struct {
	URL    string
	Device string
	Scores model.DeviceScores
}

var funcs = template.FuncMap{
	"kpi": func(title string, m model.MetricWithDelta, isBytes bool) kpiView {
		return kpiView{Title: title, Metric: m, Bytes: isBytes}
	},
	"device": func(url, device string, s model.DeviceScores) deviceView {
		return deviceView{URL: url, Device: device, Scores: s}
	},
	"count": formatCount,
	"bytes": formatBytes,
	"date":  func(t time.Time) string { return t.Format("Mon Jan 2") },
	"delta": formatDelta,
	"trend": trend,
	"score": func(v *int) string {
		if v == nil {
			return "-"
		}
		return strconv.Itoa(*v)
	},
	"ms": func(v float64) string { return formatMs(v) },
	"msp": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return formatMs(*v)
	},
	"cls": func(v *float64) string {
		if v == nil {
			return "-"
		}
		return strconv.FormatFloat(*v, 'f', 3, 64)
	},
}

// formatCount renders an integer with thousands separators.
func formatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := n < 0
	if neg {
		s = s[1:]
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-" + string(out)
	}
	return string(out)
}

var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// formatBytes renders a byte count in binary units.
func formatBytes(n int64) string {
	v := float64(n)
	unit := 0
	for math.Abs(v) >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f %s", v, byteUnits[unit])
}

func formatDelta(m model.MetricWithDelta) string {
	if m.DeltaPercent == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.1f%%", *m.DeltaPercent)
}

func trend(m model.MetricWithDelta) string {
	switch {
	case m.DeltaPercent == nil || *m.DeltaPercent == 0:
		return "flat"
	case *m.DeltaPercent > 0:
		return "up"
	default:
		return "down"
	}
}

func formatMs(v float64) string {
	if v >= 1000 {
		return strconv.FormatFloat(v/1000, 'f', 1, 64) + " s"
	}
	return strconv.FormatFloat(math.Round(v), 'f', 0, 64) + " ms"
}
