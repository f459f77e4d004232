package docregistry

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"time"
)

// GenerateLeaderboardHTML produces a static HTML page ranking origins by
// restoration reliability.
func (r *Registry) GenerateLeaderboardHTML(ctx context.Context) ([]byte, error) {
	origins, err := r.ListOrigins(ctx, 100)
	if err != nil {
		return nil, fmt.Errorf("list origins: %w", err)
	}

	stats, err := r.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Blurshield — Origin Reliability</title>
<style>
*{box-sizing:border-box;margin:0;padding:0}
body{font-family:system-ui,-apple-system,sans-serif;background:#f8f9fa;color:#212529;max-width:960px;margin:0 auto;padding:2rem 1rem}
h1{font-size:1.5rem;margin-bottom:.5rem}
h2{font-size:1.2rem;margin:2rem 0 .75rem;border-bottom:2px solid #dee2e6;padding-bottom:.25rem}
.stats{display:flex;gap:1rem;margin-bottom:2rem}
.stat{background:#fff;border:1px solid #dee2e6;border-radius:.5rem;padding:1rem;flex:1;text-align:center}
.stat-num{font-size:1.5rem;font-weight:700;color:#495057}
.stat-label{font-size:.8rem;color:#868e96;text-transform:uppercase}
table{width:100%;border-collapse:collapse;background:#fff;border:1px solid #dee2e6;border-radius:.5rem;overflow:hidden;margin-bottom:2rem}
th{background:#e9ecef;padding:.5rem .75rem;text-align:left;font-size:.85rem;font-weight:600}
td{padding:.5rem .75rem;border-top:1px solid #dee2e6;font-size:.85rem}
tr:hover td{background:#f1f3f5}
.success-high{color:#2b8a3e}
.success-mid{color:#e67700}
.success-low{color:#c92a2a}
.badge{display:inline-block;padding:.1rem .4rem;border-radius:.25rem;font-size:.75rem;font-weight:600}
.badge-good{background:#d3f9d8;color:#2b8a3e}
.badge-warn{background:#fff3bf;color:#e67700}
.badge-bad{background:#ffe3e3;color:#c92a2a}
.expr{font-family:ui-monospace,monospace;font-size:.8rem;color:#495057}
.generated{text-align:center;font-size:.75rem;color:#868e96;margin-top:2rem}
</style>
</head>
<body>
<h1>Blurshield — Origin Reliability</h1>
`)

	// Stats
	fmt.Fprintf(&buf, `<div class="stats">
<div class="stat"><div class="stat-num">%d</div><div class="stat-label">Origins</div></div>
<div class="stat"><div class="stat-num">%d</div><div class="stat-label">Degraded</div></div>
<div class="stat"><div class="stat-num">%d</div><div class="stat-label">Lossy Passes</div></div>
</div>
`, stats.Origins, stats.Degraded, stats.Reports)

	// Origin leaderboard
	buf.WriteString(`<h2>Restoration Success</h2>
<table>
<thead><tr><th>#</th><th>Origin</th><th>Success Rate</th><th>Passes</th><th>Restored</th><th>Dead</th><th>Activation</th><th>Last Pass</th></tr></thead>
<tbody>
`)

	for i, o := range origins {
		cls := "success-high"
		badge := "badge-good"
		if o.SuccessRate < r.config.DegradedThreshold {
			cls = "success-low"
			badge = "badge-bad"
		} else if o.SuccessRate < 0.8 {
			cls = "success-mid"
			badge = "badge-warn"
		}
		expression := o.ActivationExpr
		if expression == "" {
			expression = "always"
		}
		ts := "—"
		if o.LastPassAt > 0 {
			ts = time.UnixMilli(o.LastPassAt).UTC().Format("2006-01-02")
		}
		fmt.Fprintf(&buf, `<tr><td>%d</td><td>%s</td><td class="%s"><span class="badge %s">%.0f%%</span></td><td>%d</td><td>%d</td><td>%d</td><td class="expr">%s</td><td>%s</td></tr>
`,
			i+1, html.EscapeString(o.Origin), cls, badge, o.SuccessRate*100,
			o.TotalPasses, o.TotalRestored, o.TotalDead, html.EscapeString(expression), ts)
	}

	buf.WriteString(`</tbody></table>
`)

	fmt.Fprintf(&buf, `<div class="generated">Generated %s</div>
</body>
</html>
`, time.Now().UTC().Format(time.RFC3339))

	return buf.Bytes(), nil
}
