package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/golab-ledger/internal/core"
)

// handleAuditPage renders the audit log as an HTML table.
func (s *Server) handleAuditPage(w http.ResponseWriter, r *http.Request) {
	filter := auditFilter(r)
	events, err := s.service.AuditLog(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	templ.Handler(auditPage(filter, events)).ServeHTTP(w, r)
}

// auditPage lists audit events, newest first.
func auditPage(filter core.AuditFilter, events []core.AuditEvent) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := "Import audit log"
		if filter.Layout != "" {
			title += " · " + filter.Layout
		}

		if _, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="ko"><head><meta charset="utf-8"><title>%s</title>`+
			`<style>table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:2px 6px;font:13px monospace}`+
			`tr.critical{background:#fdd}tr.high{background:#fff6dd}</style></head><body><h1>%s</h1>`,
			templ.EscapeString(title), templ.EscapeString(title)); err != nil {
			return err
		}

		if len(events) == 0 {
			_, err := io.WriteString(w, `<p>No audit events.</p></body></html>`)
			return err
		}

		if _, err := io.WriteString(w, `<table><thead><tr><th>Time</th><th>Kind</th><th>Layout</th><th>Batch</th>`+
			`<th>Rows</th><th>Total</th><th>Skipped</th><th>Valid</th><th>Duplicates</th><th>Added</th>`+
			`<th>New items</th><th>Anomalies</th><th>Clamped</th><th>Error</th></tr></thead><tbody>`); err != nil {
			return err
		}

		for _, ev := range events {
			if err := auditRow(ev).Render(ctx, w); err != nil {
				return err
			}
		}

		_, err := io.WriteString(w, `</tbody></table></body></html>`)
		return err
	})
}

func auditRow(ev core.AuditEvent) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		rows := "all"
		if ev.RowFrom > 0 || ev.RowTo > 0 {
			rows = fmt.Sprintf("%d-%d", ev.RowFrom, ev.RowTo)
		}
		res := ev.Result
		_, err := fmt.Fprintf(w,
			`<tr class="%s"><td>%s</td><td>%s</td><td>%s</td><td title="%s">#%d</td><td>%s</td>`+
				`<td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%s</td></tr>`,
			templ.EscapeString(string(ev.Severity)),
			ev.CreatedAt.Format(time.DateTime),
			templ.EscapeString(string(ev.Kind)),
			templ.EscapeString(ev.Layout),
			templ.EscapeString(ev.BatchID),
			ev.BatchIndex,
			rows,
			res.Total, res.Skipped, res.Valid, res.Duplicates, res.Added,
			res.NewItems, res.PriceAnomalies, res.Clamped,
			templ.EscapeString(ev.Error),
		)
		return err
	})
}
