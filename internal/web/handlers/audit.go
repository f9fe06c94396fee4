package handlers

import (
	"net/http"

	"github.com/foxzi/ingestdesk/internal/web/audit"
)

const auditPageSize = 100

var auditActions = []string{audit.ActionUpload, audit.ActionCancel, audit.ActionReprocess, audit.ActionResolve}

type auditPage struct {
	pageData
	Entries []auditRow
	Actions []string
	Action  string
	Actor   string
}

type auditRow struct {
	audit.Entry
	When string
}

// AuditLog lists the most recent operator actions.
func (h *Handlers) AuditLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := auditPage{
		pageData: h.page(r, "Audit log", "audit"),
		Actions:  auditActions,
		Action:   q.Get("action"),
		Actor:    q.Get("actor"),
	}

	if h.journal != nil {
		entries, err := h.journal.List(r.Context(), audit.Filter{
			Action: data.Action,
			Actor:  data.Actor,
			Limit:  auditPageSize,
		})
		if err != nil {
			h.logger.Error("failed to list journal", "error", err)
			h.error(w, http.StatusInternalServerError, "Failed to load audit log")
			return
		}
		loc := h.cfg.Location()
		for _, e := range entries {
			data.Entries = append(data.Entries, auditRow{Entry: e, When: e.CreatedAt.In(loc).Format("02/01/2006 15:04:05")})
		}
	}

	h.render(w, "audit", data)
}
