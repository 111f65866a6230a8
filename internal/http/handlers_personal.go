package http

import (
	"net/http"
	"time"

	"spendsense/internal/core"
	"spendsense/internal/services"
)

// handleListPersonal supports ?month=YYYY-MM and ?all=true.
func (s *Server) handleListPersonal(w http.ResponseWriter, r *http.Request) {
	f, err := parseMonthFilter(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "list_personal_expenses", err)
		return
	}
	list, err := s.svc.ListPersonalExpenses(r.Context(), f)
	if err != nil {
		s.writeError(w, r, "list_personal_expenses", err)
		return
	}
	NewJSONResponse().Body(list).Write(w)
}

func (s *Server) handleAddPersonal(w http.ResponseWriter, r *http.Request) {
	var in services.PersonalExpenseInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, "add_personal_expense", err)
		return
	}
	e, err := s.svc.AddPersonalExpense(r.Context(), in)
	if err != nil {
		s.writeError(w, r, "add_personal_expense", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(e).Write(w)
}

func (s *Server) handleUpdatePersonal(w http.ResponseWriter, r *http.Request) {
	var in services.PersonalExpenseInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, "update_personal_expense", err)
		return
	}
	e, err := s.svc.UpdatePersonalExpense(r.Context(), r.PathValue("expenseID"), in)
	if err != nil {
		s.writeError(w, r, "update_personal_expense", err)
		return
	}
	NewJSONResponse().Body(e).Write(w)
}

func (s *Server) handleDeletePersonal(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeletePersonalExpense(r.Context(), r.PathValue("expenseID")); err != nil {
		s.writeError(w, r, "delete_personal_expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.Profile(r.Context())
	if err != nil {
		s.writeError(w, r, "get_profile", err)
		return
	}
	NewJSONResponse().Body(p).Write(w)
}

func (s *Server) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	var p core.Profile
	if err := decodeBody(w, r, &p); err != nil {
		s.writeError(w, r, "save_profile", err)
		return
	}
	p = p.Trimmed()
	if err := s.validateStruct(p); err != nil {
		s.writeError(w, r, "save_profile", err)
		return
	}
	saved, err := s.svc.SaveProfile(r.Context(), p)
	if err != nil {
		s.writeError(w, r, "save_profile", err)
		return
	}
	NewJSONResponse().Body(saved).Write(w)
}

// handleStats supports ?month=YYYY-MM for the reference month.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ref, err := parseMonth(r.URL.Query())
	if err != nil {
		s.writeError(w, r, "stats", err)
		return
	}
	st, err := s.svc.Stats(r.Context(), ref)
	if err != nil {
		s.writeError(w, r, "stats", err)
		return
	}
	NewJSONResponse().Body(st).Write(w)
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	buckets, err := s.svc.Trend(r.Context())
	if err != nil {
		s.writeError(w, r, "trend", err)
		return
	}
	if buckets == nil {
		buckets = []core.MonthBucket{}
	}
	NewJSONResponse().Body(buckets).Write(w)
}

// handleExport serves the snapshot as a download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	doc, err := s.svc.Export(r.Context())
	if err != nil {
		s.writeError(w, r, "export", err)
		return
	}
	taken, perr := core.ParseISO(doc.ExportedAt)
	if perr != nil {
		taken = time.Now()
	}
	NewJSONResponse().
		Header("Content-Disposition", `attachment; filename="`+services.ExportFilename(taken)+`"`).
		Body(doc).
		Write(w)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Reset(r.Context()); err != nil {
		s.writeError(w, r, "reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
