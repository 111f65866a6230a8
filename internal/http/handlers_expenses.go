package http

import (
	"net/http"

	"spendsense/internal/core"
)

// The expense form is sent as a whole on every save; the server keeps no
// per-client draft.

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var draft core.ExpenseDraft
	if err := s.decodeJSON(w, r, &draft); err != nil {
		s.writeError(w, r, "create_expense", err)
		return
	}
	draft.EditingID = ""

	res, err := s.svc.SaveExpense(r.Context(), r.PathValue("groupID"), &draft)
	if err != nil {
		s.writeError(w, r, "create_expense", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(res).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var draft core.ExpenseDraft
	if err := s.decodeJSON(w, r, &draft); err != nil {
		s.writeError(w, r, "update_expense", err)
		return
	}
	draft.EditingID = r.PathValue("expenseID")

	res, err := s.svc.SaveExpense(r.Context(), r.PathValue("groupID"), &draft)
	if err != nil {
		s.writeError(w, r, "update_expense", err)
		return
	}
	NewJSONResponse().Body(res).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteExpense(r.Context(), r.PathValue("groupID"), r.PathValue("expenseID")); err != nil {
		s.writeError(w, r, "delete_expense", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleSettled(w http.ResponseWriter, r *http.Request) {
	e, err := s.svc.ToggleSettled(r.Context(), r.PathValue("groupID"), r.PathValue("expenseID"))
	if err != nil {
		s.writeError(w, r, "toggle_settled", err)
		return
	}
	NewJSONResponse().Body(e).Write(w)
}
