package http

import (
	"net/http"

	"spendsense/internal/ledger"
	"spendsense/internal/services"
)

type nameRequest struct {
	Name string `json:"name" validate:"max=100"`
}

type activeGroupRequest struct {
	GroupID string `json:"groupId" validate:"required"`
}

type activeGroupResponse struct {
	Group interface{} `json:"group"`
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.ListGroups(r.Context())
	if err != nil {
		s.writeError(w, r, "list_groups", err)
		return
	}
	NewJSONResponse().Body(groups).Write(w)
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "create_group", err)
		return
	}
	g, err := s.svc.CreateGroup(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, "create_group", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(g).Write(w)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.svc.GetGroup(r.Context(), r.PathValue("groupID"))
	if err != nil {
		s.writeError(w, r, "get_group", err)
		return
	}
	NewJSONResponse().Body(g).Write(w)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteGroup(r.Context(), r.PathValue("groupID")); err != nil {
		s.writeError(w, r, "delete_group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetActiveGroup answers {"group": null} when nothing is selected or
// the selection points at a deleted group.
func (s *Server) handleGetActiveGroup(w http.ResponseWriter, r *http.Request) {
	g, err := s.svc.ActiveGroup(r.Context())
	if err != nil {
		s.writeError(w, r, "get_active_group", err)
		return
	}
	resp := activeGroupResponse{}
	if g != nil {
		resp.Group = g
	}
	NewJSONResponse().Body(resp).Write(w)
}

func (s *Server) handleSetActiveGroup(w http.ResponseWriter, r *http.Request) {
	var req activeGroupRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "set_active_group", err)
		return
	}
	if err := s.svc.SetActiveGroup(r.Context(), req.GroupID); err != nil {
		s.writeError(w, r, "set_active_group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearActiveGroup(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.ClearActiveGroup(r.Context()); err != nil {
		s.writeError(w, r, "clear_active_group", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "add_member", err)
		return
	}
	m, err := s.svc.AddMember(r.Context(), r.PathValue("groupID"), req.Name, nil)
	if err != nil {
		s.writeError(w, r, "add_member", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(m).Write(w)
}

func (s *Server) handleRenameMember(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, "rename_member", err)
		return
	}
	m, err := s.svc.RenameMember(r.Context(), r.PathValue("groupID"), r.PathValue("memberID"), req.Name)
	if err != nil {
		s.writeError(w, r, "rename_member", err)
		return
	}
	NewJSONResponse().Body(m).Write(w)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveMember(r.Context(), r.PathValue("groupID"), r.PathValue("memberID"), nil); err != nil {
		s.writeError(w, r, "remove_member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	report, err := s.svc.Balances(r.Context(), r.PathValue("groupID"))
	if err != nil {
		s.writeError(w, r, "balances", err)
		return
	}
	NewJSONResponse().Body(report).Write(w)
}

func (s *Server) handleGroupCategories(w http.ResponseWriter, r *http.Request) {
	totals, err := s.svc.GroupCategoryTotals(r.Context(), r.PathValue("groupID"))
	if err != nil {
		s.writeError(w, r, "group_categories", err)
		return
	}
	NewJSONResponse().Body(totals).Write(w)
}

func (s *Server) handleRecordSettlement(w http.ResponseWriter, r *http.Request) {
	var in services.SettlementInput
	if err := s.decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, "record_settlement", err)
		return
	}
	st, err := s.svc.RecordSettlement(r.Context(), r.PathValue("groupID"), in)
	if err != nil {
		s.writeError(w, r, "record_settlement", err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(st).Write(w)
}

// handleSuggestSettlement pre-fills the settlement form for ?from=<debtor>.
func (s *Server) handleSuggestSettlement(w http.ResponseWriter, r *http.Request) {
	sg, err := s.svc.SuggestSettlement(r.Context(), r.PathValue("groupID"), r.URL.Query().Get("from"))
	if err != nil {
		s.writeError(w, r, "suggest_settlement", err)
		return
	}
	NewJSONResponse().Body(sg).Write(w)
}

// handleListExpenses supports ?category= and ?q= filters.
func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.ExpenseFilter{Category: q.Get("category"), Query: q.Get("q")}
	expenses, err := s.svc.FilterExpenses(r.Context(), r.PathValue("groupID"), f)
	if err != nil {
		s.writeError(w, r, "list_expenses", err)
		return
	}
	NewJSONResponse().Body(expenses).Write(w)
}
