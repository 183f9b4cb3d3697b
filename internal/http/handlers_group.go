package http

import (
	"net/http"

	"tricount/internal/core"
	"tricount/internal/services"
)

type groupSummaryResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Currency      string `json:"currency"`
	MembersCount  int    `json:"members_count"`
	ExpensesCount int    `json:"expenses_count"`
}

type memberResponse struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Linked bool   `json:"linked"`
}

type expenseResponse struct {
	ID             string            `json:"id"`
	Description    string            `json:"description"`
	AmountCents    int64             `json:"amount_cents"`
	Amount         string            `json:"amount,omitempty"`
	PayerID        string            `json:"payer_id"`
	ParticipantIDs []string          `json:"participants_ids"`
	Weights        map[string]string `json:"weights,omitempty"`
}

type balanceResponse struct {
	MemberID    string `json:"member_id"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

type transferResponse struct {
	FromID      string `json:"from_id"`
	ToID        string `json:"to_id"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

type groupViewResponse struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Currency    string             `json:"currency"`
	Version     int64              `json:"version"`
	Members     []memberResponse   `json:"members"`
	Expenses    []expenseResponse  `json:"expenses"`
	Balances    []balanceResponse  `json:"balances"`
	Settlements []transferResponse `json:"settlements"`
}

func buildViewResponse(view *services.GroupView) groupViewResponse {
	c := view.Currency
	resp := groupViewResponse{
		ID:          view.ID,
		Name:        view.Name,
		Currency:    string(c),
		Version:     view.Version,
		Members:     make([]memberResponse, 0, len(view.Members)),
		Expenses:    make([]expenseResponse, 0, len(view.Expenses)),
		Balances:    make([]balanceResponse, 0, len(view.Balances)),
		Settlements: make([]transferResponse, 0, len(view.Settlements)),
	}

	for _, m := range view.Members {
		resp.Members = append(resp.Members, memberResponse{
			ID:     m.ID,
			Name:   m.Name,
			Email:  m.Email,
			Linked: m.AuthID != "",
		})
	}
	for _, e := range view.Expenses {
		out := expenseResponse{
			ID:             e.ID,
			Description:    e.Description,
			AmountCents:    e.Amount.Cents,
			Amount:         e.Amount.Format(c),
			PayerID:        e.PayerID,
			ParticipantIDs: e.ParticipantIDs,
		}
		if len(e.Weights) > 0 {
			out.Weights = make(map[string]string, len(e.Weights))
			for id, wgt := range e.Weights {
				out.Weights[id] = wgt.String()
			}
		}
		resp.Expenses = append(resp.Expenses, out)
	}
	// Balances in member order so responses are stable.
	for _, m := range view.Members {
		b := view.Balances[m.ID]
		resp.Balances = append(resp.Balances, balanceResponse{
			MemberID:    m.ID,
			AmountCents: b.Cents,
			Amount:      b.Format(c),
		})
	}
	for _, t := range view.Settlements {
		resp.Settlements = append(resp.Settlements, transferResponse{
			FromID:      t.FromID,
			ToID:        t.ToID,
			AmountCents: t.Amount.Cents,
			Amount:      t.Amount.Format(c),
		})
	}
	return resp
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	summaries, err := s.groups.ListGroups(r.Context(), claims.AccountID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := make([]groupSummaryResponse, 0, len(summaries))
	for _, g := range summaries {
		out = append(out, groupSummaryResponse{
			ID:            g.ID,
			Name:          g.Name,
			Currency:      string(g.Currency),
			MembersCount:  g.MembersCount,
			ExpensesCount: g.ExpensesCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tricounts": out})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Currency string `json:"currency"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := claimsFrom(r)
	g, err := s.groups.CreateGroup(r.Context(), claims.AccountID, req.Name, core.Currency(req.Currency))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, groupSummaryResponse{
		ID:       g.ID,
		Name:     g.Name,
		Currency: string(g.Currency),
	})
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	view, err := s.groups.GetView(r.Context(), claims.AccountID, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buildViewResponse(view))
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	if err := s.groups.DeleteGroup(r.Context(), claims.AccountID, r.PathValue("id")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	info, err := s.groups.Invite(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	members := make([]memberResponse, 0, len(info.Members))
	for _, m := range info.Members {
		members = append(members, memberResponse{
			ID:     m.ID,
			Name:   m.Name,
			Linked: m.AuthID != "",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"group_id": info.GroupID,
		"name":     info.Name,
		"members":  members,
	})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	err := s.groups.Join(r.Context(), claims.AccountID, r.PathValue("id"), r.PathValue("userID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
