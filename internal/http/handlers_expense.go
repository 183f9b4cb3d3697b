package http

import (
	"net/http"

	"github.com/shopspring/decimal"

	"tricount/internal/services"
)

func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := claimsFrom(r)
	member, err := s.groups.AddMember(r.Context(), claims.AccountID, r.PathValue("id"), req.Name, req.Email)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, memberResponse{
		ID:    member.ID,
		Name:  member.Name,
		Email: member.Email,
	})
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	err := s.groups.RemoveMember(r.Context(), claims.AccountID, r.PathValue("id"), r.PathValue("userID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description    string                     `json:"description"`
		Amount         string                     `json:"amount"`
		PayerID        string                     `json:"payer_id"`
		ParticipantIDs []string                   `json:"participants_ids"`
		Weights        map[string]decimal.Decimal `json:"weights"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	claims := claimsFrom(r)
	expense, err := s.groups.AddExpense(r.Context(), claims.AccountID, r.PathValue("id"), services.ExpenseInput{
		Description:    req.Description,
		Amount:         req.Amount,
		PayerID:        req.PayerID,
		ParticipantIDs: req.ParticipantIDs,
		Weights:        req.Weights,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	out := expenseResponse{
		ID:             expense.ID,
		Description:    expense.Description,
		AmountCents:    expense.Amount.Cents,
		PayerID:        expense.PayerID,
		ParticipantIDs: expense.ParticipantIDs,
	}
	if len(expense.Weights) > 0 {
		out.Weights = make(map[string]string, len(expense.Weights))
		for id, wgt := range expense.Weights {
			out.Weights[id] = wgt.String()
		}
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleRemoveExpense(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r)
	err := s.groups.RemoveExpense(r.Context(), claims.AccountID, r.PathValue("id"), r.PathValue("expenseID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
