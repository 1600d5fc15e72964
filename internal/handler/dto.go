package handler

import (
	"time"

	"bankledger/internal/model"
	"bankledger/internal/repository"
	"bankledger/internal/service"
)

type AccountResponse struct {
	AccountNumber string    `json:"account_number"`
	AccountName   string    `json:"account_name"`
	AccountType   string    `json:"account_type"`
	Balance       string    `json:"balance"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toAccountResponse(a *model.Account) AccountResponse {
	return AccountResponse{
		AccountNumber: a.AccountNumber,
		AccountName:   a.AccountName,
		AccountType:   string(a.AccountType),
		Balance:       model.FormatAmount(a.Balance),
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func toAccountResponses(accounts []*model.Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	return out
}

type TransactionResponse struct {
	TransactionID     string    `json:"transaction_id"`
	Type              string    `json:"type"`
	Amount            string    `json:"amount"`
	BalanceBefore     string    `json:"balance_before"`
	BalanceAfter      string    `json:"balance_after"`
	Description       string    `json:"description,omitempty"`
	Status            string    `json:"status"`
	FromAccountNumber *string   `json:"from_account_number,omitempty"`
	ToAccountNumber   *string   `json:"to_account_number,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func toTransactionResponse(t *model.Transaction) TransactionResponse {
	return TransactionResponse{
		TransactionID:     t.TransactionID,
		Type:              string(t.Type),
		Amount:            model.FormatAmount(t.Amount),
		BalanceBefore:     model.FormatAmount(t.BalanceBefore),
		BalanceAfter:      model.FormatAmount(t.BalanceAfter),
		Description:       t.Description,
		Status:            string(t.Status),
		FromAccountNumber: t.FromAccountNumber,
		ToAccountNumber:   t.ToAccountNumber,
		CreatedAt:         t.CreatedAt,
	}
}

type PageResponse struct {
	Content       []TransactionResponse `json:"content"`
	PageNumber    int                   `json:"page_number"`
	PageSize      int                   `json:"page_size"`
	TotalElements int64                 `json:"total_elements"`
	TotalPages    int                   `json:"total_pages"`
	First         bool                  `json:"first"`
	Last          bool                  `json:"last"`
}

func toPageResponse(p *repository.Page[model.Transaction]) PageResponse {
	content := make([]TransactionResponse, 0, len(p.Content))
	for _, t := range p.Content {
		content = append(content, toTransactionResponse(t))
	}
	return PageResponse{
		Content:       content,
		PageNumber:    p.PageNumber,
		PageSize:      p.PageSize,
		TotalElements: p.TotalElements,
		TotalPages:    p.TotalPages,
		First:         p.First,
		Last:          p.Last,
	}
}

type DashboardResponse struct {
	CustomerID        int64             `json:"customer_id"`
	TotalAccounts     int               `json:"total_accounts"`
	TotalBalance      string            `json:"total_balance"`
	TotalTransactions int64             `json:"total_transactions"`
	Accounts          []AccountResponse `json:"accounts"`
}

func toDashboardResponse(d *service.Dashboard) DashboardResponse {
	return DashboardResponse{
		CustomerID:        d.CustomerID,
		TotalAccounts:     d.TotalAccounts,
		TotalBalance:      model.FormatAmount(d.TotalBalance),
		TotalTransactions: d.TotalTransactions,
		Accounts:          toAccountResponses(d.Accounts),
	}
}
