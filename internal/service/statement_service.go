package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/model"
	"bankledger/internal/repository"
)

// StatementService serves read-only views of an account's ledger. It takes
// no account locks.
type StatementService struct {
	uow             repository.UnitOfWork
	defaultPageSize int
	maxPageSize     int
	logger          *slog.Logger
}

func NewStatementService(uow repository.UnitOfWork, cfg *config.Config, logger *slog.Logger) *StatementService {
	return &StatementService{
		uow:             uow,
		defaultPageSize: cfg.Ledger.DefaultPageSize,
		maxPageSize:     cfg.Ledger.MaxPageSize,
		logger:          logger.With("component", "statement"),
	}
}

// GetStatement returns the account's transactions, newest first.
func (s *StatementService) GetStatement(ctx context.Context, caller int64, accountNumber string, page, pageSize int) (*repository.Page[model.Transaction], error) {
	req, err := s.pageRequest(page, pageSize)
	if err != nil {
		return nil, err
	}

	account, err := findOwned(ctx, s.uow.Accounts(), caller, accountNumber)
	if err != nil {
		return nil, err
	}

	result, err := s.uow.Transactions().FindByAccountID(ctx, account.ID, req)
	if err != nil {
		s.logger.Error("statement query failed", "account", accountNumber, "err", err)
		return nil, err
	}
	return result, nil
}

// GetHistory returns the account's transactions created within [start, end],
// newest first.
func (s *StatementService) GetHistory(ctx context.Context, caller int64, accountNumber string, start, end time.Time, page, pageSize int) (*repository.Page[model.Transaction], error) {
	if start.After(end) {
		return nil, fmt.Errorf("%w: start %s is after end %s", model.ErrInvalidArgument,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	req, err := s.pageRequest(page, pageSize)
	if err != nil {
		return nil, err
	}

	account, err := findOwned(ctx, s.uow.Accounts(), caller, accountNumber)
	if err != nil {
		return nil, err
	}

	result, err := s.uow.Transactions().FindByAccountIDAndCreatedAtBetween(ctx, account.ID, start, end, req)
	if err != nil {
		s.logger.Error("history query failed", "account", accountNumber, "err", err)
		return nil, err
	}
	return result, nil
}

// pageRequest 分页参数规范化：页码从 0 开始，size<=0 取默认值，超过上限截断
func (s *StatementService) pageRequest(page, pageSize int) (repository.PageRequest, error) {
	if page < 0 {
		return repository.PageRequest{}, fmt.Errorf("%w: page must not be negative", model.ErrInvalidArgument)
	}
	if pageSize <= 0 {
		pageSize = s.defaultPageSize
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}
	// offset = page*pageSize must fit in an int
	if page > math.MaxInt/pageSize {
		return repository.PageRequest{}, fmt.Errorf("%w: page %d out of range", model.ErrInvalidArgument, page)
	}
	return repository.PageRequest{Number: page, Size: pageSize}, nil
}
