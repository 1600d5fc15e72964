package job

import (
	"context"
	"log/slog"
	"time"

	"bankledger/internal/config"
	"bankledger/internal/model"
	"bankledger/internal/repository"

	"github.com/shopspring/decimal"
)

// LedgerAuditJob periodically checks that each recently touched account's
// balance equals the balanceAfter of its newest ledger entry. It only reports;
// it never repairs.
type LedgerAuditJob struct {
	uow       repository.UnitOfWork
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
	since     time.Time
	sinceID   int64 // tie-breaker for accounts sharing since
	now       func() time.Time
	logger    *slog.Logger
}

type Mismatch struct {
	AccountNumber string
	Balance       decimal.Decimal
	LedgerBalance decimal.Decimal
	TransactionID string
}

type AuditReport struct {
	Checked    int
	Skipped    int
	Mismatches []Mismatch
}

func NewLedgerAuditJob(uow repository.UnitOfWork, cfg *config.Config, logger *slog.Logger) *LedgerAuditJob {
	return &LedgerAuditJob{
		uow:       uow,
		stopCh:    make(chan struct{}),
		interval:  cfg.Audit.Interval,
		batchSize: cfg.Audit.BatchSize,
		now:       time.Now,
		logger:    logger.With("component", "LedgerAuditJob"),
	}
}

func (j *LedgerAuditJob) Start(ctx context.Context) {
	j.logger.Info("账务核对任务启动", "interval", j.interval)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("收到停止信号，任务退出")
			return
		case <-j.stopCh:
			j.logger.Info("任务停止")
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

func (j *LedgerAuditJob) Stop() {
	close(j.stopCh)
}

// RunOnce audits one batch of accounts updated since the previous run.
func (j *LedgerAuditJob) RunOnce(ctx context.Context) AuditReport {
	var report AuditReport
	startedAt := j.now()

	accounts, err := j.uow.Accounts().FindUpdatedSince(ctx, j.since, j.sinceID, j.batchSize)
	if err != nil {
		j.logger.Error("查询待核对账户失败", "err", err)
		return report
	}

	for _, account := range accounts {
		mismatch, checked, err := j.audit(ctx, account)
		if err != nil {
			j.logger.Error("核对账户失败", "account", account.AccountNumber, "err", err)
			report.Skipped++
			continue
		}
		if !checked {
			report.Skipped++
			continue
		}
		report.Checked++
		if mismatch != nil {
			report.Mismatches = append(report.Mismatches, *mismatch)
			j.logger.Error("账户余额与流水不一致",
				"account", mismatch.AccountNumber,
				"balance", model.FormatAmount(mismatch.Balance),
				"ledger_balance", model.FormatAmount(mismatch.LedgerBalance),
				"transaction_id", mismatch.TransactionID)
		}
	}

	// a full batch may have more behind it; continue after the last one seen
	if len(accounts) > 0 && len(accounts) == j.batchSize {
		last := accounts[len(accounts)-1]
		j.since, j.sinceID = last.UpdatedAt, last.ID
	} else {
		j.since, j.sinceID = startedAt, 0
	}

	if report.Checked > 0 {
		j.logger.Info("账务核对完成", "checked", report.Checked, "skipped", report.Skipped, "mismatches", len(report.Mismatches))
	}
	return report
}

// audit returns checked=false when the account moved while being read; it
// will come up again on the next run.
func (j *LedgerAuditJob) audit(ctx context.Context, account *model.Account) (*Mismatch, bool, error) {
	page, err := j.uow.Transactions().FindByAccountID(ctx, account.ID, repository.PageRequest{Number: 0, Size: 1})
	if err != nil {
		return nil, false, err
	}

	current, err := j.uow.Accounts().FindByID(ctx, account.ID)
	if err != nil {
		return nil, false, err
	}
	if current.Version != account.Version {
		return nil, false, nil
	}

	ledgerBalance := decimal.Zero
	transactionID := ""
	if len(page.Content) > 0 {
		ledgerBalance = page.Content[0].BalanceAfter
		transactionID = page.Content[0].TransactionID
	}

	if current.Balance.Equal(ledgerBalance) {
		return nil, true, nil
	}
	return &Mismatch{
		AccountNumber: current.AccountNumber,
		Balance:       current.Balance,
		LedgerBalance: ledgerBalance,
		TransactionID: transactionID,
	}, true, nil
}
