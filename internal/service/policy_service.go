package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"kidbank/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	RuleAllowance = "allowance"
	RuleInterest  = "interest"
)

type PolicyOutcome string

const (
	OutcomePaid         PolicyOutcome = "paid"
	OutcomeNotDue       PolicyOutcome = "not_due"
	OutcomeDisabled     PolicyOutcome = "disabled"
	OutcomeClockStarted PolicyOutcome = "clock_started"
	OutcomeBelowMinimum PolicyOutcome = "below_minimum"
)

// PolicyResult 一次规则评估的结果
type PolicyResult struct {
	Rule        string             `json:"rule"`
	Outcome     PolicyOutcome      `json:"outcome"`
	Amount      decimal.Decimal    `json:"amount"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
}

// PolicyService 周期性入账规则（零花钱、利息）的惰性评估。
// 不持有定时器和状态，是否到期只看账户上的时间戳；
// 入账与时间戳推进在同一个原子操作内完成，重复评估不会重复入账。
type PolicyService struct {
	ledger *LedgerService
}

func NewPolicyService(ledger *LedgerService) *PolicyService {
	return &PolicyService{ledger: ledger}
}

// EvaluateAllowance 零花钱：金额大于0且距上次发放超过一个周期时，向 checking 入账
func (s *PolicyService) EvaluateAllowance(ctx context.Context, accountID string) (*PolicyResult, error) {
	period := s.ledger.cfg.Ledger.AllowancePeriod
	now := s.ledger.clock.Now()

	var result *PolicyResult
	err := s.ledger.withAccount(ctx, RuleAllowance, accountID, func(tx *gorm.DB, account *model.Account) error {
		result = &PolicyResult{Rule: RuleAllowance, Amount: decimal.Zero}

		if !account.AllowanceAmount.IsPositive() {
			result.Outcome = OutcomeDisabled
			return errNoChange
		}
		if account.LastAllowanceAt != nil && now.Sub(*account.LastAllowanceAt) <= period {
			result.Outcome = OutcomeNotDue
			return errNoChange
		}

		entry, err := s.ledger.appendEntry(ctx, tx, account, model.FieldChecking, account.AllowanceAmount, model.DescriptionAllowance, "")
		if err != nil {
			return err
		}
		paidAt := now
		account.LastAllowanceAt = &paidAt

		result.Outcome = OutcomePaid
		result.Amount = entry.Amount
		result.Transaction = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomePaid {
		slog.InfoContext(ctx, "零花钱已发放",
			"component", "policy", "account_id", accountID, "amount", result.Amount.String())
	}
	return result, nil
}

// EvaluateInterest 利息：按 checking 余额 × 年利率/12 计算。
// 计息时钟未启动时只记录当前时间；金额低于最小值时跳过且不推进时间戳。
func (s *PolicyService) EvaluateInterest(ctx context.Context, accountID string) (*PolicyResult, error) {
	cfg := s.ledger.cfg.Ledger
	period := cfg.InterestPeriod
	minInterest := cfg.MinInterestAmount()
	now := s.ledger.clock.Now()

	var result *PolicyResult
	err := s.ledger.withAccount(ctx, RuleInterest, accountID, func(tx *gorm.DB, account *model.Account) error {
		result = &PolicyResult{Rule: RuleInterest, Amount: decimal.Zero}

		if account.LastInterestAt == nil {
			startedAt := now
			account.LastInterestAt = &startedAt
			result.Outcome = OutcomeClockStarted
			return nil
		}
		if now.Sub(*account.LastInterestAt) <= period {
			result.Outcome = OutcomeNotDue
			return errNoChange
		}

		monthlyRate := account.InterestRateAnnual.Div(decimal.NewFromInt(12))
		raw := account.CheckingBalance.Mul(monthlyRate)
		if raw.LessThan(minInterest) {
			result.Outcome = OutcomeBelowMinimum
			result.Amount = raw
			return errNoChange
		}

		entry, err := s.ledger.appendEntry(ctx, tx, account, model.FieldChecking, raw.Round(2), model.DescriptionInterest, "")
		if err != nil {
			return err
		}
		paidAt := now
		account.LastInterestAt = &paidAt

		result.Outcome = OutcomePaid
		result.Amount = entry.Amount
		result.Transaction = entry
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomePaid {
		slog.InfoContext(ctx, "利息已入账",
			"component", "policy", "account_id", accountID, "amount", result.Amount.String())
	}
	return result, nil
}

// Evaluate 依次评估零花钱与利息。
// 一条规则失败不影响另一条，返回已成功的结果和合并后的错误。
func (s *PolicyService) Evaluate(ctx context.Context, accountID string) ([]*PolicyResult, error) {
	var (
		results []*PolicyResult
		errs    []error
	)

	rules := []struct {
		name string
		eval func(context.Context, string) (*PolicyResult, error)
	}{
		{RuleAllowance, s.EvaluateAllowance},
		{RuleInterest, s.EvaluateInterest},
	}
	for _, rule := range rules {
		result, err := rule.eval(ctx, accountID)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rule.name, err))
			continue
		}
		results = append(results, result)
	}

	return results, errors.Join(errs...)
}
