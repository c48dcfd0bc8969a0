package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"kidbank/internal/model"

	"gorm.io/gorm"
)

const day = 24 * time.Hour

func (e *testEnv) setLastInterestAt(t *testing.T, accountID string, at time.Time) {
	t.Helper()
	err := e.db.Model(&model.Account{}).Where("id = ?", accountID).Update("last_interest_at", at).Error
	if err != nil {
		t.Fatalf("set last_interest_at err=%v", err)
	}
}

func TestAllowancePaysOncePerWeek(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.mustAccount(t, model.RoleDependent, "kid@example.com")
	if _, err := env.accounts.SetAllowance(ctx, kid.ID, dec("10")); err != nil {
		t.Fatalf("SetAllowance err=%v", err)
	}

	steps := []struct {
		name    string
		advance time.Duration
		want    PolicyOutcome
		balance string
	}{
		{"first evaluation pays", 0, OutcomePaid, "10"},
		{"same session", 0, OutcomeNotDue, "10"},
		{"one day later", day, OutcomeNotDue, "10"},
		{"exactly seven days", 6 * day, OutcomeNotDue, "10"},
		{"just past seven days", time.Second, OutcomePaid, "20"},
		{"repeat right after", time.Minute, OutcomeNotDue, "20"},
	}

	for _, step := range steps {
		env.clock.Advance(step.advance)
		result, err := env.policy.EvaluateAllowance(ctx, kid.ID)
		if err != nil {
			t.Fatalf("%s: err=%v", step.name, err)
		}
		if result.Outcome != step.want {
			t.Fatalf("%s: outcome=%s want=%s", step.name, result.Outcome, step.want)
		}
		env.assertBalances(t, kid.ID, step.balance, "0")
	}

	entries, total, err := env.accounts.ListTransactions(ctx, kid.ID, model.FieldChecking, 1, 10)
	if err != nil {
		t.Fatalf("ListTransactions err=%v", err)
	}
	if total != 2 || entries[0].Description != model.DescriptionAllowance {
		t.Fatalf("total=%d entries=%+v", total, entries)
	}
	env.assertReconciled(t, kid.ID)
}

func TestAllowanceDisabledWhenZero(t *testing.T) {
	env := newTestEnv(t)
	kid := env.mustAccount(t, model.RoleDependent, "kid@example.com")

	result, err := env.policy.EvaluateAllowance(context.Background(), kid.ID)
	if err != nil {
		t.Fatalf("EvaluateAllowance err=%v", err)
	}
	if result.Outcome != OutcomeDisabled {
		t.Fatalf("outcome=%s want=%s", result.Outcome, OutcomeDisabled)
	}
	if env.reload(t, kid.ID).LastAllowanceAt != nil {
		t.Fatal("last_allowance_at should stay unset")
	}
}

func TestInterestScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.mustAccount(t, model.RoleDependent, "kid@example.com")
	env.fund(t, kid.ID, model.FieldChecking, "100")
	env.fund(t, kid.ID, model.FieldSavings, "100")
	if _, err := env.accounts.SetInterestRate(ctx, kid.ID, dec("0.12")); err != nil {
		t.Fatalf("SetInterestRate err=%v", err)
	}
	now := env.clock.Now()
	env.setLastInterestAt(t, kid.ID, now.Add(-31*day))

	result, err := env.policy.EvaluateInterest(ctx, kid.ID)
	if err != nil {
		t.Fatalf("EvaluateInterest err=%v", err)
	}
	if result.Outcome != OutcomePaid || !result.Amount.Equal(dec("1")) {
		t.Fatalf("outcome=%s amount=%s want paid 1.00", result.Outcome, result.Amount)
	}
	if result.Transaction.AccountField != model.FieldChecking || result.Transaction.Description != model.DescriptionInterest {
		t.Fatalf("unexpected entry: %+v", result.Transaction)
	}

	// 利息进入 checking，savings 不变
	env.assertBalances(t, kid.ID, "101", "100")
	account := env.reload(t, kid.ID)
	if account.LastInterestAt == nil || !account.LastInterestAt.Equal(now) {
		t.Fatalf("last_interest_at=%v want=%v", account.LastInterestAt, now)
	}

	again, err := env.policy.EvaluateInterest(ctx, kid.ID)
	if err != nil {
		t.Fatalf("EvaluateInterest err=%v", err)
	}
	if again.Outcome != OutcomeNotDue {
		t.Fatalf("outcome=%s want=%s", again.Outcome, OutcomeNotDue)
	}
	env.assertBalances(t, kid.ID, "101", "100")
	env.assertReconciled(t, kid.ID)
}

func TestInterestStartsClockWithoutPaying(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.mustAccount(t, model.RoleDependent, "kid@example.com")
	env.fund(t, kid.ID, model.FieldChecking, "500")

	result, err := env.policy.EvaluateInterest(ctx, kid.ID)
	if err != nil {
		t.Fatalf("EvaluateInterest err=%v", err)
	}
	if result.Outcome != OutcomeClockStarted {
		t.Fatalf("outcome=%s want=%s", result.Outcome, OutcomeClockStarted)
	}
	account := env.reload(t, kid.ID)
	if account.LastInterestAt == nil || !account.LastInterestAt.Equal(env.clock.Now()) {
		t.Fatalf("last_interest_at=%v", account.LastInterestAt)
	}
	env.assertBalances(t, kid.ID, "500", "0")

	// 默认年利率 5%：500 * 0.05 / 12 = 2.0833… 取两位小数
	env.clock.Advance(30*day + time.Second)
	result, err = env.policy.EvaluateInterest(ctx, kid.ID)
	if err != nil {
		t.Fatalf("EvaluateInterest err=%v", err)
	}
	if result.Outcome != OutcomePaid || !result.Amount.Equal(dec("2.08")) {
		t.Fatalf("outcome=%s amount=%s want paid 2.08", result.Outcome, result.Amount)
	}
	env.assertBalances(t, kid.ID, "502.08", "0")
}

func TestInterestBelowMinimumDoesNotAdvanceClock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.mustAccount(t, model.RoleDependent, "kid@example.com")
	env.fund(t, kid.ID, model.FieldChecking, "1")
	last := env.clock.Now().Add(-40 * day)
	env.setLastInterestAt(t, kid.ID, last)

	result, err := env.policy.EvaluateInterest(ctx, kid.ID)
	if err != nil {
		t.Fatalf("EvaluateInterest err=%v", err)
	}
	if result.Outcome != OutcomeBelowMinimum {
		t.Fatalf("outcome=%s want=%s", result.Outcome, OutcomeBelowMinimum)
	}
	account := env.reload(t, kid.ID)
	if account.LastInterestAt == nil || !account.LastInterestAt.Equal(last) {
		t.Fatalf("last_interest_at moved to %v", account.LastInterestAt)
	}
	env.assertBalances(t, kid.ID, "1", "0")
}

func TestEvaluateRunsBothRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.mustAccount(t, model.RoleDependent, "kid@example.com")
	if _, err := env.accounts.SetAllowance(ctx, kid.ID, dec("5")); err != nil {
		t.Fatalf("SetAllowance err=%v", err)
	}

	results, err := env.policy.Evaluate(ctx, kid.ID)
	if err != nil {
		t.Fatalf("Evaluate err=%v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results=%d want=2", len(results))
	}
	if results[0].Rule != RuleAllowance || results[0].Outcome != OutcomePaid {
		t.Fatalf("allowance result=%+v", results[0])
	}
	if results[1].Rule != RuleInterest || results[1].Outcome != OutcomeClockStarted {
		t.Fatalf("interest result=%+v", results[1])
	}
}

func TestEvaluateUnknownAccount(t *testing.T) {
	env := newTestEnv(t)

	results, err := env.policy.Evaluate(context.Background(), "missing")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("err=%v want=%v", err, ErrAccountNotFound)
	}
	if len(results) != 0 {
		t.Fatalf("results=%d want=0", len(results))
	}
}

// conflictEveryAttempt 每次读取账户后都抢先修改 version，使写回必然冲突
func (e *testEnv) conflictEveryAttempt() {
	e.ledger.afterLoad = func(tx *gorm.DB, accountID string) {
		tx.Exec("UPDATE account SET version = version + 1 WHERE id = ?", accountID)
	}
}

func TestAllowanceFailedCreditRetriesOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.mustAccount(t, model.RoleDependent, "kid@example.com")
	if _, err := env.accounts.SetAllowance(ctx, kid.ID, dec("10")); err != nil {
		t.Fatalf("SetAllowance err=%v", err)
	}

	env.conflictEveryAttempt()
	if _, err := env.policy.EvaluateAllowance(ctx, kid.ID); !errors.Is(err, ErrTransientStoreConflict) {
		t.Fatalf("err=%v want=%v", err, ErrTransientStoreConflict)
	}
	env.ledger.afterLoad = nil

	if env.reload(t, kid.ID).LastAllowanceAt != nil {
		t.Fatal("last_allowance_at set although the credit failed")
	}
	env.assertBalances(t, kid.ID, "0", "0")
	if n := env.countEntries(t, kid.ID); n != 0 {
		t.Fatalf("entries=%d want=0", n)
	}

	for i, want := range []PolicyOutcome{OutcomePaid, OutcomeNotDue} {
		result, err := env.policy.EvaluateAllowance(ctx, kid.ID)
		if err != nil {
			t.Fatalf("evaluation #%d err=%v", i+1, err)
		}
		if result.Outcome != want {
			t.Fatalf("evaluation #%d outcome=%s want=%s", i+1, result.Outcome, want)
		}
	}
	env.assertBalances(t, kid.ID, "10", "0")
	env.assertReconciled(t, kid.ID)
}

func TestInterestFailedCreditKeepsTimestamp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	kid := env.mustAccount(t, model.RoleDependent, "kid@example.com")
	env.fund(t, kid.ID, model.FieldChecking, "100")
	if _, err := env.accounts.SetInterestRate(ctx, kid.ID, dec("0.12")); err != nil {
		t.Fatalf("SetInterestRate err=%v", err)
	}
	last := env.clock.Now().Add(-31 * day)
	env.setLastInterestAt(t, kid.ID, last)

	env.conflictEveryAttempt()
	if _, err := env.policy.EvaluateInterest(ctx, kid.ID); !errors.Is(err, ErrTransientStoreConflict) {
		t.Fatalf("err=%v want=%v", err, ErrTransientStoreConflict)
	}
	env.ledger.afterLoad = nil

	account := env.reload(t, kid.ID)
	if account.LastInterestAt == nil || !account.LastInterestAt.Equal(last) {
		t.Fatalf("last_interest_at=%v want=%v", account.LastInterestAt, last)
	}
	env.assertBalances(t, kid.ID, "100", "0")

	for i, want := range []PolicyOutcome{OutcomePaid, OutcomeNotDue} {
		result, err := env.policy.EvaluateInterest(ctx, kid.ID)
		if err != nil {
			t.Fatalf("evaluation #%d err=%v", i+1, err)
		}
		if result.Outcome != want {
			t.Fatalf("evaluation #%d outcome=%s want=%s", i+1, result.Outcome, want)
		}
	}
	env.assertBalances(t, kid.ID, "101", "0")
	env.assertReconciled(t, kid.ID)
}
