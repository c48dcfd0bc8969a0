package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"kidbank/internal/config"
	"kidbank/internal/infrastructure/database"
	"kidbank/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testEnv struct {
	db       *gorm.DB
	cfg      *config.Config
	clock    *fakeClock
	ledger   *LedgerService
	policy   *PolicyService
	accounts *AccountService
	goals    *GoalService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load err=%v", err)
	}
	cfg.Database = config.DatabaseConfig{
		Driver:   "sqlite",
		SQLite:   config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "ledger.db")},
		LogLevel: "silent",
	}
	cfg.Ledger.RetryBackoff = time.Millisecond

	db, err := database.Open(&cfg.Database)
	if err != nil {
		t.Fatalf("database.Open err=%v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	clock := newFakeClock()
	ledger := NewLedgerService(db, cfg, clock)
	return &testEnv{
		db:       db,
		cfg:      cfg,
		clock:    clock,
		ledger:   ledger,
		policy:   NewPolicyService(ledger),
		accounts: NewAccountService(db, ledger),
		goals:    NewGoalService(db),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEnv) mustAccount(t *testing.T, role, email string) *model.Account {
	t.Helper()
	account, err := e.accounts.CreateAccount(context.Background(), &CreateAccountRequest{Role: role, Email: email})
	if err != nil {
		t.Fatalf("CreateAccount(%s) err=%v", email, err)
	}
	return account
}

func (e *testEnv) fund(t *testing.T, accountID, field, amount string) {
	t.Helper()
	if _, err := e.ledger.Credit(context.Background(), accountID, field, dec(amount), "seed"); err != nil {
		t.Fatalf("Credit seed err=%v", err)
	}
}

func (e *testEnv) reload(t *testing.T, accountID string) *model.Account {
	t.Helper()
	view, err := e.accounts.GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("GetAccount err=%v", err)
	}
	return view.Account
}

func (e *testEnv) countEntries(t *testing.T, accountID string) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&model.Transaction{}).Where("account_id = ?", accountID).Count(&n).Error; err != nil {
		t.Fatalf("count entries err=%v", err)
	}
	return n
}

func (e *testEnv) assertBalances(t *testing.T, accountID, checking, savings string) {
	t.Helper()
	account := e.reload(t, accountID)
	if !account.CheckingBalance.Equal(dec(checking)) || !account.SavingsBalance.Equal(dec(savings)) {
		t.Fatalf("balances checking=%s savings=%s want checking=%s savings=%s",
			account.CheckingBalance, account.SavingsBalance, checking, savings)
	}
}

// assertReconciled 余额等于流水之和
func (e *testEnv) assertReconciled(t *testing.T, accountID string) {
	t.Helper()
	report, err := e.accounts.Reconcile(context.Background(), accountID)
	if err != nil {
		t.Fatalf("Reconcile err=%v", err)
	}
	if !report.Consistent {
		t.Fatalf("ledger out of balance: %+v", report)
	}
}
