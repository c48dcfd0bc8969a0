package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("port=%d want=8080", cfg.Server.Port)
	}
	if cfg.Ledger.MaxRetries != 5 || cfg.Ledger.MaxSavingsWithdrawals != 4 {
		t.Fatalf("ledger defaults=%+v", cfg.Ledger)
	}
	if cfg.Ledger.AllowancePeriod != 7*24*time.Hour {
		t.Fatalf("allowance period=%v", cfg.Ledger.AllowancePeriod)
	}
	if got := cfg.Ledger.InterestRate().String(); got != "0.05" {
		t.Fatalf("interest rate=%s want=0.05", got)
	}
	if cfg.MQ.Driver != "none" {
		t.Fatalf("mq driver=%s want=none", cfg.MQ.Driver)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  driver: sqlite
  sqlite:
    path: /tmp/ledger.db
mq:
  driver: amqp
  amqp:
    url: amqp://guest:guest@mq:5672/
    exchange: ledger
ledger:
  max_retries: 3
  retry_backoff: 5ms
  default_interest_rate: "0.12"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.Port != 9090 || cfg.Database.Driver != "sqlite" || cfg.Database.SQLite.Path != "/tmp/ledger.db" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.MQ.AMQP.Exchange != "ledger" {
		t.Fatalf("exchange=%q", cfg.MQ.AMQP.Exchange)
	}
	if cfg.Ledger.MaxRetries != 3 || cfg.Ledger.RetryBackoff != 5*time.Millisecond {
		t.Fatalf("ledger=%+v", cfg.Ledger)
	}
	if got := cfg.Ledger.InterestRate().String(); got != "0.12" {
		t.Fatalf("interest rate=%s", got)
	}
	// 未出现在文件中的键保留默认值
	if cfg.Job.OutboxBatchSize != 100 {
		t.Fatalf("outbox batch=%d want=100", cfg.Job.OutboxBatchSize)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("LEDGER_SERVER_PORT", "7070")
	t.Setenv("LEDGER_DATABASE_DRIVER", "postgres")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.Port != 7070 || cfg.Database.Driver != "postgres" {
		t.Fatalf("env not applied: port=%d driver=%s", cfg.Server.Port, cfg.Database.Driver)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load err=%v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantSub string
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"bad mq", func(c *Config) { c.MQ.Driver = "nats" }, "mq.driver"},
		{"kafka without brokers", func(c *Config) { c.MQ.Driver = "kafka"; c.MQ.Kafka.Brokers = nil }, "mq.kafka.brokers"},
		{"zero retries", func(c *Config) { c.Ledger.MaxRetries = 0 }, "ledger.max_retries"},
		{"bad rate", func(c *Config) { c.Ledger.DefaultInterestRate = "five" }, "default_interest_rate"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("err=%q want substring %q", err, tt.wantSub)
			}
		})
	}
}
