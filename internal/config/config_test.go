package config

import (
	"testing"
	"time"
)

func TestParse_AppliesVotingDefaults(t *testing.T) {
	cfg, err := Parse([]byte("jwt:\n  secret: s3cret\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Voting.BaseRating != DefaultBaseRating {
		t.Errorf("base rating = %.1f, want %.1f", cfg.Voting.BaseRating, DefaultBaseRating)
	}
	if cfg.Voting.KFactor != DefaultKFactor {
		t.Errorf("k factor = %.1f, want %.1f", cfg.Voting.KFactor, DefaultKFactor)
	}
	if cfg.Voting.DefaultMaxTotalVotes != 0 {
		t.Errorf("total votes default = %d, want 0 (unlimited)", cfg.Voting.DefaultMaxTotalVotes)
	}
	if cfg.Voting.DefaultMaxDailyVotes != DefaultMaxDailyVotes {
		t.Errorf("daily votes default = %d, want %d", cfg.Voting.DefaultMaxDailyVotes, DefaultMaxDailyVotes)
	}
	if cfg.Voting.VoteRateLimit != DefaultVoteRateLimit {
		t.Errorf("vote rate limit = %d, want %d", cfg.Voting.VoteRateLimit, DefaultVoteRateLimit)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
}

func TestParse_ReadsValues(t *testing.T) {
	data := []byte(`
server:
  host: 0.0.0.0
  port: 9000
database:
  driver: memory
jwt:
  secret: abc
voting:
  k_factor: 24
  default_max_daily_votes: 3
  close_sweep_interval: 30s
  stratum_fraction: 0.5
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Voting.KFactor != 24 {
		t.Errorf("k factor = %.1f, want 24", cfg.Voting.KFactor)
	}
	if cfg.Voting.DefaultMaxDailyVotes != 3 {
		t.Errorf("daily votes = %d, want 3", cfg.Voting.DefaultMaxDailyVotes)
	}
	if cfg.Voting.CloseSweepInterval != 30*time.Second {
		t.Errorf("sweep interval = %s, want 30s", cfg.Voting.CloseSweepInterval)
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	tests := []struct {
		name string
		data string
	}{
		{"missing secret", "server:\n  port: 1\n"},
		{"unknown driver", "jwt:\n  secret: x\ndatabase:\n  driver: mysql\n"},
		{"stratum above one", "jwt:\n  secret: x\nvoting:\n  stratum_fraction: 1.5\n"},
		{"negative quota", "jwt:\n  secret: x\nvoting:\n  default_max_total_votes: -1\n"},
		{"negative k factor", "jwt:\n  secret: x\nvoting:\n  k_factor: -4\n"},
		{"negative vote rate limit", "jwt:\n  secret: x\nvoting:\n  vote_rate_limit: -1\n"},
		{"bad yaml", "jwt: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("Parse() error = nil, want error")
			}
		})
	}
}

func TestParse_SecretsFromEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DATABASE_PASSWORD", "pg-env")

	cfg, err := Parse([]byte("database:\n  password: from-file\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Errorf("jwt secret = %q, want from-env", cfg.JWT.Secret)
	}
	if cfg.Database.Password != "pg-env" {
		t.Errorf("db password = %q, want pg-env", cfg.Database.Password)
	}
	if cfg.Server.CORSOrigins != "*" {
		t.Errorf("cors origins = %q, want *", cfg.Server.CORSOrigins)
	}
}

func TestDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "contests", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=contests sslmode=disable"
	if got := db.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
