package postgres

import (
	"testing"

	"jobpulse/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestDSN_EscapesCredentials(t *testing.T) {
	cfg := config.DatabaseConfig{
		DBHost:     "db.internal",
		DBPort:     "5433",
		DBName:     "jobpulse",
		DBUser:     "crawler",
		DBPassword: "p@ss word/1",
		DBSSLMode:  "require",
	}

	dsn := DSN(cfg)
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse %q: %v", dsn, err)
	}
	cc := pcfg.ConnConfig
	if cc.Host != "db.internal" || cc.Port != 5433 || cc.Database != "jobpulse" {
		t.Fatalf("unexpected target %s:%d/%s", cc.Host, cc.Port, cc.Database)
	}
	if cc.User != "crawler" || cc.Password != "p@ss word/1" {
		t.Fatalf("credentials not preserved: %q %q", cc.User, cc.Password)
	}
}

func TestDSN_NoPassword(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{DBHost: "localhost", DBPort: "5432", DBName: "jp", DBUser: "me"})
	if dsn != "postgres://me@localhost:5432/jp" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}
