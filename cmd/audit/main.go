/*
main.go - Balance audit tool

PURPOSE:
  Recomputes account balances from their record history and reports any
  drift. Reads the store directly (no access rules), so run it only with
  operator access to the database file.

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (default: search ./config and .)
  -user    Account id to audit (repeatable, comma separated)

EXIT STATUS:
  0  all audited accounts consistent
  1  error
  2  drift found

EXAMPLES:
  ./audit -user=uid123
  ./audit -config=./config/config.yaml -user=uid1,uid2
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/oracoin/reward-engine/config"
	"github.com/oracoin/reward-engine/generic"
	"github.com/oracoin/reward-engine/logging"
	"github.com/oracoin/reward-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	users := flag.String("user", "", "Comma separated account ids")
	flag.Parse()

	code, err := run(*configPath, *users)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

func run(configPath, users string) (int, error) {
	ids := splitIDs(users)
	if len(ids) == 0 {
		return 0, fmt.Errorf("at least one -user is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return 0, err
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level})
	if err != nil {
		return 0, err
	}
	defer logger.Sync()

	db, err := sqlite.New(cfg.Store.Path)
	if err != nil {
		return 0, fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ledger := generic.NewLedger(db)
	ctx := context.Background()

	code := 0
	for _, id := range ids {
		aud, err := ledger.Audit(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("audit %s: %w", id, err)
		}
		fields := []zap.Field{
			zap.String("user_id", string(id)),
			zap.String("stored", aud.Stored.String()),
			zap.String("derived", aud.Derived.String()),
			zap.Int("records", aud.Records),
		}
		if !aud.Consistent() {
			code = 2
			logger.Warn("balance drift", append(fields, zap.String("drift", aud.Drift().String()))...)
			continue
		}
		logger.Info("balance consistent", fields...)
	}
	return code, nil
}

func splitIDs(s string) []generic.UserID {
	var ids []generic.UserID
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			ids = append(ids, generic.UserID(part))
		}
	}
	return ids
}
