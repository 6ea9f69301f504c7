package store

import (
	"cmp"
	"context"
	"fmt"
	"os"

	"github.com/STTM-NSU/paper-trader/internal/postgres"
)

const _sqlitePathDefault = "paper-trader.db"

// OpenFromEnv picks the dialect from STORE_DRIVER (postgres by default) and
// applies the schema. SQLITE_PATH names the embedded database file.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	var (
		s   *Store
		err error
	)
	switch driver := cmp.Or(os.Getenv("STORE_DRIVER"), string(Postgres)); Dialect(driver) {
	case Postgres:
		cfg := postgres.NewConfigFromEnv().Setup()
		db, dbErr := postgres.NewDB(ctx, cfg)
		if dbErr != nil {
			return nil, fmt.Errorf("%w: can't open %s", dbErr, cfg)
		}
		s, err = New(db)
	case SQLite:
		s, err = OpenSQLite(cmp.Or(os.Getenv("SQLITE_PATH"), _sqlitePathDefault))
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: can't migrate", err)
	}
	return s, nil
}
