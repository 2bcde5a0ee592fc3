package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nvandessel/bankrun/internal/constants"
)

// Open returns the store for a driver name. sqlite and postgres need a
// DSN; memory ignores it.
func Open(ctx context.Context, driver, dsn string) (ResultStore, error) {
	switch driver {
	case constants.DriverMemory:
		return NewInMemoryResultStore(), nil
	case constants.DriverSQLite, "":
		if dsn == "" {
			return nil, errors.New("sqlite store requires a database path")
		}
		s, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case constants.DriverPostgres:
		if dsn == "" {
			return nil, errors.New("postgres store requires a dsn")
		}
		s, err := OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
