package journal

import (
	"context"
	"fmt"
)

// Open creates a store by driver name: "memory", "sqlite" (dsn is a path)
// or "redis" (dsn is a redis:// URL). An empty driver means "memory".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		if dsn == "" {
			dsn = "stategraph.db"
		}
		return NewSQLiteStore(dsn)
	case "redis":
		if dsn == "" {
			dsn = "redis://localhost:6379/0"
		}
		return OpenRedis(ctx, dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
