package persistence

import "fmt"

// Open picks the implementation for driver: "none" keeps records in
// memory, "gorm" and "pq" talk to PostgreSQL.
func Open(driver, dsn string) (Database, error) {
	switch driver {
	case "", "none", "memory":
		return NewMemory(0), nil
	case "gorm":
		return NewGormPostgreSQL(dsn)
	case "pq":
		return NewPostgreSQL(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
