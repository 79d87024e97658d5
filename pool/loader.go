package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"gopkg.in/yaml.v3"

	"github.com/wfunc/bingoserver/models"
)

// LoadFile reads a JSON or YAML seed list, chosen by file extension.
func LoadFile(path string) (*Pool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var numbers []models.CalledNumber
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &numbers)
	case ".json":
		err = json.Unmarshal(data, &numbers)
	default:
		return nil, fmt.Errorf("unsupported pool file %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("parse pool file %s: %w", path, err)
	}
	return New(numbers)
}

const selectNumbers = `SELECT value, category FROM bingo_numbers ORDER BY value`

// LoadPostgres reads the seed list from the bingo_numbers table.
func LoadPostgres(ctx context.Context, dsn string) (*Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(ctx, selectNumbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var numbers []models.CalledNumber
	for rows.Next() {
		var n models.CalledNumber
		if err := rows.Scan(&n.Value, &n.Category); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return New(numbers)
}
