package sqlite

import (
	"errors"
	"strings"
)

var ErrNotFound = errors.New("record not found")

// Scannable is satisfied by *sql.Row and *sql.Rows.
type Scannable interface {
	Scan(dest ...any) error
}

// GenerateParameters returns a placeholder group like "(?, ?, ?)".
func GenerateParameters(n int) string {
	if n <= 0 {
		return "()"
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}
