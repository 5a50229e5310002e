package repo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when no row matches the lookup
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert violates a unique constraint
	ErrConflict = errors.New("record already exists")
)

// uniqueViolation is the postgres SQLSTATE for unique_violation
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// setClause accumulates "col = $n" fragments and their arguments for partial updates
type setClause struct {
	parts []string
	args  []any
}

func (s *setClause) set(column string, value any) {
	s.args = append(s.args, value)
	s.parts = append(s.parts, fmt.Sprintf("%s = $%d", column, len(s.args)))
}

func (s *setClause) raw(fragment string) {
	s.parts = append(s.parts, fragment)
}

func (s *setClause) String() string {
	return strings.Join(s.parts, ", ")
}

// where appends the key argument and returns its placeholder
func (s *setClause) where(value any) string {
	s.args = append(s.args, value)
	return fmt.Sprintf("$%d", len(s.args))
}
