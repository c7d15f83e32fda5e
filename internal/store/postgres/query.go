package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

const uniqueViolation = "23505"

// listQuery accumulates WHERE clauses and positional arguments.
type listQuery struct {
	sb   strings.Builder
	args []any
}

func newListQuery(base string) *listQuery {
	q := &listQuery{}
	q.sb.WriteString(base)
	q.sb.WriteString(" WHERE 1=1")
	return q
}

// where appends "AND <clause>" with clause's single %s replaced by the next
// placeholder.
func (q *listQuery) where(clause string, arg any) {
	q.args = append(q.args, arg)
	fmt.Fprintf(&q.sb, " AND "+clause, fmt.Sprintf("$%d", len(q.args)))
}

// window applies the time bounds, ordering and paging of opts.
func (q *listQuery) window(opts domain.ListOpts, column, order string) {
	if opts.Since != nil {
		q.where(column+" >= %s", *opts.Since)
	}
	if opts.Until != nil {
		q.where(column+" <= %s", *opts.Until)
	}
	fmt.Fprintf(&q.sb, " ORDER BY %s %s", column, order)
	if opts.Limit > 0 {
		q.args = append(q.args, opts.Limit)
		fmt.Fprintf(&q.sb, " LIMIT $%d", len(q.args))
	}
	if opts.Offset > 0 {
		q.args = append(q.args, opts.Offset)
		fmt.Fprintf(&q.sb, " OFFSET $%d", len(q.args))
	}
}

func (q *listQuery) String() string { return q.sb.String() }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
