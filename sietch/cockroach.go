package sietch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seb7887/lazarus/backoff"
)

const uniqueViolation = "23505"

// CockroachStore is a Store over CockroachDB (or PostgreSQL) using pgx.
// Each registered type maps to its Table with one column per `db` tag.
type CockroachStore struct {
	db       Beginner
	registry *Registry
	hooks    *HookRegistry
	logger   QueryLogger
	newID    func() string
	attempts int
	backoff  backoff.Backoff
}

var _ Store = (*CockroachStore)(nil)

// NewCockroachDBConnPool opens a connection pool
func NewCockroachDBConnPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	return pgxpool.NewWithConfig(ctx, cfg)
}

// NewCockroachStore validates every registered table and column name and
// returns a store issuing queries through db (usually a *pgxpool.Pool).
func NewCockroachStore(db Beginner, registry *Registry, opts ...Option) (*CockroachStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	for _, t := range registry.Types() {
		if err := sanitizeIdentifier(t.Table); err != nil {
			return nil, fmt.Errorf("invalid table name %q: %w", t.Table, err)
		}
		for _, col := range t.Columns() {
			if err := sanitizeIdentifier(col); err != nil {
				return nil, fmt.Errorf("invalid column name '%s': %w", col, err)
			}
		}
	}

	o := buildOptions(opts)
	return &CockroachStore{
		db:       db,
		registry: registry,
		hooks:    o.hookRegistry(),
		logger:   o.logger,
		newID:    o.newID,
		attempts: o.attempts,
		backoff:  o.backoff,
	}, nil
}

func (s *CockroachStore) Registry() *Registry { return s.registry }

func sanitizeIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_') {
			return fmt.Errorf("invalid character in identifier: %c", r)
		}
	}
	return nil
}

func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

func joinQuotedColumns(columns []string) string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdentifier(col)
	}
	return strings.Join(quoted, ", ")
}

func buildPlaceholders(n int) string {
	placeholders := make([]string, n)
	for i := 0; i < n; i++ {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(placeholders, ", ")
}

func insertSQL(t *EntityType) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdentifier(t.Table),
		joinQuotedColumns(t.Columns()),
		buildPlaceholders(len(t.Columns())),
	)
}

func selectByIDSQL(t *EntityType, forUpdate bool) string {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		joinQuotedColumns(t.Columns()),
		quoteIdentifier(t.Table),
		quoteIdentifier("id"),
	)
	if forUpdate {
		query += " FOR UPDATE"
	}
	return query
}

// updateSQL writes every column but id; id is the last argument.
func updateSQL(t *EntityType) (string, []string) {
	cols := make([]string, 0, len(t.Columns()))
	sets := make([]string, 0, len(t.Columns()))
	for _, col := range t.Columns() {
		if col == "id" {
			continue
		}
		cols = append(cols, col)
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdentifier(col), len(cols)))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
		quoteIdentifier(t.Table),
		strings.Join(sets, ", "),
		quoteIdentifier("id"),
		len(cols)+1,
	)
	return query, cols
}

// whereClause renders filter conditions with placeholders starting after offset.
func whereClause(filter *Filter, offset int) (string, []any) {
	if filter == nil || len(filter.Conditions) == 0 {
		return "", nil
	}
	var (
		parts []string
		args  []any
	)
	for _, c := range filter.Conditions {
		col := quoteIdentifier(c.Field)
		switch c.Operator {
		case OpIsNull, OpIsNotNull:
			parts = append(parts, fmt.Sprintf("%s %s", col, c.Operator))
			continue
		case OpIn:
			args = append(args, c.Value)
			parts = append(parts, fmt.Sprintf("%s = ANY($%d)", col, offset+len(args)))
			continue
		case OpNotEqual:
			args = append(args, c.Value)
			parts = append(parts, fmt.Sprintf("%s <> $%d", col, offset+len(args)))
			continue
		}
		args = append(args, c.Value)
		parts = append(parts, fmt.Sprintf("%s %s $%d", col, c.Operator, offset+len(args)))
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}

func findSQL(t *EntityType, filter *Filter) (string, []any) {
	where, args := whereClause(filter, 0)
	query := fmt.Sprintf("SELECT %s FROM %s%s",
		joinQuotedColumns(t.Columns()),
		quoteIdentifier(t.Table),
		where,
	)
	if filter != nil && len(filter.Sort) > 0 {
		order := make([]string, len(filter.Sort))
		for i, f := range filter.Sort {
			dir := f.Direction
			if dir == "" {
				dir = SortAsc
			}
			order[i] = quoteIdentifier(f.Field) + " " + string(dir)
		}
		query += " ORDER BY " + strings.Join(order, ", ")
	} else {
		query += " ORDER BY " + quoteIdentifier("id")
	}
	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return query, args
}

func countSQL(t *EntityType, filter *Filter) (string, []any) {
	where, args := whereClause(filter, 0)
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", quoteIdentifier(t.Table), where), args
}

func updateWhereSQL(t *EntityType, filter *Filter, set map[string]any) (string, []any) {
	cols := make([]string, 0, len(set))
	for col := range set {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", quoteIdentifier(col), i+1)
		args[i] = set[col]
	}
	where, whereArgs := whereClause(filter, len(cols))
	query := fmt.Sprintf("UPDATE %s SET %s%s", quoteIdentifier(t.Table), strings.Join(sets, ", "), where)
	return query, append(args, whereArgs...)
}

func incrementSQL(t *EntityType, column string) string {
	col := quoteIdentifier(column)
	return fmt.Sprintf("UPDATE %s SET %s = GREATEST(%s + $1, 0) WHERE %s = $2",
		quoteIdentifier(t.Table), col, col, quoteIdentifier("id"))
}

func stateSQL(t *EntityType) string {
	if t.SoftDeletable() {
		return fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = $1",
			quoteIdentifier(ColumnIsDeleted), quoteIdentifier(ColumnDeletedAt),
			quoteIdentifier(t.Table), quoteIdentifier("id"))
	}
	return fmt.Sprintf("SELECT false, NULL::TIMESTAMPTZ FROM %s WHERE %s = $1",
		quoteIdentifier(t.Table), quoteIdentifier("id"))
}

func (s *CockroachStore) Create(ctx context.Context, e Entity) (err error) {
	start := time.Now()
	defer func() { logOperation(s.logger, ctx, "create", e.EntityType(), start, err) }()

	t, err := s.registry.TypeOf(e)
	if err != nil {
		return err
	}
	if e.GetID() == "" {
		e.SetID(s.newID())
	}
	if err = s.hooks.ExecuteBeforeSave(ctx, e, PersistedState{}); err != nil {
		return err
	}
	values, err := valuesOf(e, t.Columns())
	if err != nil {
		return err
	}

	query := insertSQL(t)
	qStart := time.Now()
	_, err = s.queryable(ctx).Exec(ctx, query, values...)
	logQuery(s.logger, ctx, "create", query, values, qStart, err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrItemAlreadyExists, Ref(e))
		}
		return err
	}
	if hookErr := s.hooks.ExecuteAfterSave(ctx, e); hookErr != nil {
		logOperation(s.logger, ctx, "create.after_hook", t.Name, start, hookErr)
	}
	return nil
}

func (s *CockroachStore) Get(ctx context.Context, t *EntityType, id string) (Entity, error) {
	return s.get(ctx, t, id, false)
}

func (s *CockroachStore) GetForUpdate(ctx context.Context, t *EntityType, id string) (Entity, error) {
	return s.get(ctx, t, id, true)
}

func (s *CockroachStore) get(ctx context.Context, t *EntityType, id string, forUpdate bool) (Entity, error) {
	query := selectByIDSQL(t, forUpdate)
	e := t.New()
	dests, err := scanDestinations(e, t.Columns())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = s.queryable(ctx).QueryRow(ctx, query, id).Scan(dests...)
	logQuery(s.logger, ctx, "get", query, []any{id}, start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (s *CockroachStore) Find(ctx context.Context, t *EntityType, filter *Filter) ([]Entity, error) {
	if err := validateFilter(t, filter); err != nil {
		return nil, err
	}
	query, args := findSQL(t, filter)

	start := time.Now()
	rows, err := s.queryable(ctx).Query(ctx, query, args...)
	logQuery(s.logger, ctx, "find", query, args, start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Entity
	for rows.Next() {
		e := t.New()
		dests, err := scanDestinations(e, t.Columns())
		if err != nil {
			return nil, err
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func (s *CockroachStore) Count(ctx context.Context, t *EntityType, filter *Filter) (int64, error) {
	if err := validateFilter(t, filter); err != nil {
		return 0, err
	}
	query, args := countSQL(t, filter)

	var n int64
	start := time.Now()
	err := s.queryable(ctx).QueryRow(ctx, query, args...).Scan(&n)
	logQuery(s.logger, ctx, "count", query, args, start, err)
	return n, err
}

func (s *CockroachStore) Save(ctx context.Context, e Entity) (err error) {
	start := time.Now()
	defer func() { logOperation(s.logger, ctx, "save", e.EntityType(), start, err) }()

	t, err := s.registry.TypeOf(e)
	if err != nil {
		return err
	}
	q := s.queryable(ctx)

	prev := PersistedState{Exists: true}
	err = q.QueryRow(ctx, stateSQL(t), e.GetID()).Scan(&prev.Deleted, &prev.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrItemNotFound, Ref(e))
	}
	if err != nil {
		return err
	}
	if err = s.hooks.ExecuteBeforeSave(ctx, e, prev); err != nil {
		return err
	}

	query, cols := updateSQL(t)
	values, err := valuesOf(e, cols)
	if err != nil {
		return err
	}
	values = append(values, e.GetID())

	qStart := time.Now()
	tag, err := q.Exec(ctx, query, values...)
	logQuery(s.logger, ctx, "save", query, values, qStart, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoUpdateItem
	}
	if hookErr := s.hooks.ExecuteAfterSave(ctx, e); hookErr != nil {
		logOperation(s.logger, ctx, "save.after_hook", t.Name, start, hookErr)
	}
	return nil
}

func (s *CockroachStore) UpdateWhere(ctx context.Context, t *EntityType, filter *Filter, set map[string]any) (int64, error) {
	if err := validateFilter(t, filter); err != nil {
		return 0, err
	}
	if err := validateSet(t, set); err != nil {
		return 0, err
	}
	query, args := updateWhereSQL(t, filter, set)

	start := time.Now()
	tag, err := s.queryable(ctx).Exec(ctx, query, args...)
	logQuery(s.logger, ctx, "update_where", query, args, start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *CockroachStore) Increment(ctx context.Context, t *EntityType, id string, column string, delta int64) error {
	if !t.HasColumn(column) {
		return fmt.Errorf("%w: %s.%s", ErrUnknownColumn, t.Name, column)
	}
	query := incrementSQL(t, column)

	start := time.Now()
	tag, err := s.queryable(ctx).Exec(ctx, query, delta, id)
	logQuery(s.logger, ctx, "increment", query, []any{delta, id}, start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}
