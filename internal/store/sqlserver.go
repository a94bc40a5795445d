package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
)

// SQLServerStore implements Store against MS SQL Server. Model names map to
// table names through the tables map supplied at open time; write failures
// are translated into the typed WriteError contract so the engine never has
// to look at driver errors.
type SQLServerStore struct {
	q      querier
	db     *sql.DB
	tables map[string]string
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// OpenSQLServer connects and pings the server before returning.
func OpenSQLServer(connString string, tables map[string]string) (*SQLServerStore, error) {
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, fmt.Errorf("error opening SQL database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to SQL database (ping failed): %w", err)
	}

	return &SQLServerStore{q: db, db: db, tables: tables}, nil
}

// NewSQLServerStore wraps an existing connection. Used by tests.
func NewSQLServerStore(db *sql.DB, tables map[string]string) *SQLServerStore {
	return &SQLServerStore{q: db, db: db, tables: tables}
}

func (s *SQLServerStore) Close() error { return s.db.Close() }

func (s *SQLServerStore) table(model string) string {
	if t, ok := s.tables[model]; ok {
		return t
	}
	return model
}

func (s *SQLServerStore) FindFirst(ctx context.Context, model string, where map[string]any) (Record, error) {
	rows, err := s.FindMany(ctx, model, where)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

func (s *SQLServerStore) FindMany(ctx context.Context, model string, where map[string]any) ([]Record, error) {
	clause, args := whereClause(where)
	query := fmt.Sprintf("SELECT * FROM [%s]%s", s.table(model), clause)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", model, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(Record, len(cols))
		for i, col := range cols {
			if b, ok := vals[i].([]byte); ok {
				m[col] = string(b)
			} else {
				m[col] = vals[i]
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Upsert follows the check-then-write pattern: probe for the row by its
// where clause, then UPDATE or INSERT. Callers run it inside Transact when
// atomicity across a batch is required.
func (s *SQLServerStore) Upsert(ctx context.Context, model string, p UpsertPayload) (UpsertResult, error) {
	clause, args := whereClause(p.Where)
	checkQuery := fmt.Sprintf("SELECT 1 FROM [%s]%s", s.table(model), clause)

	var one int
	err := s.q.QueryRowContext(ctx, checkQuery, args...).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		if err := s.insertRow(ctx, model, p); err != nil {
			return UpsertResult{}, s.classify(model, err)
		}
		return UpsertResult{Record: merged(p.Where, p.Create), Created: true}, nil
	case err == nil:
		if err := s.updateRow(ctx, model, p); err != nil {
			return UpsertResult{}, s.classify(model, err)
		}
		return UpsertResult{Record: merged(p.Where, p.Update)}, nil
	default:
		return UpsertResult{}, s.classify(model, fmt.Errorf("error checking row existence: %w", err))
	}
}

func (s *SQLServerStore) Transact(ctx context.Context, fn func(tx Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txStore := &SQLServerStore{q: tx, db: s.db, tables: s.tables}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLServerStore) insertRow(ctx context.Context, model string, p UpsertPayload) error {
	row := merged(p.Where, p.Create)
	cols := sortedKeys(row)

	names := make([]string, 0, len(cols))
	placeholders := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		names = append(names, "["+col+"]")
		placeholders = append(placeholders, fmt.Sprintf("@p%d", len(args)+1))
		args = append(args, row[col])
	}

	query := fmt.Sprintf("INSERT INTO [%s] (%s) VALUES (%s)",
		s.table(model), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	_, err := s.q.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLServerStore) updateRow(ctx context.Context, model string, p UpsertPayload) error {
	if len(p.Update) == 0 {
		return nil
	}
	cols := sortedKeys(p.Update)

	sets := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+len(p.Where))
	for _, col := range cols {
		sets = append(sets, fmt.Sprintf("[%s] = @p%d", col, len(args)+1))
		args = append(args, p.Update[col])
	}

	conds := make([]string, 0, len(p.Where))
	for _, col := range sortedKeys(p.Where) {
		conds = append(conds, fmt.Sprintf("[%s] = @p%d", col, len(args)+1))
		args = append(args, p.Where[col])
	}

	query := fmt.Sprintf("UPDATE [%s] SET %s WHERE %s",
		s.table(model), strings.Join(sets, ", "), strings.Join(conds, " AND "))
	_, err := s.q.ExecContext(ctx, query, args...)
	return err
}

// SQL Server error numbers for the two recoverable write failures.
const (
	errArithmeticOverflow    = 8115 // arithmetic overflow converting to data type
	errArithmeticOverflowFor = 220  // arithmetic overflow for data type
	errConversionFailed      = 245  // conversion failed converting varchar value
	errConvertDataType       = 8114 // error converting data type X to Y
)

var (
	columnRe   = regexp.MustCompile(`column '([^']+)'`)
	dataTypeRe = regexp.MustCompile(`data type (\w+)`)
)

// classify maps a driver error onto the WriteError taxonomy. Field metadata
// is extracted from the server message when present; when it is not, the
// FieldTypes map stays empty and the recovery executor gives up on that
// record, which matches the original best-effort behavior.
func (s *SQLServerStore) classify(model string, err error) error {
	var se mssql.Error
	if !asMSSQLError(err, &se) {
		return &WriteError{Kind: WriteUnknown, Model: model, Err: err}
	}

	switch se.Number {
	case errArithmeticOverflow, errArithmeticOverflowFor:
		return &WriteError{Kind: WriteOverflow, Model: model, Err: err}
	case errConversionFailed, errConvertDataType:
		return &WriteError{
			Kind:       WriteTypeMismatch,
			Model:      model,
			FieldTypes: fieldTypesFromMessage(se.Message),
			Err:        err,
		}
	default:
		return &WriteError{Kind: WriteUnknown, Model: model, Err: err}
	}
}

func asMSSQLError(err error, target *mssql.Error) bool {
	for err != nil {
		if se, ok := err.(mssql.Error); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func fieldTypesFromMessage(msg string) map[string]FieldType {
	col := columnRe.FindStringSubmatch(msg)
	typ := dataTypeRe.FindStringSubmatch(msg)
	if col == nil || typ == nil {
		return nil
	}
	ft, ok := sqlTypeToFieldType(typ[1])
	if !ok {
		return nil
	}
	return map[string]FieldType{col[1]: ft}
}

func sqlTypeToFieldType(sqlType string) (FieldType, bool) {
	switch strings.ToLower(sqlType) {
	case "int", "bigint", "smallint", "tinyint":
		return FieldInt, true
	case "float", "real":
		return FieldFloat, true
	case "numeric", "decimal", "money", "smallmoney":
		return FieldDecimal, true
	default:
		return 0, false
	}
}

func whereClause(where map[string]any) (string, []any) {
	if len(where) == 0 {
		return "", nil
	}
	conds := make([]string, 0, len(where))
	args := make([]any, 0, len(where))
	for _, col := range sortedKeys(where) {
		conds = append(conds, fmt.Sprintf("[%s] = @p%d", col, len(args)+1))
		args = append(args, where[col])
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func merged(where, fields map[string]any) Record {
	out := make(Record, len(where)+len(fields))
	for k, v := range fields {
		out[k] = v
	}
	for k, v := range where {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
