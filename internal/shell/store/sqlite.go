package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/maestrohq/maestro/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Row Mapping
// =============================================================================

// templateRow represents a template row in the database.
type templateRow struct {
	Namespace   string  `db:"namespace"`
	ID          string  `db:"id"`
	Description string  `db:"description"`
	Labels      *string `db:"labels"`
	Tasks       string  `db:"tasks"`
	CreatedAt   string  `db:"created_at"`
	UpdatedAt   string  `db:"updated_at"`
}

func rowToTemplate(row *templateRow) (*domain.Template, error) {
	template := &domain.Template{
		ID:          row.ID,
		Namespace:   row.Namespace,
		Description: row.Description,
	}

	if row.Labels != nil && *row.Labels != "" {
		if err := json.Unmarshal([]byte(*row.Labels), &template.Labels); err != nil {
			return nil, NewStoreError("rowToTemplate", row.Namespace, row.ID, "failed to parse labels", ErrInvalidData)
		}
	}
	if err := json.Unmarshal([]byte(row.Tasks), &template.Tasks); err != nil {
		return nil, NewStoreError("rowToTemplate", row.Namespace, row.ID, "failed to parse tasks", ErrInvalidData)
	}

	if t, err := time.Parse(time.RFC3339Nano, row.CreatedAt); err == nil {
		template.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, row.UpdatedAt); err == nil {
		template.UpdatedAt = t
	}

	return template, nil
}

// =============================================================================
// Store Implementation
// =============================================================================

func (s *SQLiteStore) CreateTemplate(ctx context.Context, template *domain.Template) error {
	return createTemplate(ctx, s.db, template)
}

func (s *SQLiteStore) GetTemplate(ctx context.Context, namespace, id string) (*domain.Template, error) {
	return getTemplate(ctx, s.db, namespace, id)
}

func (s *SQLiteStore) UpdateTemplate(ctx context.Context, template *domain.Template) error {
	return updateTemplate(ctx, s.db, template)
}

func (s *SQLiteStore) DeleteTemplate(ctx context.Context, namespace, id string) error {
	return deleteTemplate(ctx, s.db, namespace, id)
}

func (s *SQLiteStore) ListByNamespace(ctx context.Context, namespace string) ([]domain.Template, error) {
	return listByNamespace(ctx, s.db, namespace)
}

func (s *SQLiteStore) ListDistinctNamespaces(ctx context.Context) ([]string, error) {
	return listDistinctNamespaces(ctx, s.db)
}

func (s *SQLiteStore) SearchTemplates(ctx context.Context, opts SearchOptions) ([]domain.Template, int, error) {
	return searchTemplates(ctx, s.db, opts)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateTemplate(ctx context.Context, template *domain.Template) error {
	return createTemplate(ctx, s.tx, template)
}

func (s *txSQLiteStore) GetTemplate(ctx context.Context, namespace, id string) (*domain.Template, error) {
	return getTemplate(ctx, s.tx, namespace, id)
}

func (s *txSQLiteStore) UpdateTemplate(ctx context.Context, template *domain.Template) error {
	return updateTemplate(ctx, s.tx, template)
}

func (s *txSQLiteStore) DeleteTemplate(ctx context.Context, namespace, id string) error {
	return deleteTemplate(ctx, s.tx, namespace, id)
}

func (s *txSQLiteStore) ListByNamespace(ctx context.Context, namespace string) ([]domain.Template, error) {
	return listByNamespace(ctx, s.tx, namespace)
}

func (s *txSQLiteStore) ListDistinctNamespaces(ctx context.Context) ([]string, error) {
	return listDistinctNamespaces(ctx, s.tx)
}

func (s *txSQLiteStore) SearchTemplates(ctx context.Context, opts SearchOptions) ([]domain.Template, int, error) {
	return searchTemplates(ctx, s.tx, opts)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func createTemplate(ctx context.Context, exec executor, template *domain.Template) error {
	labelsJSON, tasksJSON, err := serializeContent(template)
	if err != nil {
		return NewStoreError("CreateTemplate", template.Namespace, template.ID, err.Error(), ErrInvalidData)
	}

	query := `
		INSERT INTO templates (
			namespace, id, description, labels, tasks, created_at, updated_at
		) VALUES (
			:namespace, :id, :description, :labels, :tasks, :created_at, :updated_at
		)`

	createdAt := template.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := template.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	row := map[string]any{
		"namespace":   template.Namespace,
		"id":          template.ID,
		"description": template.Description,
		"labels":      labelsJSON,
		"tasks":       tasksJSON,
		"created_at":  createdAt.Format(time.RFC3339Nano),
		"updated_at":  updatedAt.Format(time.RFC3339Nano),
	}

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateTemplate", template.Namespace, template.ID, "template already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateTemplate", template.Namespace, template.ID, err.Error(), err)
	}

	return nil
}

func getTemplate(ctx context.Context, exec executor, namespace, id string) (*domain.Template, error) {
	query := `SELECT * FROM templates WHERE namespace = ? AND id = ?`

	var row templateRow
	err := exec.GetContext(ctx, &row, query, namespace, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetTemplate", namespace, id, "template not found", ErrNotFound)
		}
		return nil, NewStoreError("GetTemplate", namespace, id, err.Error(), err)
	}

	return rowToTemplate(&row)
}

// updateTemplate replaces the record's content. Identity and created_at are
// never touched, so the existing record keeps its creation time.
func updateTemplate(ctx context.Context, exec executor, template *domain.Template) error {
	labelsJSON, tasksJSON, err := serializeContent(template)
	if err != nil {
		return NewStoreError("UpdateTemplate", template.Namespace, template.ID, err.Error(), ErrInvalidData)
	}

	query := `
		UPDATE templates SET
			description = :description,
			labels = :labels,
			tasks = :tasks,
			updated_at = :updated_at
		WHERE namespace = :namespace AND id = :id`

	row := map[string]any{
		"namespace":   template.Namespace,
		"id":          template.ID,
		"description": template.Description,
		"labels":      labelsJSON,
		"tasks":       tasksJSON,
		"updated_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateTemplate", template.Namespace, template.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateTemplate", template.Namespace, template.ID, "template not found", ErrNotFound)
	}

	return nil
}

func deleteTemplate(ctx context.Context, exec executor, namespace, id string) error {
	query := `DELETE FROM templates WHERE namespace = ? AND id = ?`

	result, err := exec.ExecContext(ctx, query, namespace, id)
	if err != nil {
		return NewStoreError("DeleteTemplate", namespace, id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteTemplate", namespace, id, "template not found", ErrNotFound)
	}

	return nil
}

// listByNamespace enumerates a namespace ordered by id. The order is part of
// the store contract: reconciliation relies on it being stable across calls.
func listByNamespace(ctx context.Context, exec executor, namespace string) ([]domain.Template, error) {
	query := `SELECT * FROM templates WHERE namespace = ? ORDER BY id ASC`

	var rows []templateRow
	err := exec.SelectContext(ctx, &rows, query, namespace)
	if err != nil {
		return nil, NewStoreError("ListByNamespace", namespace, "", err.Error(), err)
	}

	templates := make([]domain.Template, 0, len(rows))
	for _, row := range rows {
		template, err := rowToTemplate(&row)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *template)
	}

	return templates, nil
}

func listDistinctNamespaces(ctx context.Context, exec executor) ([]string, error) {
	query := `SELECT DISTINCT namespace FROM templates ORDER BY namespace ASC`

	var namespaces []string
	err := exec.SelectContext(ctx, &namespaces, query)
	if err != nil {
		return nil, NewStoreError("ListDistinctNamespaces", "", "", err.Error(), err)
	}

	return namespaces, nil
}

func searchTemplates(ctx context.Context, exec executor, opts SearchOptions) ([]domain.Template, int, error) {
	opts = opts.Normalize()

	var where []string
	var args []any
	if opts.Query != "" {
		where = append(where, "(id LIKE ? OR description LIKE ?)")
		pattern := "%" + opts.Query + "%"
		args = append(args, pattern, pattern)
	}
	if opts.Namespace != "" {
		where = append(where, "(namespace = ? OR namespace LIKE ?)")
		args = append(args, opts.Namespace, opts.Namespace+".%")
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := exec.GetContext(ctx, &total, "SELECT COUNT(*) FROM templates"+clause, args...); err != nil {
		return nil, 0, NewStoreError("SearchTemplates", opts.Namespace, "", err.Error(), err)
	}

	query := "SELECT * FROM templates" + clause +
		" ORDER BY namespace ASC, id ASC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	var rows []templateRow
	if err := exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, NewStoreError("SearchTemplates", opts.Namespace, "", err.Error(), err)
	}

	templates := make([]domain.Template, 0, len(rows))
	for _, row := range rows {
		template, err := rowToTemplate(&row)
		if err != nil {
			return nil, 0, err
		}
		templates = append(templates, *template)
	}

	return templates, total, nil
}

// serializeContent encodes the JSON columns of a template row.
func serializeContent(template *domain.Template) (labels *string, tasks string, err error) {
	if template.Labels != nil {
		b, err := json.Marshal(template.Labels)
		if err != nil {
			return nil, "", fmt.Errorf("failed to serialize labels")
		}
		s := string(b)
		labels = &s
	}

	b, err := json.Marshal(template.Tasks)
	if err != nil {
		return nil, "", fmt.Errorf("failed to serialize tasks")
	}
	return labels, string(b), nil
}
