package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

// dialect captures the few places where SQLite and PostgreSQL disagree.
type dialect struct {
	driver string
	// schema creates the images table if it is missing.
	schema string
	// numbered placeholders ($1, $2, ...) instead of '?'
	numbered bool
}

var sqliteDialect = dialect{
	driver: "sqlite",
	schema: `CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		data TEXT NOT NULL,
		selected BOOLEAN NOT NULL DEFAULT FALSE,
		selected_count INTEGER NOT NULL DEFAULT 0,
		group_id INTEGER NOT NULL DEFAULT 0,
		"timestamp" TEXT NOT NULL
	)`,
}

// timestamp is quoted because PostgreSQL treats it as a keyword.
const imageColumns = `id, name, data, selected, selected_count, group_id, "timestamp"`

// SQLDatabase is the relational ImageStore shared by the SQLite and PostgreSQL backends.
type SQLDatabase struct {
	db      *sql.DB
	dialect dialect
}

func NewSQLiteDatabase(connectionString string) (*SQLDatabase, error) {
	db, err := sql.Open(sqliteDialect.driver, connectionString)
	if err != nil {
		return nil, err
	}
	// Every connection to ":memory:" opens a fresh database.
	if strings.Contains(connectionString, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	return &SQLDatabase{
		db:      db,
		dialect: sqliteDialect,
	}, nil
}

// rebind rewrites '?' placeholders for dialects that number them.
func (s *SQLDatabase) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (s *SQLDatabase) CreateDatabase(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.dialect.schema)
	return err
}

func (s *SQLDatabase) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*Image, error) {
	var img Image
	if err := row.Scan(&img.ID, &img.Name, &img.Data, &img.Selected, &img.SelectedCount, &img.GroupID, &img.Timestamp); err != nil {
		return nil, err
	}
	return &img, nil
}

func (s *SQLDatabase) GetAllImages(ctx context.Context) ([]*Image, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+imageColumns+" FROM images ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	images := []*Image{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *SQLDatabase) GetImage(ctx context.Context, id int64) (*Image, error) {
	row := s.db.QueryRowContext(ctx, s.rebind("SELECT "+imageColumns+" FROM images WHERE id = ?"), id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrImageNotFound
	}
	return img, err
}

func (s *SQLDatabase) CreateImages(ctx context.Context, images []NewImage) ([]*Image, error) {
	if len(images) == 0 {
		return []*Image{}, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	query := s.rebind(`INSERT INTO images (name, data, selected, selected_count, group_id, "timestamp") VALUES (?, ?, FALSE, 0, 0, ?) RETURNING ` + imageColumns)
	created := make([]*Image, 0, len(images))
	for _, in := range images {
		img, err := scanImage(tx.QueryRowContext(ctx, query, in.Name, in.Data, in.Timestamp))
		if err != nil {
			return nil, fmt.Errorf("failed to insert image %q: %w", in.Name, err)
		}
		created = append(created, img)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return created, nil
}

func (s *SQLDatabase) SelectImage(ctx context.Context, id int64, groupID int, quota int) (*Image, error) {
	// The quota guard lives in the WHERE clause, making the check-and-set a single statement.
	query := s.rebind(`UPDATE images
		SET selected_count = selected_count + 1, selected = TRUE, group_id = ?, "timestamp" = ?
		WHERE id = ? AND selected_count < ?
		RETURNING ` + imageColumns)
	img, err := scanImage(s.db.QueryRowContext(ctx, query, groupID, Now(), id, quota))
	if errors.Is(err, sql.ErrNoRows) {
		// Either unknown or already at quota.
		return s.GetImage(ctx, id)
	}
	return img, err
}

func (s *SQLDatabase) DeleteImage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM images WHERE id = ?"), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrImageNotFound
	}
	return nil
}

func (s *SQLDatabase) ResetImages(ctx context.Context, policy ResetPolicy) error {
	var err error
	switch policy {
	case ResetDelete:
		_, err = s.db.ExecContext(ctx, "DELETE FROM images")
	case ResetClear:
		_, err = s.db.ExecContext(ctx, "UPDATE images SET selected = FALSE, selected_count = 0, group_id = 0")
	default:
		return errInvalidResetPolicy(policy)
	}
	return err
}
