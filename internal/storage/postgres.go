package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/leaksopan/SnapMe-sub000/internal/models"
)

// PostgresStorage implements RecordStore for PostgreSQL
type PostgresStorage struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

// Connect establishes connection to PostgreSQL
func Connect(connectionString string, logger logrus.FieldLogger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("[DB] connected to PostgreSQL")
	return NewPostgresStorage(db, logger), nil
}

func NewPostgresStorage(db *sql.DB, logger logrus.FieldLogger) *PostgresStorage {
	return &PostgresStorage{db: db, logger: logger}
}

func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStorage) Close() error {
	return p.db.Close()
}

const folderColumns = `id, customer_name, customer_phone, COALESCE(customer_email, ''), COALESCE(package_name, ''),
    status, photo_count, total_size, folder_path, folder_name, COALESCE(transaction_id, ''),
    created_at, updated_at, claimed_at, expired_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFolder(row rowScanner) (models.PhotoFolder, error) {
	var (
		f         models.PhotoFolder
		claimedAt sql.NullTime
		expiredAt sql.NullTime
	)
	err := row.Scan(
		&f.ID,
		&f.CustomerName,
		&f.CustomerPhone,
		&f.CustomerEmail,
		&f.PackageName,
		&f.Status,
		&f.PhotoCount,
		&f.TotalSize,
		&f.FolderPath,
		&f.FolderName,
		&f.TransactionID,
		&f.CreatedAt,
		&f.UpdatedAt,
		&claimedAt,
		&expiredAt,
	)
	if err != nil {
		return models.PhotoFolder{}, err
	}
	if claimedAt.Valid {
		t := claimedAt.Time
		f.ClaimedAt = &t
	}
	if expiredAt.Valid {
		t := expiredAt.Time
		f.ExpiredAt = &t
	}
	return f, nil
}

func (p *PostgresStorage) CreateFolder(ctx context.Context, f *models.PhotoFolder) error {
	query := `
    INSERT INTO photo_folders (id, customer_name, customer_phone, customer_email, package_name, status,
        photo_count, total_size, folder_path, folder_name, transaction_id, created_at, updated_at)
    VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13)
    `
	_, err := p.db.ExecContext(ctx, query,
		f.ID,
		f.CustomerName,
		f.CustomerPhone,
		f.CustomerEmail,
		f.PackageName,
		f.Status,
		f.PhotoCount,
		f.TotalSize,
		f.FolderPath,
		f.FolderName,
		f.TransactionID,
		f.CreatedAt,
		f.UpdatedAt,
	)
	return err
}

// validID reports whether id can name a row. Ids are UUID columns, so any
// other string cannot match and is treated as not found.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (p *PostgresStorage) GetFolder(ctx context.Context, id string) (*models.PhotoFolder, error) {
	if !validID(id) {
		return nil, models.ErrNotFound
	}
	row := p.db.QueryRowContext(ctx, `SELECT `+folderColumns+` FROM photo_folders WHERE id = $1`, id)
	f, err := scanFolder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &f, nil
}

// escapeLike escapes LIKE wildcards so user input only matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func folderWhere(q models.FolderQuery) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if term := strings.TrimSpace(q.Term); term != "" {
		column := "customer_phone"
		if q.Mode == models.SearchByName {
			column = "customer_name"
		}
		args = append(args, "%"+escapeLike(term)+"%")
		clauses = append(clauses, fmt.Sprintf(`%s ILIKE $%d ESCAPE '\'`, column, len(args)))
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (p *PostgresStorage) SearchFolders(ctx context.Context, q models.FolderQuery) ([]models.PhotoFolder, error) {
	where, args := folderWhere(q)
	query := `SELECT ` + folderColumns + ` FROM photo_folders` + where + ` ORDER BY created_at DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit, q.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	return p.queryFolders(ctx, query, args...)
}

func (p *PostgresStorage) CountFolders(ctx context.Context, q models.FolderQuery) (int64, error) {
	where, args := folderWhere(q)
	var total int64
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM photo_folders`+where, args...).Scan(&total)
	return total, err
}

func (p *PostgresStorage) queryFolders(ctx context.Context, query string, args ...any) ([]models.PhotoFolder, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		if cerr := rows.Close(); cerr != nil {
			p.logger.Warnf("[DB] error closing rows: %v", cerr)
		}
	}(rows)

	folders := []models.PhotoFolder{}
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func (p *PostgresStorage) SetStatus(ctx context.Context, id string, from models.FolderStatus, change StatusChange) (bool, error) {
	if !validID(id) {
		return false, models.ErrNotFound
	}
	query := `
    UPDATE photo_folders
    SET status = $1,
        claimed_at = $2,
        expired_at = $3,
        updated_at = $4
    WHERE id = $5 AND status = $6
    `
	result, err := p.db.ExecContext(ctx, query,
		change.Status,
		nullTime(change.ClaimedAt),
		nullTime(change.ExpiredAt),
		change.UpdatedAt,
		id,
		from,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}
	if _, err := p.GetFolder(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (p *PostgresStorage) RefreshAggregates(ctx context.Context, id string) (models.FolderAggregates, error) {
	if !validID(id) {
		return models.FolderAggregates{}, models.ErrNotFound
	}
	query := `
    UPDATE photo_folders f
    SET photo_count = agg.cnt,
        total_size = agg.total,
        updated_at = NOW()
    FROM (
        SELECT COUNT(*) AS cnt, COALESCE(SUM(file_size), 0) AS total
        FROM photos WHERE folder_id = $1
    ) agg
    WHERE f.id = $1
    RETURNING f.photo_count, f.total_size
    `
	var agg models.FolderAggregates
	err := p.db.QueryRowContext(ctx, query, id).Scan(&agg.PhotoCount, &agg.TotalSize)
	if errors.Is(err, sql.ErrNoRows) {
		return agg, models.ErrNotFound
	}
	return agg, err
}

func (p *PostgresStorage) DeleteFolder(ctx context.Context, id string) error {
	if !validID(id) {
		return models.ErrNotFound
	}
	result, err := p.db.ExecContext(ctx, `DELETE FROM photo_folders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *PostgresStorage) ListClaimedBefore(ctx context.Context, cutoff time.Time) ([]models.PhotoFolder, error) {
	return p.queryFolders(ctx,
		`SELECT `+folderColumns+` FROM photo_folders WHERE status = 'claimed' AND claimed_at < $1 ORDER BY claimed_at`,
		cutoff)
}

func (p *PostgresStorage) ListReadyCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.PhotoFolder, error) {
	return p.queryFolders(ctx,
		`SELECT `+folderColumns+` FROM photo_folders WHERE status = 'ready' AND created_at < $1 ORDER BY created_at`,
		cutoff)
}

func (p *PostgresStorage) ListExpiredWithPhotos(ctx context.Context) ([]models.PhotoFolder, error) {
	return p.queryFolders(ctx,
		`SELECT `+folderColumns+` FROM photo_folders WHERE status = 'expired' AND photo_count > 0 ORDER BY expired_at`)
}

const photoColumns = `id, folder_id, file_name, file_path, COALESCE(thumbnail_path, ''), content_type,
    file_size, download_count, created_at`

func scanPhoto(row rowScanner) (models.Photo, error) {
	var ph models.Photo
	err := row.Scan(
		&ph.ID,
		&ph.FolderID,
		&ph.FileName,
		&ph.FilePath,
		&ph.ThumbnailPath,
		&ph.ContentType,
		&ph.FileSize,
		&ph.DownloadCount,
		&ph.CreatedAt,
	)
	return ph, err
}

func (p *PostgresStorage) CreatePhoto(ctx context.Context, ph *models.Photo) error {
	if !validID(ph.FolderID) {
		return models.ErrNotFound
	}
	query := `
    INSERT INTO photos (id, folder_id, file_name, file_path, thumbnail_path, content_type, file_size, download_count, created_at)
    VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
    `
	_, err := p.db.ExecContext(ctx, query,
		ph.ID,
		ph.FolderID,
		ph.FileName,
		ph.FilePath,
		ph.ThumbnailPath,
		ph.ContentType,
		ph.FileSize,
		ph.DownloadCount,
		ph.CreatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
		return models.ErrNotFound
	}
	return err
}

func (p *PostgresStorage) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	if !validID(id) {
		return nil, models.ErrNotFound
	}
	ph, err := scanPhoto(p.db.QueryRowContext(ctx, `SELECT `+photoColumns+` FROM photos WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &ph, nil
}

func (p *PostgresStorage) ListPhotos(ctx context.Context, folderID string) ([]models.Photo, error) {
	if !validID(folderID) {
		return []models.Photo{}, nil
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE folder_id = $1 ORDER BY created_at, file_name`, folderID)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		if cerr := rows.Close(); cerr != nil {
			p.logger.Warnf("[DB] error closing rows: %v", cerr)
		}
	}(rows)

	photos := []models.Photo{}
	for rows.Next() {
		ph, err := scanPhoto(rows)
		if err != nil {
			return nil, err
		}
		photos = append(photos, ph)
	}
	return photos, rows.Err()
}

func (p *PostgresStorage) IncrementDownloadCount(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE photos SET download_count = download_count + 1 WHERE id = ANY($1)`, pq.Array(ids))
	return err
}

func (p *PostgresStorage) DeletePhoto(ctx context.Context, id string) error {
	if !validID(id) {
		return models.ErrNotFound
	}
	result, err := p.db.ExecContext(ctx, `DELETE FROM photos WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *PostgresStorage) DeleteFolderPhotos(ctx context.Context, folderID string) (int, error) {
	if !validID(folderID) {
		return 0, nil
	}
	result, err := p.db.ExecContext(ctx, `DELETE FROM photos WHERE folder_id = $1`, folderID)
	if err != nil {
		return 0, err
	}
	count, _ := result.RowsAffected()
	return int(count), nil
}
