package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/Simoroui/autotech-file-service-sub001/internal/apperrors"
	"github.com/Simoroui/autotech-file-service-sub001/internal/models"
)

// PostgresStorage keeps file records as one row per file with JSONB columns
// for the history, options and discussion thread. Appends use `col || $x` so
// concurrent writers never lose each other's entries.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

const fileColumns = `id, owner_id, vehicle, status, status_history, options, total_credits,
    credits_mismatch, original_name, original_file_path, size, modified_file_path,
    modified_name, modified_uploaded_at, scan_status, discussion_comments, created_at, updated_at`

// NewPostgresStorage opens and pings the database. Schema is managed by Migrate.
func NewPostgresStorage(connectionString string, logger *zap.Logger) (*PostgresStorage, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	logger.Info("connected to PostgreSQL")
	return &PostgresStorage{db: db, logger: logger.Named("postgres")}, nil
}

func (p *PostgresStorage) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresStorage) Close() error {
	return p.db.Close()
}

func upstream(err error, msg string) error {
	return apperrors.Wrap(apperrors.KindUpstream, err, msg)
}

// errFileNotFound is also returned for ids that aren't UUIDs; postgres would
// reject them with a syntax error instead.
func errFileNotFound() error {
	return apperrors.New(apperrors.KindNotFound, "file not found")
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFileRecord(row rowScanner) (*models.FileRecord, error) {
	var (
		rec                                 models.FileRecord
		vehicle, history, options, comments []byte
		modifiedPath, modifiedName          sql.NullString
		modifiedAt                          sql.NullTime
		status, scanStatus                  string
	)
	err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&vehicle,
		&status,
		&history,
		&options,
		&rec.TotalCredits,
		&rec.CreditsMismatch,
		&rec.FileInfo.OriginalName,
		&rec.FileInfo.OriginalFilePath,
		&rec.FileInfo.Size,
		&modifiedPath,
		&modifiedName,
		&modifiedAt,
		&scanStatus,
		&comments,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = models.FileStatus(status)
	rec.ScanStatus = models.ScanStatus(scanStatus)
	rec.FileInfo.ModifiedFilePath = modifiedPath.String
	rec.FileInfo.ModifiedName = modifiedName.String
	if modifiedAt.Valid {
		t := modifiedAt.Time
		rec.FileInfo.ModifiedUploadedAt = &t
	}
	if err := json.Unmarshal(vehicle, &rec.Vehicle); err != nil {
		return nil, fmt.Errorf("decode vehicle: %w", err)
	}
	if err := json.Unmarshal(history, &rec.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode status history: %w", err)
	}
	if err := json.Unmarshal(options, &rec.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal(comments, &rec.DiscussionComments); err != nil {
		return nil, fmt.Errorf("decode comments: %w", err)
	}
	return &rec, nil
}

func (p *PostgresStorage) CreateFile(ctx context.Context, rec *models.FileRecord) error {
	vehicle, err := json.Marshal(rec.Vehicle)
	if err != nil {
		return err
	}
	history, err := json.Marshal(nonNil(rec.StatusHistory))
	if err != nil {
		return err
	}
	options, err := json.Marshal(rec.Options)
	if err != nil {
		return err
	}
	comments, err := json.Marshal(nonNil(rec.DiscussionComments))
	if err != nil {
		return err
	}

	query := `
    INSERT INTO ecu_files (id, owner_id, vehicle, status, status_history, options, total_credits,
        credits_mismatch, original_name, original_file_path, size, scan_status,
        discussion_comments, created_at, updated_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `
	_, err = p.db.ExecContext(ctx, query,
		rec.ID,
		rec.OwnerID,
		vehicle,
		string(rec.Status),
		history,
		options,
		rec.TotalCredits,
		rec.CreditsMismatch,
		rec.FileInfo.OriginalName,
		rec.FileInfo.OriginalFilePath,
		rec.FileInfo.Size,
		string(rec.ScanStatus),
		comments,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return upstream(err, "failed to save file record")
	}
	return nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func (p *PostgresStorage) GetFile(ctx context.Context, fileID string) (*models.FileRecord, error) {
	if !isUUID(fileID) {
		return nil, errFileNotFound()
	}
	query := `SELECT ` + fileColumns + ` FROM ecu_files WHERE id = $1`
	rec, err := scanFileRecord(p.db.QueryRowContext(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errFileNotFound()
		}
		return nil, upstream(err, "failed to load file record")
	}
	return rec, nil
}

func (p *PostgresStorage) ListFiles(ctx context.Context, filter models.FileFilter) ([]models.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM ecu_files
    WHERE ($1 = '' OR owner_id = $1) AND ($2 = '' OR status = $2)
    ORDER BY created_at DESC`
	args := []any{filter.OwnerID, string(filter.Status)}
	if filter.Limit > 0 {
		query += ` LIMIT $3 OFFSET $4`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, upstream(err, "failed to list files")
	}
	defer func(rows *sql.Rows) {
		if cerr := rows.Close(); cerr != nil {
			p.logger.Warn("error closing rows", zap.Error(cerr))
		}
	}(rows)

	files := make([]models.FileRecord, 0)
	for rows.Next() {
		rec, err := scanFileRecord(rows)
		if err != nil {
			return nil, upstream(err, "failed to read file row")
		}
		files = append(files, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream(err, "failed to list files")
	}
	return files, nil
}

// updateReturning runs an UPDATE ... RETURNING on one file row.
func (p *PostgresStorage) updateReturning(ctx context.Context, set string, fileID string, args ...any) (*models.FileRecord, error) {
	if !isUUID(fileID) {
		return nil, errFileNotFound()
	}
	query := `UPDATE ecu_files SET ` + set + ` WHERE id = $1 RETURNING ` + fileColumns
	rec, err := scanFileRecord(p.db.QueryRowContext(ctx, query, append([]any{fileID}, args...)...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errFileNotFound()
		}
		return nil, upstream(err, "failed to update file record")
	}
	return rec, nil
}

func (p *PostgresStorage) AppendStatus(ctx context.Context, fileID string, expected models.FileStatus, entry models.StatusEntry) (*models.FileRecord, error) {
	item, err := json.Marshal([]models.StatusEntry{entry})
	if err != nil {
		return nil, err
	}
	if expected == "" {
		return p.updateReturning(ctx,
			`status = $2, status_history = status_history || $3::jsonb, updated_at = $4`,
			fileID, string(entry.Status), item, entry.Timestamp,
		)
	}
	if !isUUID(fileID) {
		return nil, errFileNotFound()
	}
	query := `UPDATE ecu_files SET status = $2, status_history = status_history || $3::jsonb, updated_at = $4
		WHERE id = $1 AND status = $5 RETURNING ` + fileColumns
	rec, err := scanFileRecord(p.db.QueryRowContext(ctx, query,
		fileID, string(entry.Status), item, entry.Timestamp, string(expected)))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, upstream(err, "failed to update file record")
	}
	// Zero rows: either the file is gone or someone moved it first.
	if _, err := p.GetFile(ctx, fileID); err != nil {
		return nil, err
	}
	return nil, errStatusChanged(expected)
}

func (p *PostgresStorage) AppendComment(ctx context.Context, fileID string, comment models.Comment) (*models.FileRecord, error) {
	item, err := json.Marshal([]models.Comment{comment})
	if err != nil {
		return nil, err
	}
	return p.updateReturning(ctx,
		`discussion_comments = discussion_comments || $2::jsonb, updated_at = $3`,
		fileID, item, comment.CreatedAt,
	)
}

func (p *PostgresStorage) SetModifiedFile(ctx context.Context, fileID, objectName, name string, at time.Time) (*models.FileRecord, error) {
	return p.updateReturning(ctx,
		`modified_file_path = $2, modified_name = $3, modified_uploaded_at = $4, updated_at = $4`,
		fileID, objectName, name, at,
	)
}

func (p *PostgresStorage) UpdateScanStatus(ctx context.Context, fileID string, status models.ScanStatus) error {
	if !isUUID(fileID) {
		return errFileNotFound()
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE ecu_files SET scan_status = $1, updated_at = NOW() WHERE id = $2`,
		string(status), fileID,
	)
	if err != nil {
		return upstream(err, "failed to update scan status")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errFileNotFound()
	}
	return nil
}

func (p *PostgresStorage) CreateNotification(ctx context.Context, n *models.Notification) error {
	var fileID any
	if n.FileID != "" {
		fileID = n.FileID
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO notifications (id, user_id, type, message, file_id, read, created_at)
         VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserID, string(n.Type), n.Message, fileID, n.Read, n.CreatedAt,
	)
	if err != nil {
		return upstream(err, "failed to save notification")
	}
	return nil
}

func (p *PostgresStorage) ListNotifications(ctx context.Context, userID string) ([]models.Notification, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, user_id, type, message, file_id, read, created_at
         FROM notifications WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, upstream(err, "failed to list notifications")
	}
	defer func(rows *sql.Rows) {
		if cerr := rows.Close(); cerr != nil {
			p.logger.Warn("error closing rows", zap.Error(cerr))
		}
	}(rows)

	out := make([]models.Notification, 0)
	for rows.Next() {
		var (
			n      models.Notification
			typ    string
			fileID sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.UserID, &typ, &n.Message, &fileID, &n.Read, &n.CreatedAt); err != nil {
			return nil, upstream(err, "failed to read notification row")
		}
		n.Type = models.NotificationType(typ)
		n.FileID = fileID.String
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, upstream(err, "failed to list notifications")
	}
	return out, nil
}

func (p *PostgresStorage) execOwned(ctx context.Context, query, userID, notificationID string) error {
	if !isUUID(notificationID) {
		return apperrors.New(apperrors.KindNotFound, "notification not found")
	}
	res, err := p.db.ExecContext(ctx, query, notificationID, userID)
	if err != nil {
		return upstream(err, "failed to update notification")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.New(apperrors.KindNotFound, "notification not found")
	}
	return nil
}

func (p *PostgresStorage) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	return p.execOwned(ctx, `UPDATE notifications SET read = true WHERE id = $1 AND user_id = $2`, userID, notificationID)
}

func (p *PostgresStorage) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE notifications SET read = true WHERE user_id = $1 AND NOT read`, userID)
	if err != nil {
		return 0, upstream(err, "failed to mark notifications read")
	}
	return res.RowsAffected()
}

func (p *PostgresStorage) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	return p.execOwned(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, userID, notificationID)
}

func (p *PostgresStorage) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID).Scan(&count)
	if err != nil {
		return 0, upstream(err, "failed to count notifications")
	}
	return count, nil
}

func (p *PostgresStorage) DeleteNotificationsForUser(ctx context.Context, userID string) (int64, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM notifications WHERE user_id = $1`, userID)
	if err != nil {
		return 0, upstream(err, "failed to delete notifications")
	}
	return res.RowsAffected()
}

func (p *PostgresStorage) UpsertProfile(ctx context.Context, userID, displayName string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO user_profiles (user_id, display_name, updated_at) VALUES ($1, $2, NOW())
         ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name, updated_at = NOW()
         WHERE user_profiles.display_name <> EXCLUDED.display_name`,
		userID, displayName,
	)
	if err != nil {
		return upstream(err, "failed to save profile")
	}
	return nil
}

func (p *PostgresStorage) DisplayName(ctx context.Context, userID string) (string, error) {
	var name string
	err := p.db.QueryRowContext(ctx, `SELECT display_name FROM user_profiles WHERE user_id = $1`, userID).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperrors.New(apperrors.KindNotFound, "user not found")
		}
		return "", upstream(err, "failed to load profile")
	}
	return name, nil
}
