package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/relink/relink/internal/model"
)

// Common errors for link store operations.
var (
	ErrLinkNotFound  = errors.New("link not found")
	ErrCodeExists    = errors.New("short code already exists")
	ErrInvalidCursor = errors.New("invalid pagination cursor")
)

// LinkFilter defines filters for listing links.
// Zero-valued fields are ignored.
type LinkFilter struct {
	OwnerID       string
	Enabled       *bool
	Tag           string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	MinClicks     *int64
	MaxClicks     *int64
}

// PaginationCursor represents a decoded keyset-pagination cursor.
type PaginationCursor struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

const linkColumns = `id, short_code, destination, owner_id, enabled, expires_at, tags, deleted_at, click_count, created_at, updated_at`

// CreateLink inserts a new link. Returns ErrCodeExists when the short
// code is already taken; callers regenerate and retry.
func (s *Store) CreateLink(ctx context.Context, link *model.Link) error {
	query := `
		INSERT INTO links (id, short_code, destination, owner_id, enabled, expires_at, tags, click_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		link.ID,
		link.ShortCode,
		link.Destination,
		link.OwnerID,
		link.Enabled,
		link.ExpiresAt,
		pq.Array(link.Tags),
		link.ClickCount,
		link.CreatedAt,
		link.UpdatedAt,
	)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return fmt.Errorf("failed to create link: %w", err)
	}

	return nil
}

// GetLinkByID retrieves a link by its ID.
func (s *Store) GetLinkByID(ctx context.Context, id string) (*model.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE id = $1 AND deleted_at IS NULL`

	link, err := scanLink(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link by ID: %w", err)
	}

	return link, nil
}

// GetLinkByCode retrieves a link by its short code.
// This is the hot path for redirects: a single indexed point lookup.
func (s *Store) GetLinkByCode(ctx context.Context, shortCode string) (*model.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE short_code = $1 AND deleted_at IS NULL`

	link, err := scanLink(s.pool.QueryRow(ctx, query, shortCode))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get link by short code: %w", err)
	}

	return link, nil
}

// ListLinks retrieves a keyset-paginated list of links.
func (s *Store) ListLinks(ctx context.Context, filter LinkFilter, cursor string, limit int) ([]*model.Link, string, error) {
	var cursorData *PaginationCursor
	if cursor != "" {
		var err error
		cursorData, err = decodeCursor(cursor)
		if err != nil {
			return nil, "", ErrInvalidCursor
		}
	}

	query := `SELECT ` + linkColumns + ` FROM links WHERE deleted_at IS NULL`
	args := []any{}
	argIndex := 1

	if filter.OwnerID != "" {
		query += fmt.Sprintf(" AND owner_id = $%d", argIndex)
		args = append(args, filter.OwnerID)
		argIndex++
	}

	if filter.Enabled != nil {
		query += fmt.Sprintf(" AND enabled = $%d", argIndex)
		args = append(args, *filter.Enabled)
		argIndex++
	}

	if filter.Tag != "" {
		query += fmt.Sprintf(" AND $%d = ANY(tags)", argIndex)
		args = append(args, filter.Tag)
		argIndex++
	}

	if filter.CreatedAfter != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIndex)
		args = append(args, *filter.CreatedAfter)
		argIndex++
	}

	if filter.CreatedBefore != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIndex)
		args = append(args, *filter.CreatedBefore)
		argIndex++
	}

	if filter.MinClicks != nil {
		query += fmt.Sprintf(" AND click_count >= $%d", argIndex)
		args = append(args, *filter.MinClicks)
		argIndex++
	}

	if filter.MaxClicks != nil {
		query += fmt.Sprintf(" AND click_count <= $%d", argIndex)
		args = append(args, *filter.MaxClicks)
		argIndex++
	}

	if cursorData != nil {
		query += fmt.Sprintf(" AND (created_at, id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, cursorData.CreatedAt, cursorData.ID)
		argIndex += 2
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", argIndex)
	args = append(args, limit+1) // fetch one extra to determine hasMore

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*model.Link
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan link: %w", err)
		}
		links = append(links, link)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("error iterating links: %w", err)
	}

	var nextCursor string
	if len(links) > limit {
		links = links[:limit]
		lastLink := links[len(links)-1]
		nextCursor = encodeCursor(&PaginationCursor{
			ID:        lastLink.ID,
			CreatedAt: lastLink.CreatedAt,
		})
	}

	return links, nextCursor, nil
}

// UpdateLink updates a link's mutable fields. The short code is immutable.
func (s *Store) UpdateLink(ctx context.Context, link *model.Link) error {
	query := `
		UPDATE links
		SET destination = $2, enabled = $3, expires_at = $4, tags = $5, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := s.pool.Exec(ctx, query,
		link.ID,
		link.Destination,
		link.Enabled,
		link.ExpiresAt,
		pq.Array(link.Tags),
	)

	if err != nil {
		return fmt.Errorf("failed to update link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

// DeleteLink performs a soft delete on a link. Click events for the
// code are retained for audit; they are never cascade-deleted.
func (s *Store) DeleteLink(ctx context.Context, id string) error {
	query := `
		UPDATE links
		SET deleted_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`

	result, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

// IncrementClicks atomically adds delta to a link's click counter.
// The single-statement UPDATE keeps concurrent increments for the same
// popular code from losing updates; there is no app-level read-modify-write.
func (s *Store) IncrementClicks(ctx context.Context, shortCode string, delta int64) error {
	query := `
		UPDATE links
		SET click_count = click_count + $2
		WHERE short_code = $1
	`

	result, err := s.pool.Exec(ctx, query, shortCode, delta)
	if err != nil {
		return fmt.Errorf("failed to increment click count: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

// CodeExists checks if a short code is already taken.
func (s *Store) CodeExists(ctx context.Context, shortCode string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM links WHERE short_code = $1 AND deleted_at IS NULL)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, shortCode).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check short code existence: %w", err)
	}

	return exists, nil
}

// CountActiveLinks counts enabled, unexpired, undeleted links.
func (s *Store) CountActiveLinks(ctx context.Context) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM links
		WHERE deleted_at IS NULL
		  AND enabled
		  AND (expires_at IS NULL OR expires_at > NOW())
	`

	var count int64
	if err := s.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active links: %w", err)
	}

	return count, nil
}

// scanLink scans a single row into a Link model.
func scanLink(row pgx.Row) (*model.Link, error) {
	var link model.Link
	err := row.Scan(
		&link.ID,
		&link.ShortCode,
		&link.Destination,
		&link.OwnerID,
		&link.Enabled,
		&link.ExpiresAt,
		pq.Array(&link.Tags),
		&link.DeletedAt,
		&link.ClickCount,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	return &link, err
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	// 23505 is unique_violation
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// encodeCursor encodes a pagination cursor to base64.
func encodeCursor(cursor *PaginationCursor) string {
	data, _ := json.Marshal(cursor)
	return base64.URLEncoding.EncodeToString(data)
}

// decodeCursor decodes a base64 pagination cursor.
func decodeCursor(s string) (*PaginationCursor, error) {
	data, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}

	var cursor PaginationCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}
