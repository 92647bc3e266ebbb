package repository

import (
	"database/sql"
	"fmt"
	"strings"

	"versionvibe/model"
)

// CommentRepository defines the persistence contract for comments.
// Listings return root comments most-recent-first, with each page's
// reply sets fetched alongside their roots.
type CommentRepository interface {
	ListByVersion(versionID, projectID int64, page, pageSize int) ([]*model.Comment, int64, error)
	GetByID(id string) (*model.Comment, error)
	Create(comment *model.Comment) error
	UpdateContent(id, content string) error
	Delete(id string) (bool, error)
}

// mysqlCommentRepository implements CommentRepository for MySQL.
type mysqlCommentRepository struct {
	db *sql.DB
}

// NewMySQLCommentRepository creates a new mysqlCommentRepository.
func NewMySQLCommentRepository(db *sql.DB) CommentRepository {
	return &mysqlCommentRepository{db: db}
}

const commentColumns = `
	c.id, c.version_id, c.project_id, c.author_id, c.parent_id,
	c.content, c.timestamp_sec, c.created_at, c.updated_at,
	COALESCE(u.display_name, ''), COALESCE(u.avatar_url, '')`

func scanComment(scanner interface{ Scan(...interface{}) error }) (*model.Comment, error) {
	c := &model.Comment{}
	var parentID sql.NullString
	var updatedAt sql.NullTime
	err := scanner.Scan(
		&c.ID, &c.VersionID, &c.ProjectID, &c.AuthorID, &parentID,
		&c.Content, &c.Timestamp, &c.CreatedAt, &updatedAt,
		&c.AuthorName, &c.AuthorAvatar,
	)
	if err != nil {
		return nil, err
	}
	if parentID.Valid && parentID.String != "" {
		c.ParentID = &parentID.String
	}
	if updatedAt.Valid {
		c.UpdatedAt = &updatedAt.Time
	}
	return c, nil
}

// ListByVersion returns one page of root comments (newest first) plus
// every reply belonging to a root on that page, and the total root
// count for the version.
func (r *mysqlCommentRepository) ListByVersion(versionID, projectID int64, page, pageSize int) ([]*model.Comment, int64, error) {
	if page < 1 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rootQuery := `
		SELECT ` + commentColumns + `
		FROM comments c
		LEFT JOIN users u ON u.id = c.author_id
		WHERE c.version_id = ? AND c.project_id = ? AND c.parent_id IS NULL
		ORDER BY c.created_at DESC
		LIMIT ? OFFSET ?`

	rows, err := r.db.Query(rootQuery, versionID, projectID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query root comments for version %d: %w", versionID, err)
	}
	defer rows.Close()

	var comments []*model.Comment
	var rootIDs []string
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan comment row: %w", err)
		}
		comments = append(comments, c)
		rootIDs = append(rootIDs, c.ID)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating comment rows: %w", err)
	}

	replies, err := r.repliesFor(rootIDs)
	if err != nil {
		return nil, 0, err
	}
	comments = append(comments, replies...)

	var total int64
	countQuery := `SELECT COUNT(*) FROM comments WHERE version_id = ? AND project_id = ? AND parent_id IS NULL`
	if err := r.db.QueryRow(countQuery, versionID, projectID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count comments for version %d: %w", versionID, err)
	}

	return comments, total, nil
}

// repliesFor fetches all replies whose parent is in the given id set,
// oldest first so threads read chronologically.
func (r *mysqlCommentRepository) repliesFor(rootIDs []string) ([]*model.Comment, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(rootIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := `
		SELECT ` + commentColumns + `
		FROM comments c
		LEFT JOIN users u ON u.id = c.author_id
		WHERE c.parent_id IN (` + placeholders + `)
		ORDER BY c.created_at ASC`

	args := make([]interface{}, len(rootIDs))
	for i, id := range rootIDs {
		args[i] = id
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query replies: %w", err)
	}
	defer rows.Close()

	var replies []*model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reply row: %w", err)
		}
		replies = append(replies, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reply rows: %w", err)
	}
	return replies, nil
}

// GetByID retrieves one comment, or nil if absent.
func (r *mysqlCommentRepository) GetByID(id string) (*model.Comment, error) {
	query := `
		SELECT ` + commentColumns + `
		FROM comments c
		LEFT JOIN users u ON u.id = c.author_id
		WHERE c.id = ?`

	c, err := scanComment(r.db.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan comment %s: %w", id, err)
	}
	return c, nil
}

// Create inserts a comment. The caller supplies the id.
func (r *mysqlCommentRepository) Create(comment *model.Comment) error {
	query := `
		INSERT INTO comments (id, version_id, project_id, author_id, parent_id, content, timestamp_sec)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare create comment statement: %w", err)
	}
	defer stmt.Close()

	var parentID interface{}
	if comment.ParentID != nil && *comment.ParentID != "" {
		parentID = *comment.ParentID
	}

	if _, err := stmt.Exec(comment.ID, comment.VersionID, comment.ProjectID,
		comment.AuthorID, parentID, comment.Content, comment.Timestamp); err != nil {
		return fmt.Errorf("failed to execute create comment statement: %w", err)
	}
	return nil
}

// UpdateContent rewrites a comment's text.
func (r *mysqlCommentRepository) UpdateContent(id, content string) error {
	query := `UPDATE comments SET content = ?, updated_at = NOW(3) WHERE id = ?`

	res, err := r.db.Exec(query, content, id)
	if err != nil {
		return fmt.Errorf("failed to update comment %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("comment %s not found", id)
	}
	return nil
}

// Delete removes a comment and any replies under it. Returns whether
// the root comment itself existed.
func (r *mysqlCommentRepository) Delete(id string) (bool, error) {
	if _, err := r.db.Exec(`DELETE FROM comments WHERE parent_id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to delete replies of comment %s: %w", id, err)
	}

	res, err := r.db.Exec(`DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete comment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows for comment %s: %w", id, err)
	}
	return n > 0, nil
}
