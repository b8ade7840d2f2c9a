// Package postgres implements editorial.Repository on PostgreSQL. The
// expected schema ships in schema.sql next to this file.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/newsroomkit/editorial/pkg/editorial"
)

// DBTX is an interface that allows us to use either a connection pool or a
// transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Repository implements editorial.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with a connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

// InTx runs fn inside a database transaction. Nested calls open a savepoint.
func (r *Repository) InTx(ctx context.Context, fn func(editorial.Repository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&Repository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "title") {
				return editorial.ErrDuplicateTitle
			}
			if strings.Contains(pgErr.ConstraintName, "slug") {
				return editorial.ErrDuplicateSlug
			}
			return fmt.Errorf("duplicate entry in %s: %s", operation, pgErr.ConstraintName)
		case "23503": // foreign_key_violation
			return fmt.Errorf("referenced record not found in %s", operation)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - schema.sql has not been applied")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Post operations

const postColumns = `id, state_id, external_source_id, external_link, item_type_id,
	title, slug, body, content, short, commentary,
	meta_title, meta_description, meta_keywords,
	created_at, updated_at, deleted_at`

func scanPost(row pgx.Row) (*editorial.Post, error) {
	var post editorial.Post
	err := row.Scan(
		&post.ID, &post.StateID, &post.ExternalSourceID, &post.ExternalLink, &post.ItemTypeID,
		&post.Title, &post.Slug, &post.Body, &post.Content, &post.Short, &post.Commentary,
		&post.MetaTitle, &post.MetaDescription, &post.MetaKeywords,
		&post.CreatedAt, &post.UpdatedAt, &post.DeletedAt)
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *Repository) CreatePost(ctx context.Context, post *editorial.Post) error {
	query := `
		INSERT INTO posts (
			id, state_id, external_source_id, external_link, item_type_id,
			title, slug, body, content, short, commentary,
			meta_title, meta_description, meta_keywords,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := r.db.Exec(ctx, query,
		post.ID, post.StateID, post.ExternalSourceID, post.ExternalLink, post.ItemTypeID,
		post.Title, post.Slug, post.Body, post.Content, post.Short, post.Commentary,
		post.MetaTitle, post.MetaDescription, post.MetaKeywords,
		post.CreatedAt, post.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create post", err)
	}
	return nil
}

func (r *Repository) GetPost(ctx context.Context, id uuid.UUID) (*editorial.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1 AND deleted_at IS NULL`

	post, err := scanPost(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, editorial.ErrPostNotFound
		}
		return nil, r.handlePostgresError("get post", err)
	}
	return post, nil
}

func (r *Repository) GetPostBySlug(ctx context.Context, slug string) (*editorial.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE slug = $1 AND deleted_at IS NULL`

	post, err := scanPost(r.db.QueryRow(ctx, query, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, editorial.ErrPostNotFound
		}
		return nil, r.handlePostgresError("get post by slug", err)
	}
	return post, nil
}

func (r *Repository) GetPostByTitle(ctx context.Context, title string) (*editorial.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE title = $1 AND deleted_at IS NULL`

	post, err := scanPost(r.db.QueryRow(ctx, query, title))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, editorial.ErrPostNotFound
		}
		return nil, r.handlePostgresError("get post by title", err)
	}
	return post, nil
}

func (r *Repository) UpdatePost(ctx context.Context, post *editorial.Post) error {
	query := `
		UPDATE posts SET
			state_id = $2, external_source_id = $3, external_link = $4, item_type_id = $5,
			title = $6, slug = $7, body = $8, content = $9, short = $10, commentary = $11,
			meta_title = $12, meta_description = $13, meta_keywords = $14, updated_at = $15
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query,
		post.ID, post.StateID, post.ExternalSourceID, post.ExternalLink, post.ItemTypeID,
		post.Title, post.Slug, post.Body, post.Content, post.Short, post.Commentary,
		post.MetaTitle, post.MetaDescription, post.MetaKeywords, post.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("update post", err)
	}
	if tag.RowsAffected() == 0 {
		return editorial.ErrPostNotFound
	}
	return nil
}

func (r *Repository) SoftDeletePost(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE posts SET deleted_at = $2, updated_at = $2 WHERE id = $1 AND deleted_at IS NULL`

	tag, err := r.db.Exec(ctx, query, id, time.Now().UTC())
	if err != nil {
		return r.handlePostgresError("soft delete post", err)
	}
	if tag.RowsAffected() == 0 {
		return editorial.ErrPostNotFound
	}
	return nil
}

func (r *Repository) HardDeletePost(ctx context.Context, id uuid.UUID) error {
	owner := editorial.PostRef(id)

	// Owned rows go with the post; the audit ledger stays.
	cleanups := []string{
		`DELETE FROM locks WHERE owner_type = $1 AND owner_id = $2`,
		`DELETE FROM publications WHERE owner_type = $1 AND owner_id = $2`,
		`DELETE FROM post_keywords WHERE owner_type = $1 AND owner_id = $2`,
		`DELETE FROM post_tags WHERE owner_type = $1 AND owner_id = $2`,
		`DELETE FROM post_images WHERE owner_type = $1 AND owner_id = $2`,
	}
	for _, query := range cleanups {
		if _, err := r.db.Exec(ctx, query, owner.Type, owner.ID); err != nil {
			return r.handlePostgresError("hard delete post", err)
		}
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return r.handlePostgresError("hard delete post", err)
	}
	if tag.RowsAffected() == 0 {
		return editorial.ErrPostNotFound
	}
	return nil
}

func (r *Repository) ListPosts(ctx context.Context, filters editorial.PostListFilters) ([]*editorial.Post, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + postColumns + ` FROM posts WHERE deleted_at IS NULL`)

	var args []interface{}
	if filters.State != nil {
		args = append(args, *filters.State)
		fmt.Fprintf(&sb, " AND state_id = $%d", len(args))
	}
	if filters.WaitingList != nil && !*filters.WaitingList {
		sb.WriteString(` AND EXISTS (
			SELECT 1 FROM publications p
			WHERE p.owner_type = 'post' AND p.owner_id = posts.id
			  AND p.is_published AND p.publish_at > NOW())`)
	}
	sb.WriteString(" ORDER BY created_at DESC")
	if filters.Limit != nil {
		args = append(args, *filters.Limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}
	if filters.Offset != nil {
		args = append(args, *filters.Offset)
		fmt.Fprintf(&sb, " OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, r.handlePostgresError("list posts", err)
	}
	defer rows.Close()

	var posts []*editorial.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// Lock operations

const lockColumns = `id, owner_type, owner_id, holder_id, state, created_at, updated_at`

func scanLock(row pgx.Row) (*editorial.Lock, error) {
	var lock editorial.Lock
	err := row.Scan(&lock.ID, &lock.Owner.Type, &lock.Owner.ID,
		&lock.HolderID, &lock.State, &lock.CreatedAt, &lock.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &lock, nil
}

// AcquireLock is a single conditional upsert: the insert wins on first use,
// and the update fires only when the row is inactive or already held by the
// requester. Concurrent acquires on the same owner therefore serialize in
// the database, not in this process.
func (r *Repository) AcquireLock(ctx context.Context, owner editorial.EntityRef, holderID uuid.UUID) (*editorial.Lock, error) {
	query := `
		INSERT INTO locks (id, owner_type, owner_id, holder_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'active', $5, $5)
		ON CONFLICT (owner_type, owner_id) DO UPDATE
		SET holder_id = EXCLUDED.holder_id, state = 'active', updated_at = EXCLUDED.updated_at
		WHERE locks.state = 'inactive' OR locks.holder_id = EXCLUDED.holder_id
		RETURNING ` + lockColumns

	now := time.Now().UTC()
	lock, err := scanLock(r.db.QueryRow(ctx, query, uuid.New(), owner.Type, owner.ID, holderID, now))
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, r.handlePostgresError("acquire lock", err)
	}

	// The guarded update matched nothing: someone else holds it.
	current, err := r.GetLock(ctx, owner)
	if err != nil {
		return nil, err
	}
	return nil, &editorial.LockHeldError{Owner: owner, HolderID: current.HolderID}
}

func (r *Repository) ReleaseLock(ctx context.Context, owner editorial.EntityRef, holderID uuid.UUID) (*editorial.Lock, error) {
	query := `
		UPDATE locks SET state = 'inactive', updated_at = $4
		WHERE owner_type = $1 AND owner_id = $2 AND holder_id = $3
		RETURNING ` + lockColumns

	lock, err := scanLock(r.db.QueryRow(ctx, query, owner.Type, owner.ID, holderID, time.Now().UTC()))
	if err == nil {
		return lock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, r.handlePostgresError("release lock", err)
	}

	if _, err := r.GetLock(ctx, owner); err != nil {
		return nil, err
	}
	return nil, editorial.ErrPermissionDenied
}

func (r *Repository) GetLock(ctx context.Context, owner editorial.EntityRef) (*editorial.Lock, error) {
	query := `SELECT ` + lockColumns + ` FROM locks WHERE owner_type = $1 AND owner_id = $2`

	lock, err := scanLock(r.db.QueryRow(ctx, query, owner.Type, owner.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, editorial.ErrLockNotFound
		}
		return nil, r.handlePostgresError("get lock", err)
	}
	return lock, nil
}

// Publication operations

func (r *Repository) CreatePublication(ctx context.Context, pub *editorial.Publication) error {
	query := `
		INSERT INTO publications (id, owner_type, owner_id, slot_id, is_published, publish_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.Exec(ctx, query,
		pub.ID, pub.Owner.Type, pub.Owner.ID, pub.SlotID, pub.IsPublished, pub.PublishAt, pub.CreatedAt)
	if err != nil {
		return r.handlePostgresError("create publication", err)
	}
	return nil
}

func (r *Repository) ListPublications(ctx context.Context, owner editorial.EntityRef) ([]*editorial.Publication, error) {
	query := `
		SELECT id, owner_type, owner_id, slot_id, is_published, publish_at, created_at
		FROM publications WHERE owner_type = $1 AND owner_id = $2
		ORDER BY created_at`

	rows, err := r.db.Query(ctx, query, owner.Type, owner.ID)
	if err != nil {
		return nil, r.handlePostgresError("list publications", err)
	}
	defer rows.Close()

	var pubs []*editorial.Publication
	for rows.Next() {
		var pub editorial.Publication
		if err := rows.Scan(&pub.ID, &pub.Owner.Type, &pub.Owner.ID,
			&pub.SlotID, &pub.IsPublished, &pub.PublishAt, &pub.CreatedAt); err != nil {
			return nil, err
		}
		pubs = append(pubs, &pub)
	}
	return pubs, rows.Err()
}

func (r *Repository) DeletePublications(ctx context.Context, owner editorial.EntityRef) error {
	query := `DELETE FROM publications WHERE owner_type = $1 AND owner_id = $2`
	if _, err := r.db.Exec(ctx, query, owner.Type, owner.ID); err != nil {
		return r.handlePostgresError("delete publications", err)
	}
	return nil
}

func (r *Repository) CountPublications(ctx context.Context, owner editorial.EntityRef) (int, error) {
	query := `SELECT COUNT(*) FROM publications WHERE owner_type = $1 AND owner_id = $2`

	var count int
	if err := r.db.QueryRow(ctx, query, owner.Type, owner.ID).Scan(&count); err != nil {
		return 0, r.handlePostgresError("count publications", err)
	}
	return count, nil
}

// Relation sets

func (r *Repository) ReplaceKeywords(ctx context.Context, owner editorial.EntityRef, keywordIDs []uuid.UUID) error {
	return r.replaceIDSet(ctx, "post_keywords", "keyword_id", owner, keywordIDs)
}

func (r *Repository) ListKeywords(ctx context.Context, owner editorial.EntityRef) ([]uuid.UUID, error) {
	return r.listIDSet(ctx, "post_keywords", "keyword_id", owner)
}

func (r *Repository) ReplaceTags(ctx context.Context, owner editorial.EntityRef, tagIDs []uuid.UUID) error {
	return r.replaceIDSet(ctx, "post_tags", "tag_id", owner, tagIDs)
}

func (r *Repository) ListTags(ctx context.Context, owner editorial.EntityRef) ([]uuid.UUID, error) {
	return r.listIDSet(ctx, "post_tags", "tag_id", owner)
}

func (r *Repository) replaceIDSet(ctx context.Context, table, column string, owner editorial.EntityRef, ids []uuid.UUID) error {
	deleteQuery := fmt.Sprintf(`DELETE FROM %s WHERE owner_type = $1 AND owner_id = $2`, table)
	if _, err := r.db.Exec(ctx, deleteQuery, owner.Type, owner.ID); err != nil {
		return r.handlePostgresError("replace "+table, err)
	}

	insertQuery := fmt.Sprintf(
		`INSERT INTO %s (owner_type, owner_id, %s, position) VALUES ($1, $2, $3, $4)`, table, column)
	for i, id := range ids {
		if _, err := r.db.Exec(ctx, insertQuery, owner.Type, owner.ID, id, i); err != nil {
			return r.handlePostgresError("replace "+table, err)
		}
	}
	return nil
}

func (r *Repository) listIDSet(ctx context.Context, table, column string, owner editorial.EntityRef) ([]uuid.UUID, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE owner_type = $1 AND owner_id = $2 ORDER BY position`, column, table)

	rows, err := r.db.Query(ctx, query, owner.Type, owner.ID)
	if err != nil {
		return nil, r.handlePostgresError("list "+table, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) ReplaceImages(ctx context.Context, owner editorial.EntityRef, images []editorial.ImageSlot) error {
	deleteQuery := `DELETE FROM post_images WHERE owner_type = $1 AND owner_id = $2`
	if _, err := r.db.Exec(ctx, deleteQuery, owner.Type, owner.ID); err != nil {
		return r.handlePostgresError("replace images", err)
	}
	for _, img := range images {
		if err := r.UpsertImage(ctx, owner, img); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) UpsertImage(ctx context.Context, owner editorial.EntityRef, image editorial.ImageSlot) error {
	query := `
		INSERT INTO post_images (owner_type, owner_id, image_id, rows_count, cols_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_type, owner_id, rows_count, cols_count)
		DO UPDATE SET image_id = EXCLUDED.image_id`

	if _, err := r.db.Exec(ctx, query, owner.Type, owner.ID, image.ImageID, image.Rows, image.Cols); err != nil {
		return r.handlePostgresError("upsert image", err)
	}
	return nil
}

func (r *Repository) ListImages(ctx context.Context, owner editorial.EntityRef) ([]editorial.ImageSlot, error) {
	query := `
		SELECT image_id, rows_count, cols_count FROM post_images
		WHERE owner_type = $1 AND owner_id = $2
		ORDER BY rows_count, cols_count`

	rows, err := r.db.Query(ctx, query, owner.Type, owner.ID)
	if err != nil {
		return nil, r.handlePostgresError("list images", err)
	}
	defer rows.Close()

	var images []editorial.ImageSlot
	for rows.Next() {
		var img editorial.ImageSlot
		if err := rows.Scan(&img.ImageID, &img.Rows, &img.Cols); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// Audit ledger

func (r *Repository) AppendAudit(ctx context.Context, record *editorial.AuditRecord) error {
	query := `
		INSERT INTO audit_log (id, owner_type, owner_id, action, user_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.Exec(ctx, query,
		record.ID, record.Owner.Type, record.Owner.ID, record.Action, record.UserID, record.CreatedAt)
	if err != nil {
		return r.handlePostgresError("append audit", err)
	}
	return nil
}

func (r *Repository) ListAudit(ctx context.Context, owner editorial.EntityRef, action *editorial.AuditAction) ([]*editorial.AuditRecord, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, owner_type, owner_id, action, user_id, created_at
		FROM audit_log WHERE owner_type = $1 AND owner_id = $2`)

	args := []interface{}{owner.Type, owner.ID}
	if action != nil {
		args = append(args, *action)
		fmt.Fprintf(&sb, " AND action = $%d", len(args))
	}
	sb.WriteString(" ORDER BY created_at")

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, r.handlePostgresError("list audit", err)
	}
	defer rows.Close()

	var records []*editorial.AuditRecord
	for rows.Next() {
		var record editorial.AuditRecord
		if err := rows.Scan(&record.ID, &record.Owner.Type, &record.Owner.ID,
			&record.Action, &record.UserID, &record.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, &record)
	}
	return records, rows.Err()
}
