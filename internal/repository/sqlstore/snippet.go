package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/sakif/snippetvault/internal/apperror"
	"github.com/sakif/snippetvault/internal/model"
	"github.com/sakif/snippetvault/internal/repository"
)

const snippetColumns = `id, title, description, code, language, user_id, created_at, updated_at`

// Create inserts a new snippet and fills its ID and timestamps.
func (s *SnippetStore) Create(ctx context.Context, snippet *model.Snippet) error {
	snippet.ID = xid.New().String()
	now := s.now()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now

	_, err := sqlx.NamedExecContext(ctx, s.db,
		`INSERT INTO snippets (`+snippetColumns+`)
		 VALUES (:id, :title, :description, :code, :language, :user_id, :created_at, :updated_at)`,
		snippet,
	)
	if err != nil {
		return s.storageErr("creating snippet", err)
	}
	return nil
}

func (s *SnippetStore) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	return s.getSnippet(ctx, s.db, id, "")
}

// GetByIDInTx reads the snippet inside tx and, where the backend supports
// it, locks the row until tx ends.
func (s *SnippetStore) GetByIDInTx(ctx context.Context, tx repository.Tx, id string) (*model.Snippet, error) {
	sqlTx, err := s.unwrapTx(tx)
	if err != nil {
		return nil, err
	}
	return s.getSnippet(ctx, sqlTx, id, s.dialect.ForUpdate())
}

func (s *SnippetStore) getSnippet(ctx context.Context, q sqlx.ExtContext, id, suffix string) (*model.Snippet, error) {
	var snippet model.Snippet
	err := sqlx.GetContext(ctx, q, &snippet, q.Rebind(
		`SELECT `+snippetColumns+` FROM snippets WHERE id = ?`+suffix), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, s.storageErr("getting snippet "+id, err)
	}
	return &snippet, nil
}

// List returns snippets newest first. The limit is clamped to 1..100.
func (s *SnippetStore) List(ctx context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset := max(opts.Offset, 0)

	snippets := make([]model.Snippet, 0, limit)
	err := sqlx.SelectContext(ctx, s.db, &snippets, s.db.Rebind(
		`SELECT `+snippetColumns+`
		 FROM snippets
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`), limit, offset)
	if err != nil {
		return nil, s.storageErr("listing snippets", err)
	}
	return snippets, nil
}

// Update rewrites the mutable fields and bumps UpdatedAt. It returns
// apperror.ErrNotFound when no row matches.
func (s *SnippetStore) Update(ctx context.Context, snippet *model.Snippet) error {
	return s.updateSnippet(ctx, s.db, snippet)
}

func (s *SnippetStore) UpdateInTx(ctx context.Context, tx repository.Tx, snippet *model.Snippet) error {
	sqlTx, err := s.unwrapTx(tx)
	if err != nil {
		return err
	}
	return s.updateSnippet(ctx, sqlTx, snippet)
}

func (s *SnippetStore) updateSnippet(ctx context.Context, e sqlx.ExtContext, snippet *model.Snippet) error {
	snippet.UpdatedAt = s.now()

	result, err := sqlx.NamedExecContext(ctx, e,
		`UPDATE snippets
		 SET title = :title, description = :description, code = :code,
		     language = :language, updated_at = :updated_at
		 WHERE id = :id`,
		snippet,
	)
	if err != nil {
		return s.storageErr("updating snippet "+snippet.ID, err)
	}
	return s.expectOneRow(result, "snippet", snippet.ID)
}

// Delete removes the snippet; its versions go with it.
func (s *SnippetStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM snippets WHERE id = ?`), id)
	if err != nil {
		return s.storageErr("deleting snippet "+id, err)
	}
	return s.expectOneRow(result, "snippet", id)
}

func (s *SnippetStore) expectOneRow(result sql.Result, resource, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return s.storageErr("checking rows affected", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
