package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/rs/xid"

	"github.com/sakif/snippetvault/internal/apperror"
	"github.com/sakif/snippetvault/internal/model"
	"github.com/sakif/snippetvault/internal/repository"
)

const versionColumns = `id, snippet_id, version_number, title, description, code, language,
	author_id, change_description, content_hash, created_at`

// Create inserts v outside any caller transaction.
func (s *VersionStore) Create(ctx context.Context, v *model.Version) error {
	return s.insertVersion(ctx, s.db, v)
}

// CreateInTx inserts v as part of tx; nothing is visible until tx commits.
func (s *VersionStore) CreateInTx(ctx context.Context, tx repository.Tx, v *model.Version) error {
	sqlTx, err := s.unwrapTx(tx)
	if err != nil {
		return err
	}
	return s.insertVersion(ctx, sqlTx, v)
}

func (s *VersionStore) insertVersion(ctx context.Context, e sqlx.ExtContext, v *model.Version) error {
	v.ID = xid.New().String()
	v.ContentHash = model.HashContent(v)
	v.CreatedAt = s.now()

	_, err := sqlx.NamedExecContext(ctx, e,
		`INSERT INTO snippet_versions (`+versionColumns+`)
		 VALUES (:id, :snippet_id, :version_number, :title, :description, :code, :language,
		         :author_id, :change_description, :content_hash, :created_at)`,
		v,
	)
	if err == nil {
		return nil
	}

	switch s.dialect.Classify(err) {
	case ClassUniqueViolation:
		return apperror.Conflict("version", v.SnippetID+"#"+strconv.Itoa(v.VersionNumber))
	case ClassForeignKeyViolation:
		return apperror.NotFound("snippet", v.SnippetID)
	}
	return s.storageErr("creating version", err)
}

func (s *VersionStore) GetByID(ctx context.Context, id string) (*model.Version, error) {
	var v model.Version
	err := sqlx.GetContext(ctx, s.db, &v, s.db.Rebind(
		`SELECT `+versionColumns+` FROM snippet_versions WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("version", id)
		}
		return nil, s.storageErr("getting version "+id, err)
	}
	return &v, nil
}

func (s *VersionStore) ListBySnippet(ctx context.Context, snippetID string) ([]model.Version, error) {
	versions := make([]model.Version, 0, 16)
	err := sqlx.SelectContext(ctx, s.db, &versions, s.db.Rebind(
		`SELECT `+versionColumns+` FROM snippet_versions WHERE snippet_id = ?`), snippetID)
	if err != nil {
		return nil, s.storageErr("listing versions of "+snippetID, err)
	}
	return versions, nil
}

// NextNumber takes the dialect's per-snippet lock and then reads the current
// maximum. The lock is held until tx ends, so the number cannot be handed out
// twice.
func (s *VersionStore) NextNumber(ctx context.Context, tx repository.Tx, snippetID string) (int, error) {
	sqlTx, err := s.unwrapTx(tx)
	if err != nil {
		return 0, err
	}

	if err := s.dialect.LockSnippet(ctx, sqlTx, snippetID); err != nil {
		return 0, s.storageErr("locking version sequence of "+snippetID, err)
	}

	var next int
	err = sqlTx.GetContext(ctx, &next, sqlTx.Rebind(
		`SELECT COALESCE(MAX(version_number), 0) + 1 FROM snippet_versions WHERE snippet_id = ?`), snippetID)
	if err != nil {
		return 0, s.storageErr("computing next version number of "+snippetID, err)
	}
	return next, nil
}
