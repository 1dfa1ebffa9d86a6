package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/sakif/snippetvault/internal/apperror"
	"github.com/sakif/snippetvault/internal/diff"
	"github.com/sakif/snippetvault/internal/metrics"
	"github.com/sakif/snippetvault/internal/model"
	"github.com/sakif/snippetvault/internal/repository"
)

const (
	InitialVersionDescription = "initial version"
	DefaultChangeDescription  = "snapshot"
)

// VersionService keeps the history of each snippet: numbered snapshots,
// restore to an earlier snapshot, and comparison of two snapshots.
//
// VERSION NUMBERS:
// Numbers are handed out by the repository inside a transaction that also
// performs the insert. Two requests versioning the same snippet at once get
// consecutive numbers, never the same one, and a failed insert leaves no gap.
type VersionService struct {
	snippets repository.SnippetRepository
	versions repository.VersionRepository
	txs      repository.Transactor
	differ   diff.Func
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewVersionService wires the service. A nil differ means diff.Positional;
// m may be nil.
func NewVersionService(
	snippets repository.SnippetRepository,
	versions repository.VersionRepository,
	txs repository.Transactor,
	differ diff.Func,
	m *metrics.Metrics,
	logger *slog.Logger,
) *VersionService {
	if differ == nil {
		differ = diff.Positional
	}
	return &VersionService{
		snippets: snippets,
		versions: versions,
		txs:      txs,
		differ:   differ,
		metrics:  m,
		logger:   logger,
	}
}

// CreateInitialVersion records version 1 of a freshly created snippet. The
// snippet's owner is the author. Calling it twice for one snippet fails with
// apperror.ErrConflict.
func (s *VersionService) CreateInitialVersion(ctx context.Context, snippetID string) (*model.Version, error) {
	snippet, err := s.snippets.GetByID(ctx, snippetID)
	if err != nil {
		return nil, err
	}

	v := model.SnapshotOf(snippet, 1, snippet.UserID, InitialVersionDescription)
	if err := s.versions.Create(ctx, v); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("failed to create initial version",
				slog.String("snippet_id", snippetID),
				slog.String("error", err.Error()),
			)
		}
		return nil, fmt.Errorf("creating initial version: %w", err)
	}

	s.metrics.VersionCreated(metrics.ReasonInitial)
	s.logger.Info("version created",
		slog.String("snippet_id", snippetID),
		slog.Int("version", v.VersionNumber),
	)
	return v, nil
}

// CreateVersion snapshots the snippet's current state under the next number.
// A blank change description becomes DefaultChangeDescription. authorID must
// be allowed to change the snippet, or apperror.ErrForbidden is returned.
func (s *VersionService) CreateVersion(ctx context.Context, snippetID, authorID, changeDescription string) (*model.Version, error) {
	_, v, err := s.commitVersion(ctx, snippetID, authorID, changeDescription, nil)
	if err != nil {
		return nil, fmt.Errorf("creating version: %w", err)
	}
	return v, nil
}

// RecordEdit lets edit change the stored snippet and records the result as a
// new version. The read, the ownership check, the update and the version
// insert share one transaction: either the edit and its version are both
// stored or neither is, and concurrent edits can't snapshot each other's
// content.
func (s *VersionService) RecordEdit(
	ctx context.Context,
	snippetID, authorID, changeDescription string,
	edit func(*model.Snippet),
) (*model.Snippet, *model.Version, error) {
	snippet, v, err := s.commitVersion(ctx, snippetID, authorID, changeDescription, edit)
	if err != nil {
		return nil, nil, fmt.Errorf("recording edit: %w", err)
	}
	return snippet, v, nil
}

// commitVersion is CreateVersion and RecordEdit; edit may be nil.
func (s *VersionService) commitVersion(
	ctx context.Context,
	snippetID, authorID, changeDescription string,
	edit func(*model.Snippet),
) (*model.Snippet, *model.Version, error) {
	if strings.TrimSpace(changeDescription) == "" {
		changeDescription = DefaultChangeDescription
	}

	var snippet *model.Snippet
	var created *model.Version
	err := s.inTx(ctx, func(tx repository.Tx) error {
		var err error
		snippet, err = s.snippets.GetByIDInTx(ctx, tx, snippetID)
		if err != nil {
			return err
		}
		if err := authorize(snippet, authorID); err != nil {
			return err
		}
		if edit != nil {
			edit(snippet)
			if err := s.snippets.UpdateInTx(ctx, tx, snippet); err != nil {
				return err
			}
		}
		created, err = s.appendVersion(ctx, tx, snippet, authorID, changeDescription)
		return err
	})
	if err != nil {
		if !isCallerError(err) {
			s.logger.Error("failed to create version",
				slog.String("snippet_id", snippetID),
				slog.Bool("edit", edit != nil),
				slog.String("error", err.Error()),
			)
		}
		return nil, nil, err
	}

	s.metrics.VersionCreated(metrics.ReasonSnapshot)
	s.logger.Info("version created",
		slog.String("snippet_id", snippetID),
		slog.Int("version", created.VersionNumber),
	)
	return snippet, created, nil
}

// GetVersionHistory returns every version of the snippet, newest first.
func (s *VersionService) GetVersionHistory(ctx context.Context, snippetID string) ([]model.Version, error) {
	if _, err := s.snippets.GetByID(ctx, snippetID); err != nil {
		return nil, err
	}

	versions, err := s.versions.ListBySnippet(ctx, snippetID)
	if err != nil {
		s.logger.Error("failed to list versions",
			slog.String("snippet_id", snippetID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing versions: %w", err)
	}

	slices.SortFunc(versions, func(a, b model.Version) int {
		return cmp.Compare(b.VersionNumber, a.VersionNumber)
	})
	return versions, nil
}

// GetVersion returns apperror.ErrNotFound when no version has that ID.
func (s *VersionService) GetVersion(ctx context.Context, versionID string) (*model.Version, error) {
	return s.versions.GetByID(ctx, versionID)
}

// GetVersionByNumber looks a version up by its per-snippet number.
func (s *VersionService) GetVersionByNumber(ctx context.Context, snippetID string, number int) (*model.Version, error) {
	versions, err := s.GetVersionHistory(ctx, snippetID)
	if err != nil {
		return nil, err
	}
	for i := range versions {
		if versions[i].VersionNumber == number {
			return &versions[i], nil
		}
	}
	return nil, apperror.NotFound("version", snippetID+"#"+strconv.Itoa(number))
}

// RestoreVersion makes the snippet look like version versionID again.
//
// Nothing is overwritten or dropped from the history. In one transaction:
//  1. the snippet's current state is saved as a backup version,
//  2. the snippet's content is replaced with the target's,
//  3. the restored state is saved as another new version.
//
// Restoring to version 1 of a snippet at version 5 therefore leaves versions
// 1 to 7. Either all three writes happen or none do.
//
// It returns false with a nil error when the version doesn't exist, belongs
// to another snippet, or the snippet itself is gone. A caller who may not
// change the snippet gets apperror.ErrForbidden and nothing is written.
func (s *VersionService) RestoreVersion(ctx context.Context, snippetID, versionID, authorID string) (bool, error) {
	target, err := s.versions.GetByID(ctx, versionID)
	if errors.Is(err, apperror.ErrNotFound) {
		s.metrics.Restore(metrics.RestoreNotFound)
		return false, nil
	}
	if err != nil {
		s.metrics.Restore(metrics.RestoreFailed)
		return false, fmt.Errorf("restoring version: %w", err)
	}
	if target.SnippetID != snippetID {
		s.metrics.Restore(metrics.RestoreNotFound)
		return false, nil
	}

	number := strconv.Itoa(target.VersionNumber)
	var backup, restored *model.Version

	err = s.inTx(ctx, func(tx repository.Tx) error {
		snippet, err := s.snippets.GetByIDInTx(ctx, tx, snippetID)
		if err != nil {
			return err
		}
		if err := authorize(snippet, authorID); err != nil {
			return err
		}

		backup, err = s.appendVersion(ctx, tx, snippet, authorID, "backup before restoring to version "+number)
		if err != nil {
			return err
		}

		target.ApplyTo(snippet)
		if err := s.snippets.UpdateInTx(ctx, tx, snippet); err != nil {
			return err
		}

		restored, err = s.appendVersion(ctx, tx, snippet, authorID, "restored to version "+number)
		return err
	})
	if errors.Is(err, apperror.ErrNotFound) {
		s.metrics.Restore(metrics.RestoreNotFound)
		return false, nil
	}
	if errors.Is(err, apperror.ErrForbidden) {
		s.metrics.Restore(metrics.RestoreForbidden)
		return false, fmt.Errorf("restoring version: %w", err)
	}
	if err != nil {
		s.metrics.Restore(metrics.RestoreFailed)
		s.logger.Error("failed to restore version",
			slog.String("snippet_id", snippetID),
			slog.String("version_id", versionID),
			slog.String("error", err.Error()),
		)
		return false, fmt.Errorf("restoring version: %w", err)
	}

	s.metrics.VersionCreated(metrics.ReasonBackup)
	s.metrics.VersionCreated(metrics.ReasonRestored)
	s.metrics.Restore(metrics.RestoreRestored)
	s.logger.Info("version restored",
		slog.String("snippet_id", snippetID),
		slog.Int("restored_from", target.VersionNumber),
		slog.Int("backup_version", backup.VersionNumber),
		slog.Int("new_version", restored.VersionNumber),
	)
	return true, nil
}

// CompareVersions reports which fields differ between two versions of the
// same snippet, plus a line diff of their code.
func (s *VersionService) CompareVersions(ctx context.Context, fromID, toID string) (*model.VersionComparison, error) {
	from, err := s.versions.GetByID(ctx, fromID)
	if err != nil {
		s.countComparison(err)
		return nil, err
	}
	to, err := s.versions.GetByID(ctx, toID)
	if err != nil {
		s.countComparison(err)
		return nil, err
	}

	if from.SnippetID != to.SnippetID {
		s.metrics.Comparison(metrics.CompareInvalid)
		return nil, apperror.ValidationFailed("to", "versions belong to different snippets")
	}

	lines := s.differ(from.Code, to.Code)
	s.metrics.Comparison(metrics.CompareOK)
	return &model.VersionComparison{
		From:               from,
		To:                 to,
		TitleChanged:       from.Title != to.Title,
		DescriptionChanged: from.Description != to.Description,
		CodeChanged:        from.Code != to.Code,
		LanguageChanged:    from.Language != to.Language,
		Diff:               lines,
		Stats:              diff.Summarize(lines),
	}, nil
}

// isCallerError reports errors caused by the request rather than the
// system; those are not logged as failures.
func isCallerError(err error) bool {
	return errors.Is(err, apperror.ErrNotFound) ||
		errors.Is(err, apperror.ErrForbidden) ||
		errors.Is(err, apperror.ErrValidation)
}

func (s *VersionService) countComparison(err error) {
	if errors.Is(err, apperror.ErrNotFound) {
		s.metrics.Comparison(metrics.CompareNotFound)
	}
}

// appendVersion snapshots snippet under the next free number. tx must stay
// open until the caller commits, so the number stays reserved.
func (s *VersionService) appendVersion(ctx context.Context, tx repository.Tx, snippet *model.Snippet, authorID, changeDescription string) (*model.Version, error) {
	n, err := s.versions.NextNumber(ctx, tx, snippet.ID)
	if err != nil {
		return nil, err
	}
	v := model.SnapshotOf(snippet, n, authorID, changeDescription)
	if err := s.versions.CreateInTx(ctx, tx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// inTx runs fn in a new transaction and commits if fn succeeds. A cancelled
// ctx aborts before the commit is attempted; any failure rolls back.
func (s *VersionService) inTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	tx, err := s.txs.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.Commit()
}
