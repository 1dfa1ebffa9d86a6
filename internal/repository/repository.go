// Package repository declares the storage contracts the services depend on.
// Implementations live in sub-packages; services only see these interfaces.
package repository

import (
	"context"

	"github.com/sakif/snippetvault/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// Tx is an open unit of work. It is opaque to services: they thread it
// through the *InTx methods of the repository that issued it and finish it
// with Commit or Rollback. Rollback after Commit is a no-op.
type Tx interface {
	Commit() error
	Rollback() error
}

// Transactor starts units of work that repository calls can join.
type Transactor interface {
	BeginTx(ctx context.Context) (Tx, error)
}

type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	List(ctx context.Context, opts ListOptions) ([]model.Snippet, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, id string) error

	GetByIDInTx(ctx context.Context, tx Tx, id string) (*model.Snippet, error)
	UpdateInTx(ctx context.Context, tx Tx, snippet *model.Snippet) error
}

// VersionRepository is the append-only version store. There is no update or
// delete: versions only disappear when their snippet is deleted.
type VersionRepository interface {
	// Create stores v and fills its ID, ContentHash and CreatedAt. It fails
	// with apperror.ErrConflict when the snippet already has that number.
	Create(ctx context.Context, v *model.Version) error
	CreateInTx(ctx context.Context, tx Tx, v *model.Version) error

	GetByID(ctx context.Context, id string) (*model.Version, error)

	// ListBySnippet returns every version of the snippet in no particular
	// order.
	ListBySnippet(ctx context.Context, snippetID string) ([]model.Version, error)

	// NextNumber returns one more than the highest version number of the
	// snippet (1 when it has none). It serializes concurrent writers for the
	// snippet until tx ends, so the number stays free until the insert.
	NextNumber(ctx context.Context, tx Tx, snippetID string) (int, error)
}
