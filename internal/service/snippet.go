// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to the database
//
// Services take repository interfaces, never a concrete database type, so the
// tests in this package run against in-memory fakes and main.go picks SQLite
// or Postgres without this package knowing.
//
// Two services live here. SnippetService is the editing workflow: it
// validates and stores snippets and, after every successful edit, asks the
// VersionService to record a version.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/snippetvault/internal/apperror"
	"github.com/sakif/snippetvault/internal/model"
	"github.com/sakif/snippetvault/internal/repository"
)

// Validation constants.
const (
	MaxSnippetTitleLength = 100
	MaxCodeLength         = 100000 // ~100KB of code
	MaxLanguageLength     = 32
	DefaultListLimit      = 20
	MaxListLimit          = 100
)

// VersionRecorder is the part of VersionService the editing workflow needs.
type VersionRecorder interface {
	CreateInitialVersion(ctx context.Context, snippetID string) (*model.Version, error)
	RecordEdit(ctx context.Context, snippetID, authorID, changeDescription string, edit func(*model.Snippet)) (*model.Snippet, *model.Version, error)
}

// SnippetService handles business logic for code snippets.
type SnippetService struct {
	repo     repository.SnippetRepository
	versions VersionRecorder
	logger   *slog.Logger
}

func NewSnippetService(repo repository.SnippetRepository, versions VersionRecorder, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:     repo,
		versions: versions,
		logger:   logger,
	}
}

// Create validates and saves a new snippet, then records it as version 1.
//
// ACCEPT PRIMITIVES, NOT HTTP TYPES:
// The signature is plain strings, not *http.Request, so the same rules apply
// whether the call comes from a handler, a CLI or a background job.
//
// If version 1 cannot be written the snippet is removed again: a snippet
// without an initial version would break the "history starts at 1" rule.
func (s *SnippetService) Create(ctx context.Context, title, code, description, language, ownerID string) (*model.Snippet, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "snippet title is required")
	}
	if err := validateFields(title, code, language); err != nil {
		return nil, err
	}

	snippet := &model.Snippet{
		Title:       title,
		Code:        code,
		Description: strings.TrimSpace(description),
		Language:    normalizeLanguage(language),
		UserID:      ownerID,
	}

	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	if _, err := s.versions.CreateInitialVersion(ctx, snippet.ID); err != nil {
		if delErr := s.repo.Delete(context.WithoutCancel(ctx), snippet.ID); delErr != nil {
			s.logger.Error("failed to remove unversioned snippet",
				slog.String("id", snippet.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("title", snippet.Title),
	)
	return snippet, nil
}

// GetByID returns apperror.ErrNotFound if the snippet doesn't exist.
func (s *SnippetService) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	return s.repo.GetByID(ctx, id)
}

// List retrieves snippets with pagination. limit is clamped to 1-100
// (default 20); a negative offset counts as 0.
func (s *SnippetService) List(ctx context.Context, limit, offset int) ([]model.Snippet, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	snippets, err := s.repo.List(ctx, repository.ListOptions{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}
	return snippets, nil
}

// Update modifies an existing snippet and records the result as a new
// version authored by callerID. The edit and its version are written in one
// transaction.
//
// An empty title means "keep the current one". Code, description and language
// are always replaced, since clearing them is a legitimate edit.
func (s *SnippetService) Update(ctx context.Context, id, title, code, description, language, callerID, changeDescription string) (*model.Snippet, error) {
	// Cheap rejections first. RecordEdit checks ownership again inside its
	// transaction, against the row it is about to change.
	if _, err := s.ownedSnippet(ctx, id, callerID); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if err := validateFields(title, code, language); err != nil {
		return nil, err
	}

	snippet, _, err := s.versions.RecordEdit(ctx, strings.TrimSpace(id), callerID, changeDescription, func(current *model.Snippet) {
		if title != "" {
			current.Title = title
		}
		current.Code = code
		current.Description = strings.TrimSpace(description)
		current.Language = normalizeLanguage(language)
	})
	if err != nil {
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated",
		slog.String("id", snippet.ID),
		slog.String("title", snippet.Title),
	)
	return snippet, nil
}

// Delete removes a snippet and, through the foreign key, its history.
func (s *SnippetService) Delete(ctx context.Context, id, callerID string) error {
	snippet, err := s.ownedSnippet(ctx, id, callerID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, snippet.ID); err != nil {
		return err
	}

	s.logger.Info("snippet deleted", slog.String("id", snippet.ID))
	return nil
}

// ownedSnippet loads the snippet and checks the caller may change it.
func (s *SnippetService) ownedSnippet(ctx context.Context, id, callerID string) (*model.Snippet, error) {
	snippet, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(snippet, callerID); err != nil {
		return nil, err
	}
	return snippet, nil
}

// authorize is the one ownership rule for every change to a snippet or its
// history: snippets without an owner are editable by anyone, owned ones only
// by their owner.
func authorize(snippet *model.Snippet, callerID string) error {
	if snippet.UserID != "" && snippet.UserID != callerID {
		return apperror.Forbidden("you do not own this snippet")
	}
	return nil
}

func validateFields(title, code, language string) error {
	if utf8.RuneCountInString(title) > MaxSnippetTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("snippet title must be %d characters or less", MaxSnippetTitleLength))
	}
	if len(code) > MaxCodeLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	if len(strings.TrimSpace(language)) > MaxLanguageLength {
		return apperror.ValidationFailed("language",
			fmt.Sprintf("language must be %d characters or less", MaxLanguageLength))
	}
	return nil
}

func normalizeLanguage(language string) string {
	return strings.ToLower(strings.TrimSpace(language))
}
