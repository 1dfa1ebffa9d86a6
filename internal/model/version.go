package model

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/sakif/snippetvault/internal/diff"
)

// Version is an immutable, numbered snapshot of a snippet. It carries a full
// copy of the snippet's fields, not a delta.
type Version struct {
	ID                string    `json:"id"                db:"id"`
	SnippetID         string    `json:"snippetId"         db:"snippet_id"`
	VersionNumber     int       `json:"versionNumber"     db:"version_number"`
	Title             string    `json:"title"             db:"title"`
	Description       string    `json:"description"       db:"description"`
	Code              string    `json:"code"              db:"code"`
	Language          string    `json:"language"          db:"language"`
	AuthorID          string    `json:"authorId"          db:"author_id"`
	ChangeDescription string    `json:"changeDescription" db:"change_description"`
	ContentHash       string    `json:"contentHash"       db:"content_hash"`
	CreatedAt         time.Time `json:"createdAt"         db:"created_at"`
}

// SnapshotOf builds an unsaved Version carrying the snippet's current fields.
func SnapshotOf(s *Snippet, number int, authorID, changeDescription string) *Version {
	return &Version{
		SnippetID:         s.ID,
		VersionNumber:     number,
		Title:             s.Title,
		Description:       s.Description,
		Code:              s.Code,
		Language:          s.Language,
		AuthorID:          authorID,
		ChangeDescription: changeDescription,
	}
}

// ApplyTo overwrites the snippet's content fields with this snapshot.
// Identity, ownership and timestamps are left alone.
func (v *Version) ApplyTo(s *Snippet) {
	s.Title = v.Title
	s.Description = v.Description
	s.Code = v.Code
	s.Language = v.Language
}

// VersionComparison is the result of comparing two versions of one snippet.
type VersionComparison struct {
	From               *Version    `json:"from"`
	To                 *Version    `json:"to"`
	TitleChanged       bool        `json:"titleChanged"`
	DescriptionChanged bool        `json:"descriptionChanged"`
	CodeChanged        bool        `json:"codeChanged"`
	LanguageChanged    bool        `json:"languageChanged"`
	Diff               []diff.Line `json:"diff"`
	Stats              diff.Stats  `json:"stats"`
}

// HashContent returns the hex BLAKE2b-256 digest of the snapshot fields.
// Each field is length-prefixed so ("ab", "c") and ("a", "bc") differ.
func HashContent(v *Version) string {
	h, _ := blake2b.New256(nil) // only fails for oversized keys
	for _, field := range []string{v.Title, v.Description, v.Code, v.Language} {
		var size [8]byte
		binary.BigEndian.PutUint64(size[:], uint64(len(field)))
		h.Write(size[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}
