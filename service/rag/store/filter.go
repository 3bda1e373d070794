package store

import (
	"strings"
	"time"

	"study-assistant-backend/model"
)

// Filters narrows retrieval by chunk metadata. Zero values mean "no
// constraint"; set fields are combined with AND semantics.
type Filters struct {
	// SubjectIDs is a set-membership constraint.
	SubjectIDs []string
	UserID     string
	Author     string
	// Tags matches chunks whose tag set overlaps any of these.
	Tags   []string
	Source string
	// FileExt is compared case-insensitively, without a leading dot.
	FileExt     string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	PageFrom    *int
	PageTo      *int
}

func (f Filters) Empty() bool {
	return len(f.SubjectIDs) == 0 && f.UserID == "" && f.Author == "" &&
		len(f.Tags) == 0 && f.Source == "" && f.FileExt == "" &&
		f.CreatedFrom == nil && f.CreatedTo == nil &&
		f.PageFrom == nil && f.PageTo == nil
}

// Matches evaluates the full predicate against one chunk. Time bounds are
// inclusive; page bounds are best effort and skip chunks without a page.
func (f Filters) Matches(c model.Chunk) bool {
	if len(f.SubjectIDs) > 0 && !contains(f.SubjectIDs, c.SubjectID) {
		return false
	}
	if f.UserID != "" && c.UserID != f.UserID {
		return false
	}
	if f.Author != "" && c.Author != f.Author {
		return false
	}
	if len(f.Tags) > 0 && !overlaps(f.Tags, c.Tags) {
		return false
	}
	if f.Source != "" && c.Source != f.Source {
		return false
	}
	if f.FileExt != "" && !strings.EqualFold(f.FileExt, c.FileExt) {
		return false
	}
	if f.CreatedFrom != nil && c.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && c.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	if f.PageFrom != nil || f.PageTo != nil {
		if c.Page == 0 {
			return false
		}
		if f.PageFrom != nil && c.Page < *f.PageFrom {
			return false
		}
		if f.PageTo != nil && c.Page > *f.PageTo {
			return false
		}
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
