package cache

import (
	"time"

	"github.com/five82/flowreader/internal/flowapi"
)

// Patch is a partial article update. Nil fields are left untouched.
type Patch struct {
	IsRead     *bool
	IsFavorite *bool
	Summary    *string
}

// ReadPatch sets is_read.
func ReadPatch(v bool) Patch { return Patch{IsRead: &v} }

// FavoritePatch sets is_favorite.
func FavoritePatch(v bool) Patch { return Patch{IsFavorite: &v} }

// IsEmpty reports whether the patch touches no field.
func (p Patch) IsEmpty() bool {
	return p.IsRead == nil && p.IsFavorite == nil && p.Summary == nil
}

// Capture returns a patch holding a's current values for every field p
// touches. Applying the result undoes p.
func (p Patch) Capture(a flowapi.Article) Patch {
	var prior Patch
	if p.IsRead != nil {
		v := a.IsRead
		prior.IsRead = &v
	}
	if p.IsFavorite != nil {
		v := a.IsFavorite
		prior.IsFavorite = &v
	}
	if p.Summary != nil {
		v := a.Summary
		prior.Summary = &v
	}
	return prior
}

// Apply writes the patch into a and reports whether anything changed.
func (p Patch) Apply(a *flowapi.Article) bool {
	changed := false
	if p.IsRead != nil && a.IsRead != *p.IsRead {
		a.IsRead = *p.IsRead
		if a.IsRead {
			now := time.Now().UTC()
			a.ReadAt = &now
		} else {
			a.ReadAt = nil
		}
		changed = true
	}
	if p.IsFavorite != nil && a.IsFavorite != *p.IsFavorite {
		a.IsFavorite = *p.IsFavorite
		changed = true
	}
	if p.Summary != nil && a.Summary != *p.Summary {
		a.Summary = *p.Summary
		changed = true
	}
	return changed
}

// Fields names the touched fields, for logging.
func (p Patch) Fields() []string {
	var out []string
	if p.IsRead != nil {
		out = append(out, "is_read")
	}
	if p.IsFavorite != nil {
		out = append(out, "is_favorite")
	}
	if p.Summary != nil {
		out = append(out, "summary")
	}
	return out
}
