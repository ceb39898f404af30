package content

import (
	"time"

	"github.com/mmont5/megarray/id"
)

// Version is an immutable snapshot of a content item's body. Versions are
// numbered from 1 per content item, strictly increasing without gaps. A new
// version is created only when Text or MediaRefs changed relative to the
// latest version; title-only edits do not version.
type Version struct {
	ID        id.VersionID `json:"id"`
	ContentID id.ContentID `json:"content_id"`
	Number    int          `json:"number"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	MediaRefs []string     `json:"media_refs,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// snapshotVersion builds version n of the given content.
func snapshotVersion(c *Content, n int, now time.Time) *Version {
	return &Version{
		ID:        id.NewVersionID(),
		ContentID: c.ID,
		Number:    n,
		Title:     c.Title,
		Text:      c.Text,
		MediaRefs: append([]string(nil), c.MediaRefs...),
		CreatedAt: now,
	}
}

// bodyChanged reports whether Text or MediaRefs differ between the content
// and the given version. Media order is significant.
func bodyChanged(c *Content, v *Version) bool {
	if c.Text != v.Text {
		return true
	}
	if len(c.MediaRefs) != len(v.MediaRefs) {
		return true
	}
	for i := range c.MediaRefs {
		if c.MediaRefs[i] != v.MediaRefs[i] {
			return true
		}
	}
	return false
}
