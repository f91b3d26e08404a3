package wiki

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultHomePage is the slug of the page that can be neither deleted nor
// renamed.
const DefaultHomePage = "home-page"

// Namespace groups pages under a common address prefix. It is created the
// first time a page is saved under it and never changes afterwards.
type Namespace struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

// Content is one independently editable markdown segment of a page.
type Content struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Body     string            `json:"body"`
}

// Attachment describes a file whose payload lives in the blob store.
type Attachment struct {
	FileID       string    `json:"file_id"`
	Filename     string    `json:"filename"`
	MimeType     string    `json:"mime_type"`
	LastModified time.Time `json:"last_modified"`
}

type Page struct {
	ID           int64        `json:"id"`
	Namespace    *Namespace   `json:"namespace,omitempty"`
	Name         string       `json:"name"`
	Contents     []Content    `json:"contents"`
	Attachments  []Attachment `json:"attachments"`
	LastModified time.Time    `json:"last_modified"`
}

// DisplayName is the page address: "namespace/name", or just the name.
func (p *Page) DisplayName() string {
	if p.Namespace == nil {
		return p.Name
	}
	return JoinAddress(p.Namespace.Name, p.Name)
}

func (p *Page) Title() string {
	return DisplayTitle(p.DisplayName())
}

// UpdateOrInsertContent replaces the metadata and body of the segment with
// c's id, keeping its position. Otherwise c is appended; an empty id is
// given a fresh one first. It returns the stored segment and whether it was
// appended.
func (p *Page) UpdateOrInsertContent(c Content) (Content, bool) {
	if c.ID != "" {
		for i := range p.Contents {
			if p.Contents[i].ID == c.ID {
				p.Contents[i].Metadata = c.Metadata
				p.Contents[i].Body = c.Body
				return p.Contents[i], false
			}
		}
	} else {
		c.ID = uuid.NewString()
	}
	p.Contents = append(p.Contents, c)
	return c, true
}

func (p *Page) Content(id string) (Content, bool) {
	for _, c := range p.Contents {
		if c.ID == id {
			return c, true
		}
	}
	return Content{}, false
}

func (p *Page) Attachment(fileID string) (Attachment, bool) {
	for _, a := range p.Attachments {
		if a.FileID == fileID {
			return a, true
		}
	}
	return Attachment{}, false
}

// RemoveAttachment drops the entry for fileID and reports whether there
// was one.
func (p *Page) RemoveAttachment(fileID string) bool {
	n := len(p.Attachments)
	p.Attachments = slices.DeleteFunc(p.Attachments, func(a Attachment) bool {
		return a.FileID == fileID
	})
	return len(p.Attachments) != n
}

// Text joins the segment bodies with a space.
func (p *Page) Text() string {
	bodies := make([]string, 0, len(p.Contents))
	for _, c := range p.Contents {
		bodies = append(bodies, c.Body)
	}
	return strings.Join(bodies, " ")
}

// SortByDisplayName orders pages by address, the order the sidebar uses.
func SortByDisplayName(pages []Page) {
	slices.SortStableFunc(pages, func(a, b Page) int {
		return strings.Compare(a.DisplayName(), b.DisplayName())
	})
}

// Upload is a file submitted together with a page edit. Empty data counts
// as no upload.
type Upload struct {
	Filename string
	MimeType string
	Data     []byte
}

func (u *Upload) empty() bool {
	return u == nil || len(u.Data) == 0
}

// SaveInput is one page edit. ID is zero for a new page, ContentID empty for
// a new segment.
type SaveInput struct {
	ID        int64             `json:"id"`
	Address   string            `json:"address" validate:"required"`
	ContentID string            `json:"content_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Body      string            `json:"body" validate:"required"`
	Upload    *Upload           `json:"-"`
}

// Renderer converts markdown to sanitized HTML.
type Renderer interface {
	Render(markdown string) (string, error)
}
