package server

import (
	"time"

	"github.com/jadedragon942/ddwiki/service"
	"github.com/jadedragon942/ddwiki/wiki"
)

// PageSummary is one sidebar entry.
type PageSummary struct {
	ID           int64     `json:"id" example:"5" doc:"Page ID"`
	Path         string    `json:"path" example:"projects/alpha" doc:"Page address"`
	Title        string    `json:"title" example:"Projects/Alpha" doc:"Display title"`
	LastModified time.Time `json:"last_modified" doc:"Last modification time"`
}

func summarize(p *wiki.Page) PageSummary {
	return PageSummary{
		ID:           p.ID,
		Path:         p.DisplayName(),
		Title:        p.Title(),
		LastModified: p.LastModified,
	}
}

type PageResponse struct {
	Body *wiki.Page
}

type PageListResponse struct {
	Body struct {
		Pages []PageSummary `json:"pages" doc:"All pages ordered by address"`
	}
}

type PageIDInput struct {
	PageID int64 `path:"pageId" minimum:"1" example:"5" doc:"Page ID"`
}

type LookupInput struct {
	Address string `query:"address" required:"true" example:"projects/alpha" doc:"Page address, namespace/name or name"`
}

type AttachmentUpload struct {
	Filename string `json:"filename" required:"true" example:"notes.txt" doc:"Original file name"`
	MimeType string `json:"mime_type,omitempty" example:"text/plain" doc:"MIME type, detected when omitted"`
	Data     []byte `json:"data" doc:"File content, base64 encoded"`
}

type SavePageInput struct {
	Body struct {
		ID         int64             `json:"id,omitempty" example:"5" doc:"ID of the page being edited, omitted for a new page"`
		Address    string            `json:"address" example:"projects/alpha" doc:"Page address"`
		ContentID  string            `json:"content_id,omitempty" doc:"Segment to replace, omitted to append a new one"`
		Metadata   map[string]string `json:"metadata,omitempty" doc:"Segment metadata"`
		Body       string            `json:"body" example:"# Hello" doc:"Markdown body"`
		Attachment *AttachmentUpload `json:"attachment,omitempty" doc:"File to attach"`
	}
}

type DeleteResponse struct {
	Body struct {
		Success bool   `json:"success" example:"true" doc:"Whether the deletion was successful"`
		Message string `json:"message" example:"Page deleted successfully" doc:"Success message"`
	}
}

type DeleteAttachmentInput struct {
	PageID int64  `path:"pageId" minimum:"1" example:"5" doc:"Page ID"`
	FileID string `path:"fileId" doc:"Attachment file ID"`
}

type FileInput struct {
	FileID string `path:"fileId" doc:"Attachment file ID"`
}

// FileResponse streams an attachment with its stored metadata.
type FileResponse struct {
	ContentType        string    `header:"Content-Type"`
	ContentDisposition string    `header:"Content-Disposition"`
	LastModified       time.Time `header:"Last-Modified"`
	Body               []byte
}

type MarkdownResponse struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type SearchInput struct {
	Query string `query:"q" example:"hello" doc:"Search terms"`
	Limit int    `query:"limit" minimum:"0" doc:"Maximum number of results, 0 for the configured default"`
}

type SearchResponse struct {
	Body struct {
		Query string        `json:"query" doc:"Search terms as received"`
		Hits  []service.Hit `json:"hits" doc:"Matching pages, best first"`
	}
}

type CanonicalizeInput struct {
	Body struct {
		Title     string `json:"title" required:"true" example:"My New Page" doc:"Title to turn into a page name"`
		Namespace string `json:"namespace,omitempty" example:"projects" doc:"Optional namespace"`
	}
}

type CanonicalizeResponse struct {
	Body struct {
		Slug    string `json:"slug" example:"my-new-page" doc:"Canonical page name"`
		Address string `json:"address" example:"projects/my-new-page" doc:"Full page address"`
		Exists  bool   `json:"exists" doc:"Whether a page is already stored at the address"`
	}
}

type HealthResponse struct {
	Body struct {
		Status  string `json:"status" example:"ok" doc:"Health status"`
		Storage string `json:"storage" example:"sqlite" doc:"Current storage engine"`
		Indexed int    `json:"indexed" doc:"Documents in the search index"`
	}
}
