// Package server exposes the wiki as a JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jadedragon942/ddwiki/search"
	"github.com/jadedragon942/ddwiki/service"
	"github.com/jadedragon942/ddwiki/wiki"
)

type Options struct {
	// Engine is reported by the health check.
	Engine         string
	MaxResults     int
	MaxUploadBytes int64
	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
}

type Server struct {
	wiki   *service.Wiki
	opts   Options
	logger *zap.Logger
	router *chi.Mux
}

func New(w *service.Wiki, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{wiki: w, opts: opts, logger: logger}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(RequestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	api := humachi.New(router, huma.DefaultConfig("ddwiki API", "1.0.0"))
	api.OpenAPI().Info.Description = "Wiki pages, attachments and full-text search"
	s.registerRoutes(api)

	s.router = router
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes(api huma.API) {
	huma.Get(api, "/health", s.Health)

	huma.Get(api, "/pages", s.ListPages)
	huma.Get(api, "/pages/lookup", s.LookupPage)
	huma.Post(api, "/pages/canonicalize", s.Canonicalize)
	huma.Get(api, "/pages/{pageId}", s.GetPage)
	huma.Get(api, "/pages/{pageId}/markdown", s.GetMarkdown)
	huma.Delete(api, "/pages/{pageId}", s.DeletePage)
	huma.Delete(api, "/pages/{pageId}/attachments/{fileId}", s.DeleteAttachment)

	// base64 inflates uploads by a third
	maxBody := s.opts.MaxUploadBytes*4/3 + 1<<20
	huma.Register(api, huma.Operation{
		OperationID:   "save-page",
		Method:        http.MethodPost,
		Path:          "/pages",
		Summary:       "Create or edit a page",
		MaxBodyBytes:  maxBody,
		DefaultStatus: http.StatusOK,
	}, s.SavePage)

	huma.Get(api, "/attachments/{fileId}", s.GetFile)
	huma.Get(api, "/search", s.Search)
}

func (s *Server) Health(ctx context.Context, _ *struct{}) (*HealthResponse, error) {
	resp := &HealthResponse{}
	resp.Body.Status = "ok"
	resp.Body.Storage = s.opts.Engine
	resp.Body.Indexed = s.wiki.IndexedDocuments()
	return resp, nil
}

func (s *Server) ListPages(ctx context.Context, _ *struct{}) (*PageListResponse, error) {
	pages, err := s.wiki.ListPages(ctx)
	if err != nil {
		return nil, s.apiError(err)
	}
	resp := &PageListResponse{}
	resp.Body.Pages = make([]PageSummary, 0, len(pages))
	for i := range pages {
		resp.Body.Pages = append(resp.Body.Pages, summarize(&pages[i]))
	}
	return resp, nil
}

func (s *Server) LookupPage(ctx context.Context, input *LookupInput) (*PageResponse, error) {
	page, err := s.wiki.GetPage(ctx, input.Address)
	if err != nil {
		return nil, s.apiError(err)
	}
	if page == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("page %s not found", input.Address))
	}
	return &PageResponse{Body: page}, nil
}

func (s *Server) GetPage(ctx context.Context, input *PageIDInput) (*PageResponse, error) {
	page, err := s.loadPage(ctx, input.PageID)
	if err != nil {
		return nil, err
	}
	return &PageResponse{Body: page}, nil
}

// GetMarkdown returns the raw segment bodies, separated by blank lines.
func (s *Server) GetMarkdown(ctx context.Context, input *PageIDInput) (*MarkdownResponse, error) {
	page, err := s.loadPage(ctx, input.PageID)
	if err != nil {
		return nil, err
	}
	var buf []byte
	for i, c := range page.Contents {
		if i > 0 {
			buf = append(buf, "\n\n"...)
		}
		buf = append(buf, c.Body...)
	}
	return &MarkdownResponse{ContentType: "text/markdown; charset=utf-8", Body: buf}, nil
}

func (s *Server) SavePage(ctx context.Context, input *SavePageInput) (*PageResponse, error) {
	in := wiki.SaveInput{
		ID:        input.Body.ID,
		Address:   input.Body.Address,
		ContentID: input.Body.ContentID,
		Metadata:  input.Body.Metadata,
		Body:      input.Body.Body,
	}
	if a := input.Body.Attachment; a != nil {
		if int64(len(a.Data)) > s.opts.MaxUploadBytes {
			return nil, huma.NewError(http.StatusRequestEntityTooLarge,
				fmt.Sprintf("attachment exceeds %d bytes", s.opts.MaxUploadBytes))
		}
		in.Upload = &wiki.Upload{Filename: a.Filename, MimeType: a.MimeType, Data: a.Data}
	}

	page, err := s.wiki.Save(ctx, in)
	if err != nil {
		return nil, s.apiError(err)
	}
	return &PageResponse{Body: page}, nil
}

func (s *Server) DeletePage(ctx context.Context, input *PageIDInput) (*DeleteResponse, error) {
	if err := s.wiki.Delete(ctx, input.PageID); err != nil {
		return nil, s.apiError(err)
	}
	resp := &DeleteResponse{}
	resp.Body.Success = true
	resp.Body.Message = "Page deleted successfully"
	return resp, nil
}

func (s *Server) DeleteAttachment(ctx context.Context, input *DeleteAttachmentInput) (*PageResponse, error) {
	page, err := s.wiki.DeleteAttachment(ctx, input.PageID, input.FileID)
	if err != nil {
		return nil, s.apiError(err)
	}
	return &PageResponse{Body: page}, nil
}

func (s *Server) GetFile(ctx context.Context, input *FileInput) (*FileResponse, error) {
	b, err := s.wiki.GetFile(ctx, input.FileID)
	if err != nil {
		return nil, s.apiError(err)
	}
	if b == nil {
		return nil, huma.Error404NotFound("file not found")
	}
	return &FileResponse{
		ContentType:        b.MimeType,
		ContentDisposition: mime.FormatMediaType("inline", map[string]string{"filename": b.Filename}),
		LastModified:       b.LastModified,
		Body:               b.Data,
	}, nil
}

func (s *Server) Search(ctx context.Context, input *SearchInput) (*SearchResponse, error) {
	limit := input.Limit
	if limit == 0 {
		limit = s.opts.MaxResults
	}
	hits, err := s.wiki.SearchPages(ctx, input.Query, limit)
	if err != nil {
		return nil, s.apiError(err)
	}
	resp := &SearchResponse{}
	resp.Body.Query = input.Query
	resp.Body.Hits = hits
	if resp.Body.Hits == nil {
		resp.Body.Hits = []service.Hit{}
	}
	return resp, nil
}

// Canonicalize turns a title into the address a new page would get. An
// empty slug falls back to the home page.
func (s *Server) Canonicalize(ctx context.Context, input *CanonicalizeInput) (*CanonicalizeResponse, error) {
	slug := wiki.CanonicalizeSlug(input.Body.Title)
	address := s.wiki.HomePage()
	if slug != "" {
		address = wiki.JoinAddress(wiki.CanonicalizeSlug(input.Body.Namespace), slug)
	}
	page, err := s.wiki.GetPage(ctx, address)
	if err != nil {
		return nil, s.apiError(err)
	}

	resp := &CanonicalizeResponse{}
	resp.Body.Slug = slug
	resp.Body.Address = address
	resp.Body.Exists = page != nil
	return resp, nil
}

func (s *Server) loadPage(ctx context.Context, id int64) (*wiki.Page, error) {
	page, err := s.wiki.GetPageByID(ctx, id)
	if err != nil {
		return nil, s.apiError(err)
	}
	if page == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("page %d not found", id))
	}
	return page, nil
}

// apiError maps the wiki error taxonomy onto HTTP statuses. Anything
// unrecognized is logged and reported as a 500 without details.
func (s *Server) apiError(err error) error {
	var verr *wiki.ValidationError
	switch {
	case errors.As(err, &verr):
		var details []error
		for field, msgs := range verr.Fields {
			for _, msg := range msgs {
				details = append(details, &huma.ErrorDetail{Location: "body." + field, Message: msg})
			}
		}
		return huma.Error422UnprocessableEntity("validation failed", details...)
	case errors.Is(err, wiki.ErrPageNotFound),
		errors.Is(err, wiki.ErrAttachmentNotFound),
		errors.Is(err, wiki.ErrNamespaceNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, wiki.ErrProtected):
		return huma.Error403Forbidden(err.Error())
	case errors.Is(err, search.ErrIndexNotBuilt), errors.Is(err, search.ErrClosed):
		return huma.Error503ServiceUnavailable(err.Error())
	}
	s.logger.Error("request failed", zap.Error(err))
	return huma.Error500InternalServerError("internal error")
}
