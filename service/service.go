// Package service ties the page store to the search index: every page
// mutation is followed by a full index rebuild before it returns.
package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/jadedragon942/ddwiki/blob"
	"github.com/jadedragon942/ddwiki/search"
	"github.com/jadedragon942/ddwiki/wiki"
)

// PageStore is the part of wiki.Store the service depends on.
type PageStore interface {
	GetPage(ctx context.Context, address string) (*wiki.Page, error)
	GetPageByID(ctx context.Context, id int64) (*wiki.Page, error)
	ListAllPages(ctx context.Context) ([]wiki.Page, error)
	SavePage(ctx context.Context, in wiki.SaveInput, homePage string) (*wiki.Page, error)
	DeletePage(ctx context.Context, id int64, homePage string) error
	DeleteAttachment(ctx context.Context, pageID int64, fileID string) (*wiki.Page, error)
	EnsureHomePage(ctx context.Context, slug string) (*wiki.Page, error)
	GetFile(ctx context.Context, fileID string) (*blob.Blob, error)
}

type Wiki struct {
	store    PageStore
	index    *search.Index
	homePage string
	logger   *zap.Logger
}

func New(store PageStore, index *search.Index, homePage string, logger *zap.Logger) *Wiki {
	if logger == nil {
		logger = zap.NewNop()
	}
	if homePage == "" {
		homePage = wiki.DefaultHomePage
	}
	return &Wiki{
		store:    store,
		index:    index,
		homePage: homePage,
		logger:   logger,
	}
}

func (w *Wiki) HomePage() string {
	return w.homePage
}

// IndexedDocuments is the size of the current search index.
func (w *Wiki) IndexedDocuments() int {
	return w.index.DocCount()
}

// Init seeds the home page and builds the index for the first time. A
// failed build is returned here since nothing can be searched without it.
func (w *Wiki) Init(ctx context.Context) error {
	if _, err := w.store.EnsureHomePage(ctx, w.homePage); err != nil {
		return fmt.Errorf("failed to ensure home page: %w", err)
	}
	return w.Reindex(ctx)
}

// Reindex rebuilds the search index from every stored page. Concurrent
// rebuilds may finish in any order; the index keeps the one that read the
// store last.
func (w *Wiki) Reindex(ctx context.Context) error {
	ticket := w.index.Ticket()
	pages, err := w.store.ListAllPages(ctx)
	if err != nil {
		return err
	}
	if err := w.index.BuildTicket(ctx, ticket, pages); err != nil {
		return fmt.Errorf("failed to build search index: %w", err)
	}
	return nil
}

// Save stores the edit and then rebuilds the index. A failed rebuild is
// logged; the page is saved regardless.
func (w *Wiki) Save(ctx context.Context, in wiki.SaveInput) (*wiki.Page, error) {
	page, err := w.store.SavePage(ctx, in, w.homePage)
	if err != nil {
		return nil, err
	}
	w.rebuild(ctx, "save", page.ID)
	return page, nil
}

// Delete removes a page and then rebuilds the index.
func (w *Wiki) Delete(ctx context.Context, id int64) error {
	if err := w.store.DeletePage(ctx, id, w.homePage); err != nil {
		return err
	}
	w.rebuild(ctx, "delete", id)
	return nil
}

// DeleteAttachment leaves the index alone: attachments are not indexed.
func (w *Wiki) DeleteAttachment(ctx context.Context, pageID int64, fileID string) (*wiki.Page, error) {
	return w.store.DeleteAttachment(ctx, pageID, fileID)
}

func (w *Wiki) GetPage(ctx context.Context, address string) (*wiki.Page, error) {
	return w.store.GetPage(ctx, address)
}

func (w *Wiki) GetPageByID(ctx context.Context, id int64) (*wiki.Page, error) {
	return w.store.GetPageByID(ctx, id)
}

// GetFile returns an attachment payload, or nil if there is none.
func (w *Wiki) GetFile(ctx context.Context, fileID string) (*blob.Blob, error) {
	return w.store.GetFile(ctx, fileID)
}

// ListPages returns every page sorted by display name.
func (w *Wiki) ListPages(ctx context.Context) ([]wiki.Page, error) {
	pages, err := w.store.ListAllPages(ctx)
	if err != nil {
		return nil, err
	}
	wiki.SortByDisplayName(pages)
	return pages, nil
}

// Hit is a search result resolved to its page.
type Hit struct {
	Page  *wiki.Page `json:"page"`
	Title string     `json:"title"`
	Score float64    `json:"score"`
}

// SearchPages runs term against the index and loads the matching pages,
// best first. Results whose page has gone since the last rebuild are
// skipped. limit <= 0 means no limit.
func (w *Wiki) SearchPages(ctx context.Context, term string, limit int) ([]Hit, error) {
	seq, err := w.index.Search(ctx, term)
	if err != nil {
		return nil, err
	}
	// drain first so no snapshot is held while pages load
	var results []search.Result
	for r := range seq {
		results = append(results, r)
	}

	var hits []Hit
	for _, r := range results {
		id, err := strconv.ParseInt(r.DocumentID, 10, 64)
		if err != nil {
			w.logger.Warn("unexpected search document id", zap.String("document_id", r.DocumentID))
			continue
		}
		page, err := w.store.GetPageByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if page == nil {
			continue
		}
		hits = append(hits, Hit{Page: page, Title: page.Title(), Score: r.Score})
		if limit > 0 && len(hits) >= limit {
			break
		}
	}
	return hits, nil
}

func (w *Wiki) rebuild(ctx context.Context, op string, pageID int64) {
	if err := w.Reindex(ctx); err != nil {
		w.logger.Error("search index rebuild failed",
			zap.String("op", op), zap.Int64("page_id", pageID), zap.Error(err))
	}
}
