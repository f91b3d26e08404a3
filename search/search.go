// Package search keeps an in-memory full-text index of the wiki pages. The
// index is never updated in place: every Build constructs a new one and
// swaps it in once complete.
package search

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"go.uber.org/zap"

	"github.com/jadedragon942/ddwiki/wiki"
)

var (
	// ErrIndexNotBuilt is returned by Search before the first Build.
	ErrIndexNotBuilt = errors.New("search index not built")
	ErrClosed        = errors.New("search index closed")
)

const DefaultPageSize = 50

// Result references a matching page by its id.
type Result struct {
	DocumentID string  `json:"document_id"`
	Score      float64 `json:"score"`
}

// Document is what gets indexed for one page. ID is the page id in decimal
// and is used as the document key.
type Document struct {
	ID       string `json:"-"`
	PageName string `json:"page_name"`
	Content  string `json:"content"`
}

// DocumentFor projects a page onto its search document. Pages without
// content still index their name.
func DocumentFor(p *wiki.Page) Document {
	return Document{
		ID:       strconv.FormatInt(p.ID, 10),
		PageName: p.DisplayName(),
		Content:  p.Text(),
	}
}

type Index struct {
	current atomic.Pointer[snapshot]
	buildMu sync.Mutex
	closed  atomic.Bool
	retired sync.WaitGroup

	// tickets orders builds by when their page list was taken; installed
	// is the ticket of the current snapshot.
	tickets   atomic.Uint64
	installed uint64

	pageSize int
	metrics  *Metrics
	logger   *zap.Logger
}

type Option func(*Index)

// WithPageSize sets how many hits are fetched per underlying query while a
// result sequence is consumed.
func WithPageSize(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.pageSize = n
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(ix *Index) { ix.metrics = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.logger = l
		}
	}
}

// New returns an empty index. Search fails until Build has run once.
func New(opts ...Option) *Index {
	ix := &Index{
		pageSize: DefaultPageSize,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.metrics == nil {
		ix.metrics = NewMetrics("ddwiki", nil)
	}
	return ix
}

// snapshot is one fully built bleve index. Readers register while they
// iterate; retire stops new readers and closes the index once the last one
// is gone.
type snapshot struct {
	idx  bleve.Index
	docs int

	mu       sync.Mutex
	drained  *sync.Cond
	readers  int
	retiring bool
}

func newSnapshot(idx bleve.Index, docs int) *snapshot {
	s := &snapshot{idx: idx, docs: docs}
	s.drained = sync.NewCond(&s.mu)
	return s
}

func (s *snapshot) enter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retiring {
		return false
	}
	s.readers++
	return true
}

func (s *snapshot) leave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers--
	if s.readers == 0 {
		s.drained.Broadcast()
	}
}

func (s *snapshot) retire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.retiring {
		return nil
	}
	s.retiring = true
	for s.readers > 0 {
		s.drained.Wait()
	}
	return s.idx.Close()
}

func newMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("page_name", text)
	doc.AddFieldMappingsAt("content", text)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// Ticket reserves a place in the build order. Take it before reading the
// pages passed to BuildTicket.
func (ix *Index) Ticket() uint64 {
	return ix.tickets.Add(1)
}

// Build indexes pages into a new snapshot and makes it current.
func (ix *Index) Build(ctx context.Context, pages []wiki.Page) error {
	return ix.BuildTicket(ctx, ix.Ticket(), pages)
}

// BuildTicket is Build for pages read after ticket was taken. A build whose
// ticket is older than the current snapshot's is dropped, since the current
// one was made from a later read. The previous snapshot stays readable by
// searches already running on it and is closed once they finish. On error
// the current snapshot is kept.
func (ix *Index) BuildTicket(ctx context.Context, ticket uint64, pages []wiki.Page) error {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()
	if ix.closed.Load() {
		return ErrClosed
	}
	if ticket < ix.installed {
		ix.logger.Debug("dropping stale search index build",
			zap.Uint64("ticket", ticket), zap.Uint64("installed", ix.installed))
		return nil
	}

	start := time.Now()
	idx, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	batch := idx.NewBatch()
	for i := range pages {
		if err := ctx.Err(); err != nil {
			idx.Close()
			return err
		}
		doc := DocumentFor(&pages[i])
		if err := batch.Index(doc.ID, doc); err != nil {
			idx.Close()
			return fmt.Errorf("failed to index page %s: %w", doc.ID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		idx.Close()
		return fmt.Errorf("failed to execute batch: %w", err)
	}

	next := newSnapshot(idx, len(pages))
	ix.installed = ticket
	if old := ix.current.Swap(next); old != nil {
		ix.retired.Add(1)
		go func() {
			defer ix.retired.Done()
			if err := old.retire(); err != nil {
				ix.logger.Warn("failed to close retired search index", zap.Error(err))
			}
		}()
	}

	elapsed := time.Since(start)
	ix.metrics.BuildDuration.Observe(elapsed.Seconds())
	ix.metrics.Documents.Set(float64(len(pages)))
	ix.logger.Debug("search index built", zap.Int("documents", len(pages)), zap.Duration("took", elapsed))
	return nil
}

// Built reports whether Build has completed at least once.
func (ix *Index) Built() bool {
	return ix.current.Load() != nil
}

// DocCount is the number of documents in the current snapshot.
func (ix *Index) DocCount() int {
	s := ix.current.Load()
	if s == nil {
		return 0
	}
	return s.docs
}

// Search returns the documents matching term, best first. The sequence is
// evaluated lazily against the snapshot that is current when iteration
// starts, and every iteration starts over. Empty or malformed terms give an
// empty sequence.
func (ix *Index) Search(ctx context.Context, term string) (iter.Seq[Result], error) {
	if ix.closed.Load() {
		return nil, ErrClosed
	}
	if !ix.Built() {
		ix.metrics.Searches.WithLabelValues("not_built").Inc()
		return nil, ErrIndexNotBuilt
	}

	term = strings.TrimSpace(term)
	if term == "" {
		ix.metrics.Searches.WithLabelValues("empty").Inc()
		return empty, nil
	}
	q := bleve.NewQueryStringQuery(term)
	if _, err := q.Parse(); err != nil {
		ix.metrics.Searches.WithLabelValues("malformed").Inc()
		ix.logger.Debug("ignoring malformed search query", zap.String("term", term), zap.Error(err))
		return empty, nil
	}
	ix.metrics.Searches.WithLabelValues("ok").Inc()

	return func(yield func(Result) bool) {
		s := ix.acquire()
		if s == nil {
			return
		}
		defer s.leave()

		for from := 0; ; from += ix.pageSize {
			req := bleve.NewSearchRequestOptions(q, ix.pageSize, from, false)
			res, err := s.idx.SearchInContext(ctx, req)
			if err != nil {
				ix.logger.Warn("search failed", zap.String("term", term), zap.Error(err))
				return
			}
			for _, hit := range res.Hits {
				if !yield(Result{DocumentID: hit.ID, Score: hit.Score}) {
					return
				}
			}
			if len(res.Hits) < ix.pageSize || uint64(from+len(res.Hits)) >= res.Total {
				return
			}
		}
	}, nil
}

// acquire registers a reader on the current snapshot. It returns nil once
// the index has been closed.
func (ix *Index) acquire() *snapshot {
	for {
		s := ix.current.Load()
		if s == nil {
			return nil
		}
		if s.enter() {
			return s
		}
		if ix.current.Load() == s {
			return nil
		}
	}
}

// Close releases the current snapshot after in-flight searches finish.
// Search fails with ErrClosed afterwards.
func (ix *Index) Close() error {
	ix.buildMu.Lock()
	defer ix.buildMu.Unlock()
	if ix.closed.Load() {
		return nil
	}
	ix.closed.Store(true)

	var err error
	if s := ix.current.Load(); s != nil {
		err = s.retire()
	}
	ix.retired.Wait()
	return err
}

func empty(func(Result) bool) {}
