package service

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jadedragon942/ddwiki/blob/sqlblob"
	"github.com/jadedragon942/ddwiki/orm"
	"github.com/jadedragon942/ddwiki/search"
	"github.com/jadedragon942/ddwiki/storage/sqlite"
	"github.com/jadedragon942/ddwiki/wiki"
)

type fixture struct {
	wiki  *Wiki
	store *wiki.Store
	index *search.Index
}

func newFixture(t *testing.T, logger *zap.Logger) *fixture {
	t.Helper()
	ctx := context.Background()

	sch := wiki.NewSchema()
	sqlblob.AddTables(sch)
	s := sqlite.New()
	o := orm.New(sch).WithStorage(s)
	require.NoError(t, o.Open(ctx, ":memory:"))
	t.Cleanup(func() { s.ResetConnection(ctx) })

	store := wiki.NewStore(o, sqlblob.New(s), logger)
	index := search.New()
	t.Cleanup(func() { index.Close() })

	w := New(store, index, wiki.DefaultHomePage, logger)
	require.NoError(t, w.Init(ctx))
	return &fixture{wiki: w, store: store, index: index}
}

func titles(hits []Hit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Title)
	}
	return out
}

func TestInitSeedsHomePage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	home, err := f.wiki.GetPage(ctx, wiki.DefaultHomePage)
	require.NoError(t, err)
	require.NotNil(t, home)
	assert.True(t, f.index.Built())
	assert.Equal(t, 1, f.index.DocCount())

	// a second Init is harmless
	require.NoError(t, f.wiki.Init(ctx))
	pages, err := f.wiki.ListPages(ctx)
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestSearchBeforeInit(t *testing.T) {
	w := New(nil, search.New(), "", nil)
	_, err := w.SearchPages(context.Background(), "x", 0)
	assert.ErrorIs(t, err, search.ErrIndexNotBuilt)
	assert.Equal(t, wiki.DefaultHomePage, w.HomePage())
}

func TestSaveIsSearchable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	page, err := f.wiki.Save(ctx, wiki.SaveInput{Address: "projects/alpha", Body: "# Hello"})
	require.NoError(t, err)

	hits, err := f.wiki.SearchPages(ctx, "hello", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, page.ID, hits[0].Page.ID)
	assert.Equal(t, "Projects/Alpha", hits[0].Title)

	_, err = f.wiki.Save(ctx, wiki.SaveInput{
		ID:        page.ID,
		Address:   "projects/alpha",
		ContentID: page.Contents[0].ID,
		Body:      "# Goodbye",
	})
	require.NoError(t, err)

	hits, err = f.wiki.SearchPages(ctx, "hello", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
	hits, err = f.wiki.SearchPages(ctx, "goodbye", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestDeleteLeavesSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	page, err := f.wiki.Save(ctx, wiki.SaveInput{Address: "temp", Body: "ephemeral thoughts"})
	require.NoError(t, err)
	require.NoError(t, f.wiki.Delete(ctx, page.ID))

	hits, err := f.wiki.SearchPages(ctx, "ephemeral", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	home, err := f.wiki.GetPage(ctx, wiki.DefaultHomePage)
	require.NoError(t, err)
	assert.ErrorIs(t, f.wiki.Delete(ctx, home.ID), wiki.ErrProtected)
}

func TestDeleteAttachmentDoesNotRebuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	page, err := f.wiki.Save(ctx, wiki.SaveInput{
		Address: "files",
		Body:    "attachments",
		Upload:  &wiki.Upload{Filename: "notes.txt", Data: []byte("notes")},
	})
	require.NoError(t, err)

	// written behind the service's back, so only a rebuild would index it
	_, err = f.store.SavePage(ctx, wiki.SaveInput{Address: "hidden", Body: "platypus"}, wiki.DefaultHomePage)
	require.NoError(t, err)

	page, err = f.wiki.DeleteAttachment(ctx, page.ID, page.Attachments[0].FileID)
	require.NoError(t, err)
	assert.Empty(t, page.Attachments)

	hits, err := f.wiki.SearchPages(ctx, "platypus", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, f.wiki.Reindex(ctx))
	hits, err = f.wiki.SearchPages(ctx, "platypus", 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestRebuildFailureIsNotASaveFailure(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.ErrorLevel)
	f := newFixture(t, zap.New(core))

	require.NoError(t, f.index.Close())
	page, err := f.wiki.Save(ctx, wiki.SaveInput{Address: "still-saved", Body: "yes"})
	require.NoError(t, err)
	require.NotNil(t, page)

	assert.Equal(t, 1, logs.FilterMessage("search index rebuild failed").Len())
	got, err := f.wiki.GetPage(ctx, "still-saved")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestValidationErrorSkipsRebuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.wiki.Save(ctx, wiki.SaveInput{Address: "x"})
	var verr *wiki.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, f.index.DocCount())
}

func TestSearchPagesSkipsVanishedPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	a, err := f.wiki.Save(ctx, wiki.SaveInput{Address: "a", Body: "shared word"})
	require.NoError(t, err)
	_, err = f.wiki.Save(ctx, wiki.SaveInput{Address: "b", Body: "shared word"})
	require.NoError(t, err)

	require.NoError(t, f.store.DeletePage(ctx, a.ID, wiki.DefaultHomePage))

	hits, err := f.wiki.SearchPages(ctx, "shared", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, titles(hits))
}

func TestSearchPagesLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for _, addr := range []string{"one", "two", "three"} {
		_, err := f.wiki.Save(ctx, wiki.SaveInput{Address: addr, Body: "common"})
		require.NoError(t, err)
	}
	hits, err := f.wiki.SearchPages(ctx, "common", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestListPagesSorted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	for _, addr := range []string{"zeta", "alpha/one", "beta"} {
		_, err := f.wiki.Save(ctx, wiki.SaveInput{Address: addr, Body: "x"})
		require.NoError(t, err)
	}
	pages, err := f.wiki.ListPages(ctx)
	require.NoError(t, err)

	var names []string
	for _, p := range pages {
		names = append(names, p.DisplayName())
	}
	assert.Equal(t, []string{"alpha/one", "beta", "home-page", "zeta"}, names)
}

// pausingStore holds the first ListAllPages call after it has read the
// pages, until release is closed.
type pausingStore struct {
	*wiki.Store
	armed   atomic.Bool
	listed  chan struct{}
	release chan struct{}
}

func (p *pausingStore) ListAllPages(ctx context.Context) ([]wiki.Page, error) {
	pages, err := p.Store.ListAllPages(ctx)
	if p.armed.CompareAndSwap(true, false) {
		close(p.listed)
		<-p.release
	}
	return pages, err
}

func TestOutOfOrderRebuildsKeepNewestPages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	store := &pausingStore{Store: f.store, listed: make(chan struct{}), release: make(chan struct{})}
	w := New(store, f.index, wiki.DefaultHomePage, nil)

	store.armed.Store(true)
	saved := make(chan error, 1)
	go func() {
		_, err := w.Save(ctx, wiki.SaveInput{Address: "alpha", Body: "first aardvark"})
		saved <- err
	}()

	<-store.listed
	_, err := w.Save(ctx, wiki.SaveInput{Address: "beta", Body: "second bandicoot"})
	require.NoError(t, err)

	close(store.release)
	require.NoError(t, <-saved)

	hits, err := w.SearchPages(ctx, "bandicoot", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta"}, titles(hits))

	hits, err = w.SearchPages(ctx, "aardvark", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha"}, titles(hits))
}
