package wiki

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jadedragon942/ddwiki/blob"
	"github.com/jadedragon942/ddwiki/blob/sqlblob"
	"github.com/jadedragon942/ddwiki/orm"
	"github.com/jadedragon942/ddwiki/storage/sqlite"
)

func newTestStore(t *testing.T, logger *zap.Logger) (*Store, blob.Store) {
	t.Helper()
	ctx := context.Background()

	sch := NewSchema()
	sqlblob.AddTables(sch)

	s := sqlite.New()
	o := orm.New(sch).WithStorage(s)
	require.NoError(t, o.Open(ctx, ":memory:"))
	t.Cleanup(func() { s.ResetConnection(ctx) })

	blobs := sqlblob.New(s)
	return NewStore(o, blobs, logger), blobs
}

func TestSaveNewPageWithNamespace(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	page, err := st.SavePage(ctx, SaveInput{Address: "projects/alpha", Body: "# Hello"}, DefaultHomePage)
	require.NoError(t, err)
	require.NotNil(t, page.Namespace)
	assert.Equal(t, "projects", page.Namespace.Name)
	assert.Equal(t, "alpha", page.Name)
	require.Len(t, page.Contents, 1)
	assert.Equal(t, "# Hello", page.Contents[0].Body)
	assert.NotEmpty(t, page.Contents[0].ID)
	assert.False(t, page.LastModified.IsZero())

	got, err := st.GetPage(ctx, "projects/alpha")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, page.ID, got.ID)
	require.NotNil(t, got.Namespace)
	assert.Equal(t, page.Namespace.ID, got.Namespace.ID)
	assert.Equal(t, "projects/alpha", got.DisplayName())

	updated, err := st.SavePage(ctx, SaveInput{
		ID:        page.ID,
		Address:   "projects/alpha",
		ContentID: page.Contents[0].ID,
		Body:      "# Hello World",
	}, DefaultHomePage)
	require.NoError(t, err)
	require.Len(t, updated.Contents, 1)
	assert.Equal(t, "# Hello World", updated.Contents[0].Body)

	got, err = st.GetPage(ctx, "projects/alpha")
	require.NoError(t, err)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "# Hello World", got.Contents[0].Body)
}

func TestSaveSegmentCounts(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	page, err := st.SavePage(ctx, SaveInput{Address: "notes", Body: "one"}, DefaultHomePage)
	require.NoError(t, err)
	first := page.Contents[0].ID

	page, err = st.SavePage(ctx, SaveInput{ID: page.ID, Address: "notes", Body: "two"}, DefaultHomePage)
	require.NoError(t, err)
	require.Len(t, page.Contents, 2)
	second := page.Contents[1].ID

	page, err = st.SavePage(ctx, SaveInput{ID: page.ID, Address: "notes", ContentID: "client-chosen", Body: "three"}, DefaultHomePage)
	require.NoError(t, err)
	require.Len(t, page.Contents, 3)

	page, err = st.SavePage(ctx, SaveInput{ID: page.ID, Address: "notes", ContentID: first, Body: "one again"}, DefaultHomePage)
	require.NoError(t, err)
	require.Len(t, page.Contents, 3)

	got, err := st.GetPageByID(ctx, page.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second, "client-chosen"}, contentIDs(got))
	assert.Equal(t, "one again", got.Contents[0].Body)
	assert.Equal(t, "one again two three", got.Text())
}

func TestGetPageAbsent(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	page, err := st.GetPage(ctx, "nothing/here")
	assert.NoError(t, err)
	assert.Nil(t, page)

	page, err = st.GetPageByID(ctx, 42)
	assert.NoError(t, err)
	assert.Nil(t, page)

	for _, address := range []string{"", "/", "  //  "} {
		page, err = st.GetPage(ctx, address)
		assert.NoError(t, err, "address %q", address)
		assert.Nil(t, page, "address %q", address)
	}
}

func TestPageIDsAreNotReused(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	a, err := st.SavePage(ctx, SaveInput{Address: "a", Body: "a"}, DefaultHomePage)
	require.NoError(t, err)
	b, err := st.SavePage(ctx, SaveInput{Address: "b", Body: "b"}, DefaultHomePage)
	require.NoError(t, err)
	assert.Greater(t, b.ID, a.ID)

	require.NoError(t, st.DeletePage(ctx, b.ID, DefaultHomePage))
	c, err := st.SavePage(ctx, SaveInput{Address: "b", Body: "b"}, DefaultHomePage)
	require.NoError(t, err)
	assert.Greater(t, c.ID, b.ID)
}

func TestNamespaceIsShared(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	alpha, err := st.SavePage(ctx, SaveInput{Address: "projects/alpha", Body: "a"}, DefaultHomePage)
	require.NoError(t, err)
	beta, err := st.SavePage(ctx, SaveInput{Address: "projects/beta", Body: "b"}, DefaultHomePage)
	require.NoError(t, err)
	assert.Equal(t, alpha.Namespace.ID, beta.Namespace.ID)

	other, err := st.SavePage(ctx, SaveInput{Address: "people/bob", Body: "c"}, DefaultHomePage)
	require.NoError(t, err)
	assert.NotEqual(t, alpha.Namespace.ID, other.Namespace.ID)

	pages, err := st.ListAllPages(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	SortByDisplayName(pages)
	assert.Equal(t, "people/bob", pages[0].DisplayName())
	assert.Equal(t, "projects/alpha", pages[1].DisplayName())
	assert.Equal(t, "projects/beta", pages[2].DisplayName())
}

func TestSaveValidation(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	_, err := st.SavePage(ctx, SaveInput{}, DefaultHomePage)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"Name is required"}, verr.Fields["address"])
	assert.Equal(t, []string{"Content is required"}, verr.Fields["body"])

	_, err = st.SavePage(ctx, SaveInput{Address: "/", Body: "x"}, DefaultHomePage)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "address")

	_, err = st.SavePage(ctx, SaveInput{Address: "blank", Body: "   "}, DefaultHomePage)
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "body")

	pages, err := st.ListAllPages(ctx)
	require.NoError(t, err)
	assert.Empty(t, pages)
}

func TestHomePageCannotBeRenamed(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	home, err := st.EnsureHomePage(ctx, DefaultHomePage)
	require.NoError(t, err)

	for _, address := range []string{"Home-Page", "welcome"} {
		_, err = st.SavePage(ctx, SaveInput{ID: home.ID, Address: address, Body: "hi"}, DefaultHomePage)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, address)
		assert.Equal(t, []string{"You cannot modify home page name. Please keep it home-page"}, verr.Fields["address"])
	}

	saved, err := st.SavePage(ctx, SaveInput{
		ID:        home.ID,
		Address:   DefaultHomePage,
		ContentID: home.Contents[0].ID,
		Body:      "welcome",
	}, DefaultHomePage)
	require.NoError(t, err)
	require.Len(t, saved.Contents, 1)
	assert.Equal(t, "welcome", saved.Contents[0].Body)
}

func TestSaveAddressCollision(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	_, err := st.SavePage(ctx, SaveInput{Address: "taken", Body: "first"}, DefaultHomePage)
	require.NoError(t, err)

	_, err = st.SavePage(ctx, SaveInput{Address: "taken", Body: "second"}, DefaultHomePage)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "address")
}

func TestRenamePage(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	page, err := st.SavePage(ctx, SaveInput{Address: "drafts/idea", Body: "text"}, DefaultHomePage)
	require.NoError(t, err)

	moved, err := st.SavePage(ctx, SaveInput{ID: page.ID, Address: "idea", ContentID: page.Contents[0].ID, Body: "text"}, DefaultHomePage)
	require.NoError(t, err)
	assert.Equal(t, page.ID, moved.ID)
	assert.Nil(t, moved.Namespace)

	old, err := st.GetPage(ctx, "drafts/idea")
	require.NoError(t, err)
	assert.Nil(t, old)

	got, err := st.GetPage(ctx, "idea")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Namespace)
}

func TestSaveMissingIDIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	_, err := st.SavePage(ctx, SaveInput{ID: 999, Address: "ghost", Body: "boo"}, DefaultHomePage)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIntegrity)
	var se *StoreError
	assert.ErrorAs(t, err, &se)

	page, err := st.GetPage(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, page)
}

func TestDeleteHomePageIsProtected(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	home, err := st.EnsureHomePage(ctx, DefaultHomePage)
	require.NoError(t, err)

	err = st.DeletePage(ctx, home.ID, DefaultHomePage)
	assert.ErrorIs(t, err, ErrProtected)

	got, err := st.GetPage(ctx, DefaultHomePage)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestDeleteMissingPage(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	assert.ErrorIs(t, st.DeletePage(ctx, 7, DefaultHomePage), ErrPageNotFound)
}

func TestDeletePageRemovesAttachments(t *testing.T) {
	ctx := context.Background()
	st, blobs := newTestStore(t, nil)

	page, err := st.SavePage(ctx, SaveInput{
		Address: "docs/report",
		Body:    "see attached",
		Upload:  &Upload{Filename: "report.csv", MimeType: "text/csv", Data: []byte("a,b\n1,2\n")},
	}, DefaultHomePage)
	require.NoError(t, err)
	page, err = st.SavePage(ctx, SaveInput{
		ID:        page.ID,
		Address:   "docs/report",
		ContentID: page.Contents[0].ID,
		Body:      "see attached",
		Upload:    &Upload{Filename: "chart.png", Data: []byte("\x89PNG\r\n\x1a\n")},
	}, DefaultHomePage)
	require.NoError(t, err)
	require.Len(t, page.Attachments, 2)

	require.NoError(t, st.DeletePage(ctx, page.ID, DefaultHomePage))

	got, err := st.GetPage(ctx, "docs/report")
	require.NoError(t, err)
	assert.Nil(t, got)
	for _, a := range page.Attachments {
		b, err := blobs.Get(ctx, a.FileID)
		require.NoError(t, err)
		assert.Nil(t, b, a.Filename)
	}
}

func TestDeletePageLogsBlobFailures(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	st, _ := newTestStore(t, zap.New(core))

	page, err := st.SavePage(ctx, SaveInput{
		Address: "flaky",
		Body:    "x",
		Upload:  &Upload{Filename: "a.txt", Data: []byte("a")},
	}, DefaultHomePage)
	require.NoError(t, err)

	st.blobs = failingDeletes{st.blobs}
	require.NoError(t, st.DeletePage(ctx, page.ID, DefaultHomePage))
	assert.Equal(t, 1, logs.FilterMessage("failed to delete attachment payload").Len())

	got, err := st.GetPageByID(ctx, page.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUploadMetadata(t *testing.T) {
	ctx := context.Background()
	st, blobs := newTestStore(t, nil)

	page, err := st.SavePage(ctx, SaveInput{
		Address: "files",
		Body:    "attachments below",
		Upload:  &Upload{Filename: `C:\Users\me\notes.txt`, Data: []byte("hello")},
	}, DefaultHomePage)
	require.NoError(t, err)
	require.Len(t, page.Attachments, 1)
	a := page.Attachments[0]
	assert.Equal(t, "notes.txt", a.Filename)
	assert.Contains(t, a.MimeType, "text/plain")

	b, err := blobs.Get(ctx, a.FileID)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, []byte("hello"), b.Data)

	// same filename again is a second attachment
	page, err = st.SavePage(ctx, SaveInput{
		ID:        page.ID,
		Address:   "files",
		ContentID: page.Contents[0].ID,
		Body:      "attachments below",
		Upload:    &Upload{Filename: "notes.txt", Data: []byte("hello again")},
	}, DefaultHomePage)
	require.NoError(t, err)
	require.Len(t, page.Attachments, 2)
	assert.NotEqual(t, page.Attachments[0].FileID, page.Attachments[1].FileID)

	// empty data is no upload
	page, err = st.SavePage(ctx, SaveInput{
		ID:        page.ID,
		Address:   "files",
		ContentID: page.Contents[0].ID,
		Body:      "attachments below",
		Upload:    &Upload{Filename: "empty.txt"},
	}, DefaultHomePage)
	require.NoError(t, err)
	assert.Len(t, page.Attachments, 2)
}

func TestDeleteAttachment(t *testing.T) {
	ctx := context.Background()
	st, blobs := newTestStore(t, nil)

	page, err := st.SavePage(ctx, SaveInput{
		Address: "meeting",
		Body:    "minutes",
		Upload:  &Upload{Filename: "notes.txt", MimeType: "text/plain", Data: []byte("agenda")},
	}, DefaultHomePage)
	require.NoError(t, err)
	fileID := page.Attachments[0].FileID

	page, err = st.DeleteAttachment(ctx, page.ID, fileID)
	require.NoError(t, err)
	_, ok := page.Attachment(fileID)
	assert.False(t, ok)

	b, err := blobs.Get(ctx, fileID)
	require.NoError(t, err)
	assert.Nil(t, b)

	got, err := st.GetPageByID(ctx, page.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Attachments)
	assert.Len(t, got.Contents, 1)
}

func TestDeleteAttachmentNotFound(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	page, err := st.DeleteAttachment(ctx, 3, blob.NewID())
	assert.ErrorIs(t, err, ErrPageNotFound)
	assert.Nil(t, page)

	saved, err := st.SavePage(ctx, SaveInput{Address: "plain", Body: "text"}, DefaultHomePage)
	require.NoError(t, err)

	page, err = st.DeleteAttachment(ctx, saved.ID, blob.NewID())
	assert.ErrorIs(t, err, ErrAttachmentNotFound)
	require.NotNil(t, page)
	assert.Equal(t, saved.ID, page.ID)
}

func TestGetFile(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	page, err := st.SavePage(ctx, SaveInput{
		Address: "pics",
		Body:    "a picture",
		Upload:  &Upload{Filename: "dot.gif", Data: []byte("GIF89a")},
	}, DefaultHomePage)
	require.NoError(t, err)

	b, err := st.GetFile(ctx, page.Attachments[0].FileID)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "dot.gif", b.Filename)
	assert.Equal(t, "image/gif", b.MimeType)

	b, err = st.GetFile(ctx, blob.NewID())
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestEnsureHomePageIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st, _ := newTestStore(t, nil)

	first, err := st.EnsureHomePage(ctx, DefaultHomePage)
	require.NoError(t, err)
	require.Len(t, first.Contents, 1)
	assert.Empty(t, first.Contents[0].Body)

	second, err := st.EnsureHomePage(ctx, DefaultHomePage)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	pages, err := st.ListAllPages(ctx)
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

type failingDeletes struct {
	blob.Store
}

func (failingDeletes) Delete(context.Context, string) error {
	return errors.New("disk on fire")
}
