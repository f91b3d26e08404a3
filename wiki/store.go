package wiki

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jadedragon942/ddwiki/blob"
	"github.com/jadedragon942/ddwiki/object"
	"github.com/jadedragon942/ddwiki/orm"
	"github.com/jadedragon942/ddwiki/storage"
)

// Store persists pages and namespaces through an ORM and keeps attachment
// payloads in a blob store. Missing pages are reported as a nil page with a
// nil error.
type Store struct {
	orm    *orm.ORM
	blobs  blob.Store
	logger *zap.Logger
	now    func() time.Time

	// mu serializes writers so that sequence allocation and namespace
	// creation never race.
	mu sync.Mutex
}

// NewStore returns a Store over an opened ORM whose schema includes the
// tables from AddTables.
func NewStore(o *orm.ORM, blobs blob.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		orm:    o,
		blobs:  blobs,
		logger: logger,
		now:    time.Now,
	}
}

// GetPage returns the page stored at address with its namespace loaded. An
// address without a name never matches a page.
func (s *Store) GetPage(ctx context.Context, address string) (*Page, error) {
	path := normalizeAddress(address)
	if path == "" {
		return nil, nil
	}
	obj, err := s.orm.FindByKey(ctx, PagesTable, "path", path)
	if err != nil {
		return nil, storeErr("get page", err)
	}
	if obj == nil {
		return nil, nil
	}
	page, err := s.decodePage(ctx, s.orm, obj)
	return page, storeErr("get page", err)
}

func (s *Store) GetPageByID(ctx context.Context, id int64) (*Page, error) {
	page, err := s.loadPage(ctx, s.orm, id)
	return page, storeErr("get page", err)
}

// ListAllPages returns every page in no particular order. See
// SortByDisplayName.
func (s *Store) ListAllPages(ctx context.Context) ([]Page, error) {
	nsObjs, err := s.orm.List(ctx, NamespacesTable)
	if err != nil {
		return nil, storeErr("list namespaces", err)
	}
	namespaces := make(map[int64]*Namespace, len(nsObjs))
	for _, obj := range nsObjs {
		ns, err := decodeNamespace(obj)
		if err != nil {
			return nil, storeErr("list namespaces", err)
		}
		namespaces[ns.ID] = ns
	}

	objs, err := s.orm.List(ctx, PagesTable)
	if err != nil {
		return nil, storeErr("list pages", err)
	}
	pages := make([]Page, 0, len(objs))
	for _, obj := range objs {
		page, nsID, err := decodePageRecord(obj)
		if err != nil {
			return nil, storeErr("list pages", err)
		}
		if nsID != 0 {
			ns, ok := namespaces[nsID]
			if !ok {
				return nil, storeErr("list pages", fmt.Errorf("page %d: %w: %d", page.ID, ErrNamespaceNotFound, nsID))
			}
			page.Namespace = ns
		}
		pages = append(pages, *page)
	}
	return pages, nil
}

// SavePage validates in and writes it as a single page record. A new page
// is created when in.ID is zero; otherwise the page with that id must
// exist. homePage is the slug that may not be renamed.
func (s *Store) SavePage(ctx context.Context, in SaveInput, homePage string) (*Page, error) {
	in.Address = normalizeAddress(in.Address)

	var current *Page
	if in.ID != 0 {
		var err error
		if current, err = s.GetPageByID(ctx, in.ID); err != nil {
			return nil, err
		}
	}
	var currentAddress string
	if current != nil {
		currentAddress = current.DisplayName()
	}
	if verr := validateInput(&in, currentAddress, homePage); verr != nil {
		return nil, verr
	}
	if in.ID != 0 && current == nil {
		return nil, &StoreError{Op: "save page", Err: fmt.Errorf("%w: page %d does not exist", ErrIntegrity, in.ID)}
	}

	taken, err := s.orm.FindByKey(ctx, PagesTable, "path", in.Address)
	if err != nil {
		return nil, storeErr("save page", err)
	}
	if taken != nil && taken.ID != formatID(in.ID) {
		verr := &ValidationError{}
		verr.Add("address", fmt.Sprintf("A page named %s already exists", in.Address))
		return nil, verr
	}

	// The blob goes first: if the page write fails it is merely unreferenced.
	var attachment *Attachment
	if !in.Upload.empty() {
		a, err := s.storeUpload(ctx, in.Upload)
		if err != nil {
			return nil, err
		}
		attachment = a
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var saved *Page
	err = s.orm.RunInTx(ctx, func(tx storage.Tx) error {
		var page *Page
		if in.ID == 0 {
			id, err := nextID(ctx, tx, PagesTable)
			if err != nil {
				return err
			}
			page = &Page{ID: id}
		} else {
			var err error
			if page, err = s.loadPage(ctx, tx, in.ID); err != nil {
				return err
			}
			if page == nil {
				return fmt.Errorf("%w: page %d does not exist", ErrIntegrity, in.ID)
			}
		}

		nsName, hasNS, name := SplitAddress(in.Address)
		page.Name = name
		page.Namespace = nil
		if hasNS {
			ns, err := s.resolveNamespace(ctx, tx, nsName)
			if err != nil {
				return err
			}
			page.Namespace = ns
		}

		page.UpdateOrInsertContent(Content{ID: in.ContentID, Metadata: in.Metadata, Body: in.Body})
		if attachment != nil {
			page.Attachments = append(page.Attachments, *attachment)
		}
		page.LastModified = s.now().UTC()

		if err := writePage(ctx, tx, page); err != nil {
			return err
		}
		saved = page
		return nil
	})
	if err != nil {
		if attachment != nil {
			s.logger.Warn("page save failed, attachment left unreferenced",
				zap.String("file_id", attachment.FileID), zap.Error(err))
		}
		return nil, storeErr("save page", err)
	}

	s.logger.Info("page saved",
		zap.Int64("page_id", saved.ID),
		zap.String("path", saved.DisplayName()),
		zap.Int("contents", len(saved.Contents)),
		zap.Int("attachments", len(saved.Attachments)))
	return saved, nil
}

// DeletePage removes the page and then its attachment payloads. Payloads
// that cannot be removed are logged and left behind.
func (s *Store) DeletePage(ctx context.Context, id int64, homePage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	page, err := s.loadPage(ctx, s.orm, id)
	if err != nil {
		return storeErr("delete page", err)
	}
	if page == nil {
		return ErrPageNotFound
	}
	if strings.EqualFold(page.DisplayName(), homePage) {
		return fmt.Errorf("%w: %s", ErrProtected, page.DisplayName())
	}

	if _, err := s.orm.DeleteByID(ctx, PagesTable, formatID(id)); err != nil {
		return storeErr("delete page", err)
	}
	for _, a := range page.Attachments {
		if err := s.blobs.Delete(ctx, a.FileID); err != nil {
			s.logger.Warn("failed to delete attachment payload",
				zap.Int64("page_id", id), zap.String("file_id", a.FileID), zap.Error(err))
		}
	}

	s.logger.Info("page deleted", zap.Int64("page_id", id), zap.String("path", page.DisplayName()))
	return nil
}

// DeleteAttachment removes fileID from the page and deletes its payload.
// When the page exists but has no such attachment the page is returned
// together with ErrAttachmentNotFound.
func (s *Store) DeleteAttachment(ctx context.Context, pageID int64, fileID string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		page    *Page
		missing bool
	)
	err := s.orm.RunInTx(ctx, func(tx storage.Tx) error {
		var err error
		if page, err = s.loadPage(ctx, tx, pageID); err != nil || page == nil {
			return err
		}
		if !page.RemoveAttachment(fileID) {
			missing = true
			return nil
		}
		page.LastModified = s.now().UTC()
		return writePage(ctx, tx, page)
	})
	if err != nil {
		return nil, storeErr("delete attachment", err)
	}
	if page == nil {
		return nil, ErrPageNotFound
	}
	if missing {
		return page, ErrAttachmentNotFound
	}

	if err := s.blobs.Delete(ctx, fileID); err != nil {
		s.logger.Warn("failed to delete attachment payload",
			zap.Int64("page_id", pageID), zap.String("file_id", fileID), zap.Error(err))
	}
	return page, nil
}

// GetFile returns an attachment payload, or nil if there is none.
func (s *Store) GetFile(ctx context.Context, fileID string) (*blob.Blob, error) {
	b, err := s.blobs.Get(ctx, fileID)
	return b, storeErr("get file", err)
}

// EnsureHomePage creates the page at slug with a single empty segment
// unless it already exists.
func (s *Store) EnsureHomePage(ctx context.Context, slug string) (*Page, error) {
	if page, err := s.GetPage(ctx, slug); err != nil || page != nil {
		return page, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var page *Page
	err := s.orm.RunInTx(ctx, func(tx storage.Tx) error {
		obj, err := tx.FindByKey(ctx, PagesTable, "path", normalizeAddress(slug))
		if err != nil {
			return err
		}
		if obj != nil {
			page, err = s.decodePage(ctx, tx, obj)
			return err
		}

		id, err := nextID(ctx, tx, PagesTable)
		if err != nil {
			return err
		}
		nsName, hasNS, name := SplitAddress(slug)
		page = &Page{
			ID:           id,
			Name:         name,
			Contents:     []Content{{ID: uuid.NewString()}},
			LastModified: s.now().UTC(),
		}
		if hasNS {
			if page.Namespace, err = s.resolveNamespace(ctx, tx, nsName); err != nil {
				return err
			}
		}
		return writePage(ctx, tx, page)
	})
	if err != nil {
		return nil, storeErr("ensure home page", err)
	}
	return page, nil
}

func (s *Store) storeUpload(ctx context.Context, u *Upload) (*Attachment, error) {
	filename := uploadFilename(u.Filename)
	mimeType := u.MimeType
	if mimeType == "" {
		mimeType = detectMIMEType(filename, u.Data)
	}
	fileID, err := s.blobs.Put(ctx, u.Data, filename, mimeType)
	if err != nil {
		return nil, storeErr("store attachment", err)
	}
	return &Attachment{
		FileID:       fileID,
		Filename:     filename,
		MimeType:     mimeType,
		LastModified: s.now().UTC(),
	}, nil
}

func (s *Store) loadPage(ctx context.Context, q storage.Querier, id int64) (*Page, error) {
	obj, err := q.FindByID(ctx, PagesTable, formatID(id))
	if err != nil || obj == nil {
		return nil, err
	}
	return s.decodePage(ctx, q, obj)
}

func (s *Store) decodePage(ctx context.Context, q storage.Querier, obj *object.Object) (*Page, error) {
	page, nsID, err := decodePageRecord(obj)
	if err != nil {
		return nil, err
	}
	if nsID == 0 {
		return page, nil
	}
	nsObj, err := q.FindByID(ctx, NamespacesTable, formatID(nsID))
	if err != nil {
		return nil, err
	}
	if nsObj == nil {
		return nil, fmt.Errorf("page %d: %w: %d", page.ID, ErrNamespaceNotFound, nsID)
	}
	if page.Namespace, err = decodeNamespace(nsObj); err != nil {
		return nil, err
	}
	return page, nil
}

// resolveNamespace returns the namespace called name, creating it first if
// needed.
func (s *Store) resolveNamespace(ctx context.Context, tx storage.Tx, name string) (*Namespace, error) {
	obj, err := tx.FindByKey(ctx, NamespacesTable, "name", name)
	if err != nil {
		return nil, err
	}
	if obj != nil {
		return decodeNamespace(obj)
	}

	id, err := nextID(ctx, tx, NamespacesTable)
	if err != nil {
		return nil, err
	}
	ns := &Namespace{ID: id, Name: name}
	rec := object.NewRecord(NamespacesTable, formatID(id))
	rec.SetField("name", name)
	rec.SetField("description", nil)
	if _, _, err := tx.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create namespace %s: %w", name, err)
	}
	s.logger.Info("namespace created", zap.Int64("namespace_id", id), zap.String("name", name))
	return ns, nil
}

// nextID hands out the next value of the named sequence. Values start at 1
// and are never handed out twice.
func nextID(ctx context.Context, q storage.Querier, sequence string) (int64, error) {
	obj, err := q.FindByID(ctx, SequencesTable, sequence)
	if err != nil {
		return 0, err
	}
	next := int64(1)
	if obj != nil {
		if n, ok := obj.GetInt64("next_id"); ok && n > 0 {
			next = n
		}
	}

	rec := object.NewRecord(SequencesTable, sequence)
	rec.SetField("next_id", next+1)
	if _, _, err := q.Insert(ctx, rec); err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", sequence, err)
	}
	return next, nil
}

func writePage(ctx context.Context, q storage.Querier, page *Page) error {
	rec, err := encodePage(page)
	if err != nil {
		return err
	}
	if _, _, err := q.Insert(ctx, rec); err != nil {
		return fmt.Errorf("failed to write page %d: %w", page.ID, err)
	}
	return nil
}

func encodePage(page *Page) (*object.Object, error) {
	rec := object.NewRecord(PagesTable, formatID(page.ID))
	rec.SetField("path", page.DisplayName())
	rec.SetField("name", page.Name)
	if page.Namespace != nil {
		rec.SetField("namespace_id", page.Namespace.ID)
	} else {
		rec.SetField("namespace_id", nil)
	}

	contents := page.Contents
	if contents == nil {
		contents = []Content{}
	}
	attachments := page.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	if err := rec.SetJSON("contents", contents); err != nil {
		return nil, err
	}
	if err := rec.SetJSON("attachments", attachments); err != nil {
		return nil, err
	}
	rec.SetTime("last_modified", page.LastModified)
	return rec, nil
}

// decodePageRecord returns the page without its namespace and the id of the
// namespace, zero when there is none.
func decodePageRecord(obj *object.Object) (*Page, int64, error) {
	id, err := strconv.ParseInt(obj.ID, 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid page id %q: %w", obj.ID, err)
	}
	page := &Page{ID: id}
	page.Name, _ = obj.GetString("name")
	page.LastModified, _ = obj.GetTime("last_modified")
	if err := obj.DecodeJSON("contents", &page.Contents); err != nil {
		return nil, 0, err
	}
	if err := obj.DecodeJSON("attachments", &page.Attachments); err != nil {
		return nil, 0, err
	}
	nsID, _ := obj.GetInt64("namespace_id")
	return page, nsID, nil
}

func decodeNamespace(obj *object.Object) (*Namespace, error) {
	id, err := strconv.ParseInt(obj.ID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid namespace id %q: %w", obj.ID, err)
	}
	ns := &Namespace{ID: id}
	ns.Name, _ = obj.GetString("name")
	if desc, ok := obj.GetString("description"); ok {
		ns.Description = &desc
	}
	return ns, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func normalizeAddress(address string) string {
	ns, hasNS, name := SplitAddress(address)
	if !hasNS {
		return name
	}
	return JoinAddress(ns, name)
}

// uploadFilename strips any directory part a browser may send.
func uploadFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "attachment"
	}
	return filepath.Clean(name)
}

func detectMIMEType(filename string, data []byte) string {
	if t := mime.TypeByExtension(filepath.Ext(filename)); t != "" {
		return t
	}
	return http.DetectContentType(data)
}
