package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docsync/internal/logger"
	"docsync/internal/mirror"
	"docsync/internal/model"
	"docsync/internal/repository"
	"docsync/internal/storage"
)

var (
	ErrIDRequired = errors.New("id is required")
	ErrNotFound   = errors.New("document not found")
	// ErrInvalidPayload is returned when the producer's data URI cannot be decoded.
	ErrInvalidPayload = errors.New("invalid document payload")
	// ErrBackendUnavailable means a storage backend failed to initialise.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	// ErrPersistence means a save failed in every backend; the producer must retry.
	ErrPersistence = errors.New("document could not be persisted")
)

// Blob layout. Attributes carry everything needed to rebuild a document from
// the blob alone.
const (
	DocumentsPrefix     = "documents/"
	HeaderDocumentID    = "X-Document-ID"
	HeaderDocumentMeta  = "X-Document-Meta"
	HeaderDocumentCTime = "X-Document-Created"
)

// SaveResult is returned to the producer.
type SaveResult struct {
	ID       string `json:"id"`
	FileName string `json:"fileName"`
}

// DocumentService is the durable store: one logical repository of pending
// documents over a blob store and a record store.
type DocumentService interface {
	// Save persists a document in every available backend. It fails with
	// ErrPersistence only when no backend accepted it.
	Save(ctx context.Context, meta model.Metadata, dataURI string) (*SaveResult, error)

	// FindByID looks in the blob store first and falls back to the record store.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// FindByFileName is a convenience lookup by the human-readable name.
	FindByFileName(ctx context.Context, fileName string) (*model.Document, error)

	// Delete removes a document from every store. Absence is not an error.
	Delete(ctx context.Context, id string) error

	// ListPending returns every pending document with its payload.
	ListPending(ctx context.Context) ([]model.Document, error)
}

type documentService struct {
	store  storage.Storage
	repo   repository.DocumentRepository
	mirror mirror.Mirror
	namer  model.FileNamer
	now    func() time.Time
	newID  func() string
	log    *logger.Logger

	mu     sync.Mutex
	claims map[string]struct{} // blob names with a save in flight
}

// Option customises a DocumentService.
type Option func(*documentService)

// WithMirror enables best-effort mirroring. A nil mirror disables it.
func WithMirror(m mirror.Mirror) Option {
	return func(s *documentService) { s.mirror = m }
}

// WithFileNamer sets the naming scheme.
func WithFileNamer(n model.FileNamer) Option {
	return func(s *documentService) { s.namer = n }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *documentService) { s.now = now }
}

// WithIDGenerator overrides the UUIDv7 id source.
func WithIDGenerator(f func() string) Option {
	return func(s *documentService) { s.newID = f }
}

// WithLogger sets the structured logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *documentService) { s.log = l }
}

// NewDocumentService constructs a DocumentService. Either backend may be nil
// when it failed to initialise; operations needing it degrade accordingly.
func NewDocumentService(store storage.Storage, repo repository.DocumentRepository, opts ...Option) DocumentService {
	s := &documentService{
		store:  store,
		repo:   repo,
		now:    time.Now,
		newID:  newDocumentID,
		log:    logger.Nop(),
		claims: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("document_store")
	return s
}

// newDocumentID returns a time-ordered UUIDv7, falling back to v4.
func newDocumentID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func blobKey(fileName string) string {
	return DocumentsPrefix + fileName
}

func fileNameOf(key string) string {
	return strings.TrimPrefix(key, DocumentsPrefix)
}

// uniqueFileName appends the document id to a name another document holds.
func uniqueFileName(name, id string) string {
	return strings.TrimSuffix(name, ".pdf") + "_" + id + ".pdf"
}

func (s *documentService) Save(ctx context.Context, meta model.Metadata, dataURI string) (*SaveResult, error) {
	_, payload, err := model.DecodeDataURI(dataURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	now := s.now().UTC()
	doc := &model.Document{
		ID:        s.newID(),
		FileName:  s.namer.Name(meta, now),
		Metadata:  meta,
		Payload:   payload,
		DataURI:   dataURI,
		Timestamp: now,
	}

	blobErr := s.putBlob(ctx, doc)
	recErr := s.putRecord(ctx, doc)
	if blobErr != nil && recErr != nil {
		err := fmt.Errorf("%w: %w", ErrPersistence, errors.Join(blobErr, recErr))
		s.log.Error("document_save_failed", err, map[string]any{"file_name": doc.FileName})
		return nil, err
	}
	if blobErr != nil {
		s.log.Warn("document_blob_write_failed", blobErr, map[string]any{"document_id": doc.ID})
	}
	if recErr != nil {
		s.log.Warn("document_record_write_failed", recErr, map[string]any{"document_id": doc.ID})
	}

	if s.mirror != nil {
		s.mirror.TryWrite(doc.FileName, payload)
	}

	s.log.Info("document_saved", map[string]any{
		"document_id": doc.ID,
		"file_name":   doc.FileName,
		"size":        len(payload),
		"partial":     blobErr != nil || recErr != nil,
	})
	return &SaveResult{ID: doc.ID, FileName: doc.FileName}, nil
}

func (s *documentService) putBlob(ctx context.Context, doc *model.Document) error {
	if s.store == nil {
		return fmt.Errorf("blob store: %w", ErrBackendUnavailable)
	}
	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	name, release := s.claimName(ctx, doc)
	defer release()
	doc.FileName = name

	_, err = s.store.Put(ctx, blobKey(name), bytes.NewReader(doc.Payload), storage.PutObjectOptions{
		Size:        int64(len(doc.Payload)),
		ContentType: model.PDFMediaType,
		Metadata: map[string]string{
			HeaderDocumentID:    doc.ID,
			HeaderDocumentMeta:  base64.StdEncoding.EncodeToString(metaJSON),
			HeaderDocumentCTime: strconv.FormatInt(doc.Timestamp.UnixMilli(), 10),
		},
	})
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	return nil
}

// claimName reserves a blob name for doc. A name held by another document,
// in the store or by a save still in flight, gets the document id appended.
// The release func frees the reservation once the write is done.
func (s *documentService) claimName(ctx context.Context, doc *model.Document) (string, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := doc.FileName
	if _, inFlight := s.claims[name]; inFlight || s.blobTaken(ctx, name, doc.ID) {
		name = uniqueFileName(name, doc.ID)
		s.log.Info("document_name_taken", map[string]any{"document_id": doc.ID, "file_name": name})
	}
	s.claims[name] = struct{}{}
	return name, func() {
		s.mu.Lock()
		delete(s.claims, name)
		s.mu.Unlock()
	}
}

// blobTaken reports whether name is stored for a different document. A
// failed check counts as taken.
func (s *documentService) blobTaken(ctx context.Context, name, id string) bool {
	info, err := s.store.Stat(ctx, blobKey(name))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return false
	case err != nil:
		return true
	default:
		return info.Attr(HeaderDocumentID) != id
	}
}

func (s *documentService) putRecord(ctx context.Context, doc *model.Document) error {
	if s.repo == nil {
		return fmt.Errorf("record store: %w", ErrBackendUnavailable)
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return fmt.Errorf("record store: %w", err)
	}
	return nil
}

func (s *documentService) FindByID(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	if s.store == nil && s.repo == nil {
		return nil, ErrBackendUnavailable
	}

	// The record, when present, names the blob and saves a prefix scan.
	var (
		rec    *model.Document
		recErr error
	)
	if s.repo != nil {
		rec, recErr = s.repo.FindByID(ctx, id)
		if errors.Is(recErr, repository.ErrNotFound) {
			recErr = ErrNotFound
		}
	}

	if s.store != nil {
		var (
			info storage.ObjectInfo
			err  error
		)
		if rec != nil {
			info, err = s.statBlob(ctx, id, rec.FileName)
		} else {
			info, err = s.locateBlob(ctx, id, "")
		}
		if err == nil {
			doc, err := s.readBlob(ctx, info)
			if err == nil {
				return doc, nil
			}
			s.log.Warn("document_blob_read_failed", err, map[string]any{"document_id": id})
		} else if !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn("document_blob_lookup_failed", err, map[string]any{"document_id": id})
		}
	}

	if rec != nil {
		return withPayload(rec)
	}
	if recErr != nil {
		return nil, recErr
	}
	return nil, ErrNotFound
}

func (s *documentService) FindByFileName(ctx context.Context, fileName string) (*model.Document, error) {
	if fileName == "" {
		return nil, ErrIDRequired
	}
	if s.store == nil && s.repo == nil {
		return nil, ErrBackendUnavailable
	}

	if s.repo != nil {
		rec, err := s.repo.FindByFileName(ctx, fileName)
		if err == nil {
			return withPayload(rec)
		}
		if !errors.Is(err, repository.ErrNotFound) {
			s.log.Warn("document_record_lookup_failed", err, map[string]any{"file_name": fileName})
		}
	}

	if s.store != nil {
		info, err := s.store.Stat(ctx, blobKey(fileName))
		if err == nil {
			return s.readBlob(ctx, info)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

func (s *documentService) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrIDRequired
	}
	if s.store == nil && s.repo == nil {
		return ErrBackendUnavailable
	}

	var (
		fileName string
		errs     []error
	)
	if s.repo != nil {
		if rec, err := s.repo.FindByID(ctx, id); err == nil {
			fileName = rec.FileName
		}
	}

	if s.store != nil {
		info, err := s.locateBlob(ctx, id, fileName)
		switch {
		case err == nil:
			if fileName == "" {
				fileName = fileNameOf(info.Key)
			}
			if err := s.store.Delete(ctx, info.Key); err != nil {
				errs = append(errs, fmt.Errorf("blob store: %w", err))
			}
		case !errors.Is(err, storage.ErrNotFound):
			errs = append(errs, fmt.Errorf("blob store: %w", err))
		}
	}

	if s.repo != nil {
		if err := s.repo.Delete(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("record store: %w", err))
		}
	}

	if s.mirror != nil && fileName != "" {
		s.mirror.TryDelete(fileName)
	}
	return errors.Join(errs...)
}

func (s *documentService) ListPending(ctx context.Context) ([]model.Document, error) {
	if s.store == nil && s.repo == nil {
		return nil, ErrBackendUnavailable
	}

	docs := make([]model.Document, 0)
	seen := make(map[string]struct{})
	var recErr, blobErr error

	if s.repo != nil {
		var recs []model.Document
		recs, recErr = s.repo.List(ctx)
		for i := range recs {
			doc, err := withPayload(&recs[i])
			if err != nil {
				s.log.Error("document_record_corrupt", err, map[string]any{"document_id": recs[i].ID})
				continue
			}
			seen[doc.ID] = struct{}{}
			docs = append(docs, *doc)
		}
	}

	// Blob-only documents: the record write failed at save time.
	if s.store != nil {
		var objs []storage.ObjectInfo
		objs, blobErr = s.store.List(ctx, DocumentsPrefix)
		for _, obj := range objs {
			if obj.Attr(HeaderDocumentID) == "" {
				st, err := s.store.Stat(ctx, obj.Key)
				if err != nil {
					continue
				}
				obj = st
			}
			id := obj.Attr(HeaderDocumentID)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			doc, err := s.readBlob(ctx, obj)
			if err != nil {
				s.log.Warn("document_blob_read_failed", err, map[string]any{"key": obj.Key})
				continue
			}
			seen[id] = struct{}{}
			docs = append(docs, *doc)
		}
	}

	switch {
	case recErr != nil && (s.store == nil || blobErr != nil):
		return nil, errors.Join(recErr, blobErr)
	case blobErr != nil && s.repo == nil:
		return nil, blobErr
	}
	if recErr != nil {
		s.log.Warn("document_record_list_failed", recErr, nil)
	}
	if blobErr != nil {
		s.log.Warn("document_blob_list_failed", blobErr, nil)
	}
	return docs, nil
}

// statBlob returns the blob stored under fileName if it carries id.
func (s *documentService) statBlob(ctx context.Context, id, fileName string) (storage.ObjectInfo, error) {
	info, err := s.store.Stat(ctx, blobKey(fileName))
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	if info.Attr(HeaderDocumentID) != id {
		return storage.ObjectInfo{}, storage.ErrNotFound
	}
	return info, nil
}

// locateBlob finds the object carrying id. A file name hint is checked first;
// otherwise the documents prefix is scanned.
func (s *documentService) locateBlob(ctx context.Context, id, hint string) (storage.ObjectInfo, error) {
	if hint != "" {
		if info, err := s.statBlob(ctx, id, hint); err == nil {
			return info, nil
		}
	}

	objs, err := s.store.List(ctx, DocumentsPrefix)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	for _, obj := range objs {
		if obj.Attr(HeaderDocumentID) == "" {
			st, err := s.store.Stat(ctx, obj.Key)
			if err != nil {
				continue
			}
			obj = st
		}
		if obj.Attr(HeaderDocumentID) == id {
			return obj, nil
		}
	}
	return storage.ObjectInfo{}, storage.ErrNotFound
}

// readBlob rebuilds a document from the blob and its attributes.
func (s *documentService) readBlob(ctx context.Context, info storage.ObjectInfo) (*model.Document, error) {
	rc, got, err := s.store.Get(ctx, info.Key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	payload, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", info.Key, err)
	}

	attrs := got
	if attrs.Attr(HeaderDocumentMeta) == "" {
		attrs = info
	}
	meta, err := decodeMeta(attrs.Attr(HeaderDocumentMeta))
	if err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", info.Key, err)
	}

	ts := got.LastModified
	if ms, err := strconv.ParseInt(attrs.Attr(HeaderDocumentCTime), 10, 64); err == nil {
		ts = time.UnixMilli(ms).UTC()
	}

	return &model.Document{
		ID:        attrs.Attr(HeaderDocumentID),
		FileName:  fileNameOf(info.Key),
		Metadata:  meta,
		Payload:   payload,
		DataURI:   model.EncodeDataURI(model.PDFMediaType, payload),
		Timestamp: ts,
	}, nil
}

func decodeMeta(v string) (model.Metadata, error) {
	var meta model.Metadata
	if v == "" {
		return meta, errors.New("missing " + HeaderDocumentMeta)
	}
	raw, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(raw, &meta)
	return meta, err
}

// withPayload decodes the record's data URI into Payload.
func withPayload(rec *model.Document) (*model.Document, error) {
	_, payload, err := model.DecodeDataURI(rec.DataURI)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	doc := *rec
	doc.Payload = payload
	return &doc, nil
}
