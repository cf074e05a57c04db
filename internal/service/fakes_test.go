package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"docsync/internal/model"
	"docsync/internal/repository"
	"docsync/internal/storage"
)

// memStorage is an in-memory blob store. Listing omits user metadata when
// hideListMeta is set, like plain S3.
type memStorage struct {
	mu           sync.Mutex
	objects      map[string]memObject
	hideListMeta bool
	putErr       error
	listErr      error
	deleteErr    error
}

type memObject struct {
	data []byte
	info storage.ObjectInfo
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string]memObject{}}
}

func (m *memStorage) Put(_ context.Context, key string, r io.Reader, opt storage.PutObjectOptions) (storage.ObjectInfo, error) {
	if m.putErr != nil {
		return storage.ObjectInfo{}, m.putErr
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	// S3 canonicalises user metadata keys on the way back.
	meta := make(map[string]string, len(opt.Metadata))
	for k, v := range opt.Metadata {
		meta["X-Amz-Meta-"+k] = v
	}
	info := storage.ObjectInfo{Key: key, Size: int64(len(b)), ContentType: opt.ContentType, Metadata: meta}
	m.mu.Lock()
	m.objects[key] = memObject{data: b, info: info}
	m.mu.Unlock()
	return info, nil
}

func (m *memStorage) Get(_ context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, storage.ObjectInfo{}, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(o.data)), o.info, nil
}

func (m *memStorage) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrNotFound
	}
	return o.info, nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

func (m *memStorage) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]storage.ObjectInfo, 0, len(m.objects))
	for k, o := range m.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		info := o.info
		if m.hideListMeta {
			info.Metadata = nil
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memStorage) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

// memRepo is an in-memory record store.
type memRepo struct {
	mu        sync.Mutex
	rows      map[string]model.Document
	createErr error
	listErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]model.Document{}}
}

func (r *memRepo) Create(_ context.Context, doc *model.Document) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[doc.ID]; ok {
		return errors.New("duplicate id")
	}
	row := *doc
	row.Payload = nil
	r.rows[doc.ID] = row
	return nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r *memRepo) FindByFileName(_ context.Context, fileName string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.rows {
		if d.FileName == fileName {
			d := d
			return &d, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRepo) List(context.Context) ([]model.Document, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Document, 0, len(r.rows))
	for _, d := range r.rows {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.rows, id)
	r.mu.Unlock()
	return nil
}

func (r *memRepo) Ping(context.Context) error { return nil }

func (r *memRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// recordingMirror remembers what it was asked to do.
type recordingMirror struct {
	mu      sync.Mutex
	written []string
	deleted []string
}

func (m *recordingMirror) TryWrite(fileName string, _ []byte) {
	m.mu.Lock()
	m.written = append(m.written, fileName)
	m.mu.Unlock()
}

func (m *recordingMirror) TryDelete(fileName string) {
	m.mu.Lock()
	m.deleted = append(m.deleted, fileName)
	m.mu.Unlock()
}
