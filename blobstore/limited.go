package blobstore

import (
	"context"

	"github.com/hupe1980/vecdir/internal/resource"
)

var _ Store = (*LimitedStore)(nil)

// LimitedStore bounds concurrent requests and throughput to a wrapped Store.
type LimitedStore struct {
	inner Store
	rc    *resource.Controller
}

// NewLimitedStore wraps inner with the limits of rc.
func NewLimitedStore(inner Store, rc *resource.Controller) *LimitedStore {
	return &LimitedStore{inner: inner, rc: rc}
}

// Get reads from the wrapped store and then charges the bytes read.
func (s *LimitedStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := s.rc.AcquireRequest(ctx, 0); err != nil {
		return nil, err
	}
	defer s.rc.ReleaseRequest()

	data, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}
	return data, nil
}

// Put charges len(data) bytes before writing.
func (s *LimitedStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.rc.AcquireRequest(ctx, len(data)); err != nil {
		return err
	}
	defer s.rc.ReleaseRequest()
	return s.inner.Put(ctx, name, data)
}

// Delete takes a request slot.
func (s *LimitedStore) Delete(ctx context.Context, name string) error {
	if err := s.rc.AcquireRequest(ctx, 0); err != nil {
		return err
	}
	defer s.rc.ReleaseRequest()
	return s.inner.Delete(ctx, name)
}

// List takes a request slot.
func (s *LimitedStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := s.rc.AcquireRequest(ctx, 0); err != nil {
		return nil, err
	}
	defer s.rc.ReleaseRequest()
	return s.inner.List(ctx, prefix)
}
