package blobstore

import (
	"context"
	"io"
	"iter"
	"time"
)

// Recorder receives one observation per store call.
type Recorder interface {
	ObserveCall(op string, elapsed time.Duration, err error)
}

// Instrument wraps b so every call is reported to rec. A nil rec returns b.
func Instrument(b Bucket, rec Recorder) Bucket {
	if rec == nil {
		return b
	}
	return &instrumented{next: b, rec: rec}
}

type instrumented struct {
	next Bucket
	rec  Recorder
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.rec.ObserveCall(op, time.Since(start), err)
}

func (i *instrumented) Put(ctx context.Context, key string, r io.Reader, meta Metadata) (ObjectRef, error) {
	start := time.Now()
	ref, err := i.next.Put(ctx, key, r, meta)
	i.observe("put", start, err)
	return ref, err
}

func (i *instrumented) FindLatest(ctx context.Context, key string) (Object, bool, error) {
	start := time.Now()
	obj, ok, err := i.next.FindLatest(ctx, key)
	i.observe("find_latest", start, err)
	return obj, ok, err
}

func (i *instrumented) FindByPrefix(ctx context.Context, prefix string) iter.Seq2[Object, error] {
	return func(yield func(Object, error) bool) {
		start := time.Now()
		var failed error
		defer func() { i.observe("find_by_prefix", start, failed) }()
		for obj, err := range i.next.FindByPrefix(ctx, prefix) {
			if err != nil {
				failed = err
			}
			if !yield(obj, err) {
				return
			}
		}
	}
}

func (i *instrumented) Stat(ctx context.Context, ref ObjectRef) (Object, error) {
	start := time.Now()
	obj, err := i.next.Stat(ctx, ref)
	i.observe("stat", start, err)
	return obj, err
}

func (i *instrumented) Open(ctx context.Context, ref ObjectRef) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := i.next.Open(ctx, ref)
	i.observe("open", start, err)
	return rc, err
}

func (i *instrumented) Delete(ctx context.Context, ref ObjectRef) error {
	start := time.Now()
	err := i.next.Delete(ctx, ref)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) Rename(ctx context.Context, ref ObjectRef, newKey string) error {
	start := time.Now()
	err := i.next.Rename(ctx, ref, newKey)
	i.observe("rename", start, err)
	return err
}
