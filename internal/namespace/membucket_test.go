package namespace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/starford/dirstore/internal/blobstore"
)

// memBucket is an in-memory blobstore.Bucket with injectable faults.
type memBucket struct {
	mu      sync.Mutex
	seq     int
	base    time.Time
	objects map[blobstore.ObjectRef]*memObject

	// failAfter makes the named op fail once it has succeeded n times.
	failAfter map[string]int
	calls     map[string]int
	// onOpen and onRename run before the call resolves, e.g. to delete
	// the entry.
	onOpen   func(ref blobstore.ObjectRef)
	onRename func(ref blobstore.ObjectRef)
}

type memObject struct {
	obj  blobstore.Object
	data []byte
}

func newMemBucket() *memBucket {
	return &memBucket{
		base:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		objects:   make(map[blobstore.ObjectRef]*memObject),
		failAfter: make(map[string]int),
		calls:     make(map[string]int),
	}
}

var errInjected = errors.New("injected store fault")

func (m *memBucket) fault(op string) error {
	n, ok := m.failAfter[op]
	if ok && m.calls[op] >= n {
		return errInjected
	}
	m.calls[op]++
	return nil
}

func (m *memBucket) Put(_ context.Context, key string, r io.Reader, meta blobstore.Metadata) (blobstore.ObjectRef, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("put"); err != nil {
		return "", err
	}
	m.seq++
	ref := blobstore.ObjectRef(fmt.Sprintf("ref-%d", m.seq))
	m.objects[ref] = &memObject{
		obj: blobstore.Object{
			Ref:       ref,
			Key:       key,
			IsDir:     meta.IsDir,
			Length:    int64(len(data)),
			CreatedAt: m.base.Add(time.Duration(m.seq) * time.Millisecond),
		},
		data: data,
	}
	return ref, nil
}

func (m *memBucket) FindLatest(_ context.Context, key string) (blobstore.Object, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("find_latest"); err != nil {
		return blobstore.Object{}, false, err
	}
	var best *memObject
	for _, o := range m.objects {
		if o.obj.Key == key && (best == nil || o.obj.CreatedAt.After(best.obj.CreatedAt)) {
			best = o
		}
	}
	if best == nil {
		return blobstore.Object{}, false, nil
	}
	return best.obj, true, nil
}

func (m *memBucket) FindByPrefix(_ context.Context, prefix string) iter.Seq2[blobstore.Object, error] {
	return func(yield func(blobstore.Object, error) bool) {
		m.mu.Lock()
		if err := m.fault("find_by_prefix"); err != nil {
			m.mu.Unlock()
			yield(blobstore.Object{}, err)
			return
		}
		var matched []blobstore.Object
		for _, o := range m.objects {
			if strings.HasPrefix(o.obj.Key, prefix) {
				matched = append(matched, o.obj)
			}
		}
		m.mu.Unlock()
		for _, obj := range matched {
			if !yield(obj, nil) {
				return
			}
		}
	}
}

func (m *memBucket) Stat(_ context.Context, ref blobstore.ObjectRef) (blobstore.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[ref]
	if !ok {
		return blobstore.Object{}, blobstore.ErrNotFound
	}
	return o.obj, nil
}

func (m *memBucket) Open(_ context.Context, ref blobstore.ObjectRef) (io.ReadCloser, error) {
	if m.onOpen != nil {
		m.onOpen(ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[ref]
	if !ok {
		return nil, blobstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

func (m *memBucket) Delete(_ context.Context, ref blobstore.ObjectRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("delete"); err != nil {
		return err
	}
	if _, ok := m.objects[ref]; !ok {
		return blobstore.ErrNotFound
	}
	delete(m.objects, ref)
	return nil
}

func (m *memBucket) Rename(_ context.Context, ref blobstore.ObjectRef, newKey string) error {
	if m.onRename != nil {
		m.onRename(ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fault("rename"); err != nil {
		return err
	}
	o, ok := m.objects[ref]
	if !ok {
		return blobstore.ErrNotFound
	}
	o.obj.Key = newKey
	return nil
}

// keys returns every stored key, one per entry.
func (m *memBucket) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, o := range m.objects {
		out = append(out, o.obj.Key)
	}
	return out
}

func (m *memBucket) count(key string) int {
	n := 0
	for _, k := range m.keys() {
		if k == key {
			n++
		}
	}
	return n
}
