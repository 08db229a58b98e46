package inmemory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Abraxas-365/pathway/storage"
)

type object struct {
	data []byte
	info storage.ObjectInfo
}

// DataStore implements storage.DataStore in memory. Presigned URLs use the
// mem:// scheme and are only meaningful to tests.
type DataStore struct {
	objects map[string]object
	mu      sync.RWMutex
	now     func() time.Time
}

var _ storage.DataStore = (*DataStore)(nil)

// NewDataStore creates an empty in-memory object store
func NewDataStore() *DataStore {
	return &DataStore{
		objects: make(map[string]object),
		now:     time.Now,
	}
}

func (d *DataStore) Put(ctx context.Context, key string, data io.Reader, options ...storage.PutOption) error {
	if key == "" {
		return storage.NewStorageError("Put", key, nil, storage.ErrCodeInvalidArgument, "key cannot be empty")
	}
	opts := storage.ApplyPutOptions(options...)

	body, err := io.ReadAll(data)
	if err != nil {
		return storage.NewStorageError("Put", key, err, storage.ErrCodeInternal, "failed to read object body")
	}
	sum := md5.Sum(body)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[key] = object{
		data: body,
		info: storage.ObjectInfo{
			Key:          key,
			Size:         int64(len(body)),
			LastModified: d.now(),
			ETag:         hex.EncodeToString(sum[:]),
			ContentType:  opts.ContentType,
			Metadata:     maps.Clone(opts.Metadata),
		},
	}
	return nil
}

func (d *DataStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	obj, ok := d.objects[key]
	if !ok {
		return nil, storage.NewStorageError("Get", key, nil, storage.ErrCodeNotFound, "object not found")
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (d *DataStore) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, key)
	return nil
}

func (d *DataStore) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []storage.ObjectInfo
	for key, obj := range d.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (d *DataStore) Exists(ctx context.Context, key string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.objects[key]
	return ok, nil
}

func (d *DataStore) GetPresignedGetURL(ctx context.Context, key string, expires time.Duration) (storage.PresignedURL, error) {
	if ok, _ := d.Exists(ctx, key); !ok {
		return storage.PresignedURL{}, storage.NewStorageError("GetPresignedGetURL", key, nil, storage.ErrCodeNotFound, "object not found")
	}
	u := url.URL{
		Scheme:   "mem",
		Path:     "/" + key,
		RawQuery: url.Values{"expires": {fmt.Sprint(int64(expires.Seconds()))}}.Encode(),
	}
	return storage.PresignedURL{URL: u.String(), Method: "GET"}, nil
}
