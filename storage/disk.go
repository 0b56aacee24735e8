package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/on-the-ground/memo_ive_go/cachekey"
)

const (
	entryExt  = ".entry"
	tmpPrefix = ".tmp-"

	// headerPeek is how much of an entry is read to find its key. Entries
	// start with the key, so this covers all but very deeply nested keys.
	headerPeek = 4 << 10
)

var _ Storage = (*Disk)(nil)

// RootFunc resolves the root folder of a disk storage. It is consulted on
// every operation, so changing what it returns redirects later lookups
// without moving files that are already written.
type RootFunc func() string

// FixedRoot always resolves to path.
func FixedRoot(path string) RootFunc {
	return func() string { return path }
}

// envelope is the on-disk form of one binding. The key is kept next to the
// value so that Keys can rebuild it and collisions can be told apart.
type envelope struct {
	Key   cachekey.CacheKey `json:"key"`
	Value []byte            `json:"value"`
}

// Disk keeps one file per binding in a folder derived from the function
// identity. Files are written to a temporary name and renamed into place, so
// readers never see a partial entry.
type Disk struct {
	fn     cachekey.FuncID
	root   RootFunc
	codec  Codec
	logger *zap.Logger
}

type DiskOption func(*Disk)

// WithCodec replaces the default GobCodec.
func WithCodec(codec Codec) DiskOption {
	return func(d *Disk) { d.codec = codec }
}

func WithDiskLogger(logger *zap.Logger) DiskOption {
	return func(d *Disk) { d.logger = logger }
}

func NewDisk(fn cachekey.FuncID, root RootFunc, opts ...DiskOption) *Disk {
	d := &Disk{
		fn:     fn,
		root:   root,
		codec:  GobCodec{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dir returns the folder currently backing the storage.
func (d *Disk) Dir() string {
	return filepath.Join(d.root(), FolderOf(d.fn))
}

// FolderOf derives the folder of fn relative to a disk root: one level per
// package path element, then the function name.
func FolderOf(fn cachekey.FuncID) string {
	var parts []string
	if fn.Module != "" {
		for _, p := range strings.Split(fn.Module, "/") {
			parts = append(parts, sanitize(p))
		}
	}
	parts = append(parts, sanitize(fn.Name))
	return filepath.Join(parts...)
}

func sanitize(segment string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, segment)
	if s == "" || s == "." || s == ".." {
		return "_" + s
	}
	return s
}

// FileName returns the name of the file holding key.
func FileName(key cachekey.CacheKey) string {
	return fmt.Sprintf("%016x%s", key.Hash(), entryExt)
}

func (d *Disk) path(key cachekey.CacheKey) string {
	return filepath.Join(d.Dir(), FileName(key))
}

// Contains reads only the key header of the entry.
func (d *Disk) Contains(key cachekey.CacheKey) (bool, error) {
	return d.holds(key)
}

func (d *Disk) Fetch(key cachekey.CacheKey) (any, error) {
	data, ok, err := d.read(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: decode entry of %s: %w", ErrStorageIO, key, err)
	}
	v, err := d.codec.Unmarshal(env.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: decode value of %s: %w", ErrStorageIO, key, err)
	}
	return v, nil
}

func (d *Disk) Store(key cachekey.CacheKey, value any) error {
	if _, err := d.holds(key); err != nil {
		return err
	}

	raw, err := d.codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: encode value of %s: %w", ErrStorageIO, key, err)
	}
	data, err := json.Marshal(envelope{Key: key, Value: raw})
	if err != nil {
		return fmt.Errorf("%w: encode entry of %s: %w", ErrStorageIO, key, err)
	}

	dir := d.Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageIO, err)
	}
	tmp := filepath.Join(dir, tmpPrefix+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrStorageIO, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, FileName(key))); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: %w", ErrStorageIO, err)
	}
	d.logger.Debug("stored entry", zap.Stringer("key", key), zap.String("dir", dir))
	return nil
}

func (d *Disk) Remove(key cachekey.CacheKey) (bool, error) {
	ok, err := d.holds(key)
	if err != nil || !ok {
		return false, err
	}
	if err := os.Remove(d.path(key)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrStorageIO, err)
	}
	return true, nil
}

// Clear deletes the entries of this function only. Sub-folders may belong to
// other functions and are left alone.
func (d *Disk) Clear() error {
	dir := d.Dir()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageIO, err)
	}

	var errs error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, entryExt) || strings.HasPrefix(name, tmpPrefix)) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		d.logger.Warn("failed to clear some entries", zap.String("dir", dir), zap.Error(errs))
		return fmt.Errorf("%w: %w", ErrStorageIO, errs)
	}
	return nil
}

// Keys decodes the key header of every entry file. A header that cannot be
// decoded, or that does not hash to its file name, fails the whole listing.
func (d *Disk) Keys() ([]cachekey.CacheKey, error) {
	dir := d.Dir()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorageIO, err)
	}

	var keys []cachekey.CacheKey
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, entryExt) {
			continue
		}
		k, ok, err := peekKey(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		} else if !ok {
			continue
		}
		if FileName(k) != name {
			return nil, fmt.Errorf("%w: %s holds key %s", ErrKeyEncoding, name, k)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// read loads the entry file of key. A file holding a different key is a
// collision and fails with ErrKeyEncoding rather than being treated as a miss.
func (d *Disk) read(key cachekey.CacheKey) ([]byte, bool, error) {
	data, err := os.ReadFile(d.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrStorageIO, err)
	}
	stored, err := decodeKey(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", ErrKeyEncoding, FileName(key), err)
	}
	if !stored.Equal(key) {
		return nil, false, fmt.Errorf("%w: %s is taken by %s", ErrKeyEncoding, key, stored)
	}
	return data, true, nil
}

// holds reports whether key's entry file exists, reading only its header.
// A file holding a different key is a collision, as in read.
func (d *Disk) holds(key cachekey.CacheKey) (bool, error) {
	stored, ok, err := peekKey(d.path(key))
	if err != nil || !ok {
		return false, err
	}
	if !stored.Equal(key) {
		return false, fmt.Errorf("%w: %s is taken by %s", ErrKeyEncoding, key, stored)
	}
	return true, nil
}

// peekKey decodes the key header of the entry file at path from its first
// headerPeek bytes, reading the rest only when the header runs past them.
func peekKey(path string) (cachekey.CacheKey, bool, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cachekey.CacheKey{}, false, nil
	} else if err != nil {
		return cachekey.CacheKey{}, false, fmt.Errorf("%w: %w", ErrStorageIO, err)
	}
	defer f.Close()

	buf := make([]byte, headerPeek)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return cachekey.CacheKey{}, false, fmt.Errorf("%w: %w", ErrStorageIO, err)
	}
	buf = buf[:n]

	k, err := decodeKey(buf)
	if err != nil && n == headerPeek {
		rest, rerr := io.ReadAll(f)
		if rerr != nil {
			return cachekey.CacheKey{}, false, fmt.Errorf("%w: %w", ErrStorageIO, rerr)
		}
		k, err = decodeKey(append(buf, rest...))
	}
	if err != nil {
		return cachekey.CacheKey{}, false, fmt.Errorf("%w: %s: %w", ErrKeyEncoding, filepath.Base(path), err)
	}
	return k, true, nil
}

func decodeKey(data []byte) (cachekey.CacheKey, error) {
	header := gjson.GetBytes(data, "key")
	if !header.Exists() {
		return cachekey.CacheKey{}, errors.New("missing key header")
	}
	var k cachekey.CacheKey
	if err := json.Unmarshal([]byte(header.Raw), &k); err != nil {
		return cachekey.CacheKey{}, err
	}
	return k, nil
}
