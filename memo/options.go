package memo

import (
	"go.uber.org/zap"

	"github.com/on-the-ground/memo_ive_go/cachekey"
	"github.com/on-the-ground/memo_ive_go/identity"
	"github.com/on-the-ground/memo_ive_go/registry"
	"github.com/on-the-ground/memo_ive_go/storage"
)

type options struct {
	funcID     cachekey.FuncID
	mode       storage.Mode
	name       string
	storage    storage.Storage
	registry   *registry.Registry
	identities *identity.Registry
	logger     *zap.Logger
	diskRoot   string
}

type Option func(*options)

// WithFuncID names the function explicitly instead of deriving the name from
// its runtime symbol.
func WithFuncID(id cachekey.FuncID) Option {
	return func(o *options) { o.funcID = id }
}

// WithMode picks the storage mode; the registry's default mode otherwise.
func WithMode(mode storage.Mode) Option {
	return func(o *options) { o.mode = mode }
}

// WithStorage uses st instead of a registry-built storage. st is still
// attached to the registry, under ModeCustom unless WithMode says otherwise.
func WithStorage(st storage.Storage) Option {
	return func(o *options) { o.storage = st }
}

// WithStorageName overrides the registry name of the storage, which is the
// function's identity by default.
func WithStorageName(name string) Option {
	return func(o *options) { o.name = name }
}

func WithRegistry(r *registry.Registry) Option {
	return func(o *options) { o.registry = r }
}

func WithIdentities(r *identity.Registry) Option {
	return func(o *options) { o.identities = r }
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithDiskRoot sets the disk root of this function in its registry.
func WithDiskRoot(root string) Option {
	return func(o *options) { o.diskRoot = root }
}
