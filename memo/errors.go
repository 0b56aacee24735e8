package memo

import (
	"github.com/on-the-ground/memo_ive_go/cachekey"
	"github.com/on-the-ground/memo_ive_go/registry"
	"github.com/on-the-ground/memo_ive_go/storage"
)

var (
	ErrInvalidArgument = cachekey.ErrInvalidArgument
	ErrKeyNotFound     = storage.ErrKeyNotFound
	ErrKeyEncoding     = storage.ErrKeyEncoding
	ErrStorageIO       = storage.ErrStorageIO
	ErrUnknownMode     = registry.ErrUnknownMode
	ErrUnknownStorage  = registry.ErrUnknownStorage
)
