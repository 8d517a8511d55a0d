// Package storage holds the evidence blob backends. Every backend implements
// ObjectStore; callers only ever see errors of kind types.ErrStorage or
// types.ErrTimeout.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"exproctor/pkg/types"
)

const DefaultURLTTL = 20 * time.Minute

type ObjectStore interface {
	Method() types.StorageMethod

	// Put stores data under container/key, overwriting any existing object.
	Put(ctx context.Context, container, key string, data []byte, contentType string) (types.Locator, error)

	// URL returns a display URL. Remote backends sign it for ttl; local URLs do not expire.
	URL(ctx context.Context, loc types.Locator, ttl time.Duration) (string, error)

	// Delete is idempotent: a missing object is not an error.
	Delete(ctx context.Context, loc types.Locator) error

	CreateContainer(ctx context.Context, name string) error

	// DeleteContainer empties the container, deletes it and waits until the
	// backend reports it gone. A missing container is not an error.
	DeleteContainer(ctx context.Context, name string) error

	ListContainers(ctx context.Context) ([]string, error)
	ListObjects(ctx context.Context, container string) ([]string, error)
}

var (
	containerNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)
	objectKeyRe     = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

	// leaves room for the generated suffix within the 63 character limit
	containerPrefixRe = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,39}$`)
)

// ValidContainerName accepts names that are valid both as S3 bucket names and
// as single directory names.
func ValidContainerName(name string) bool {
	return containerNameRe.MatchString(name) && !strings.Contains(name, "--")
}

// ValidContainerPrefix reports whether prefix can scope the containers of this
// service. The empty prefix is rejected: it would match every container the
// credentials can see.
func ValidContainerPrefix(prefix string) bool {
	return containerPrefixRe.MatchString(prefix) && !strings.Contains(prefix, "--")
}

func checkPrefix(prefix string) error {
	if !ValidContainerPrefix(prefix) {
		return types.NewError(types.ErrStorage, "refusing to list containers with prefix %q", prefix)
	}
	return nil
}

func ValidObjectKey(key string) bool {
	return objectKeyRe.MatchString(key) && !strings.Contains(key, "..")
}

func checkLocation(container, key string) error {
	if !ValidContainerName(container) {
		return types.NewError(types.ErrStorage, "invalid container name %q", container)
	}
	if key != "" && !ValidObjectKey(key) {
		return types.NewError(types.ErrStorage, "invalid object key %q", key)
	}
	return nil
}

// Backends selects the ObjectStore for a storage method. Records are served by
// the backend named in their snapshot, not by the currently configured one.
type Backends struct {
	stores map[types.StorageMethod]ObjectStore
	order  []types.StorageMethod
}

func NewBackends(stores ...ObjectStore) *Backends {
	b := &Backends{stores: make(map[types.StorageMethod]ObjectStore)}
	for _, s := range stores {
		if s == nil {
			continue
		}
		if _, ok := b.stores[s.Method()]; !ok {
			b.order = append(b.order, s.Method())
		}
		b.stores[s.Method()] = s
	}
	return b
}

func (b *Backends) For(method types.StorageMethod) (ObjectStore, error) {
	s, ok := b.stores[method]
	if !ok {
		return nil, types.NewError(types.ErrStorage, "storage backend %q is not configured", method)
	}
	return s, nil
}

func (b *Backends) All() []ObjectStore {
	out := make([]ObjectStore, 0, len(b.order))
	for _, m := range b.order {
		out = append(out, b.stores[m])
	}
	return out
}

func (b *Backends) String() string {
	names := make([]string, 0, len(b.order))
	for _, m := range b.order {
		names = append(names, string(m))
	}
	return fmt.Sprintf("backends[%s]", strings.Join(names, ","))
}
