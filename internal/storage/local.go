package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"exproctor/pkg/types"

	"github.com/gorilla/securecookie"
	"github.com/sirupsen/logrus"
)

const (
	localTokenName = "evidence"
	tmpFilePrefix  = ".tmp-"

	// FilesPath is where the server mounts the local file handler.
	FilesPath = "/files/"
)

type fileToken struct {
	Container string
	Key       string
}

// Local keeps evidence on disk as root/<container>/<key>. URLs carry a signed
// and encrypted token for the locator and never expire.
type Local struct {
	root      string
	publicURL string
	prefix    string
	codec     *securecookie.SecureCookie
	logger    *logrus.Logger
}

func NewLocal(root, publicURL, containerPrefix string, hashKey, blockKey []byte, logger *logrus.Logger) (*Local, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage path is required")
	}

	if len(hashKey) == 0 {
		logger.Warn("no local url hash key configured, generating an ephemeral one")
		hashKey = securecookie.GenerateRandomKey(32)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve local storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create local storage root: %w", err)
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(0)

	return &Local{
		root:      abs,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		prefix:    containerPrefix,
		codec:     codec,
		logger:    logger,
	}, nil
}

func (l *Local) Method() types.StorageMethod {
	return types.StorageMethodLocal
}

func (l *Local) containerDir(container string) string {
	return filepath.Join(l.root, container)
}

func (l *Local) fileURL(loc types.Locator) (string, error) {
	token, err := l.codec.Encode(localTokenName, fileToken{Container: loc.Container, Key: loc.Key})
	if err != nil {
		return "", types.NewError(types.ErrStorage, "encode file token: %s", err)
	}
	return l.publicURL + FilesPath + token, nil
}

func (l *Local) Put(ctx context.Context, container, key string, data []byte, contentType string) (types.Locator, error) {
	if err := checkLocation(container, key); err != nil {
		return types.Locator{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.Locator{}, wrapErr(opf("put %s/%s", container, key), err)
	}

	dir := l.containerDir(container)
	if _, err := os.Stat(dir); err != nil {
		return types.Locator{}, types.NewError(types.ErrStorage, "container %s does not exist", container)
	}

	tmp, err := os.CreateTemp(dir, tmpFilePrefix+"*")
	if err != nil {
		return types.Locator{}, wrapErr(opf("put %s/%s", container, key), err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(data)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, filepath.Join(dir, key))
	}
	if err != nil {
		_ = os.Remove(tmpName)
		l.logger.WithError(err).
			WithField("container", container).
			WithField("key", key).
			Error("failed to write evidence file")
		return types.Locator{}, wrapErr(opf("put %s/%s", container, key), err)
	}

	loc := types.Locator{Container: container, Key: key}
	loc.URL, err = l.fileURL(loc)
	if err != nil {
		return types.Locator{}, err
	}

	return loc, nil
}

// URL ignores ttl; local URLs stay valid for as long as the file exists.
func (l *Local) URL(ctx context.Context, loc types.Locator, ttl time.Duration) (string, error) {
	if err := checkLocation(loc.Container, loc.Key); err != nil {
		return "", err
	}
	return l.fileURL(loc)
}

func (l *Local) Delete(ctx context.Context, loc types.Locator) error {
	if err := checkLocation(loc.Container, loc.Key); err != nil {
		return err
	}

	err := os.Remove(filepath.Join(l.containerDir(loc.Container), loc.Key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return wrapErr(opf("delete %s/%s", loc.Container, loc.Key), err)
	}
	return nil
}

func (l *Local) CreateContainer(ctx context.Context, name string) error {
	if err := checkLocation(name, ""); err != nil {
		return err
	}

	if err := os.MkdirAll(l.containerDir(name), 0o750); err != nil {
		return wrapErr(opf("create container %s", name), err)
	}

	l.logger.WithField("container", name).Info("created evidence container")
	return nil
}

func (l *Local) DeleteContainer(ctx context.Context, name string) error {
	if err := checkLocation(name, ""); err != nil {
		return err
	}

	if err := os.RemoveAll(l.containerDir(name)); err != nil {
		return wrapErr(opf("delete container %s", name), err)
	}

	l.logger.WithField("container", name).Info("deleted evidence container")
	return nil
}

func (l *Local) ListContainers(ctx context.Context) ([]string, error) {
	if err := checkPrefix(l.prefix); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(l.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, wrapErr("list containers", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || !ValidContainerName(e.Name()) {
			continue
		}
		if strings.HasPrefix(e.Name(), l.prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	return names, nil
}

func (l *Local) ListObjects(ctx context.Context, container string) ([]string, error) {
	if err := checkLocation(container, ""); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(l.containerDir(container))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, types.NewError(types.ErrStorage, "container %s does not exist", container)
		}
		return nil, wrapErr(opf("list objects %s", container), err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tmpFilePrefix) {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)

	return keys, nil
}

// Resolve turns a file URL token back into the path of the stored file.
func (l *Local) Resolve(token string) (string, error) {
	var ft fileToken
	if err := l.codec.Decode(localTokenName, token, &ft); err != nil {
		return "", types.ErrEvidenceNotFound
	}

	if checkLocation(ft.Container, ft.Key) != nil {
		return "", types.ErrEvidenceNotFound
	}

	path := filepath.Join(l.containerDir(ft.Container), ft.Key)
	if _, err := os.Stat(path); err != nil {
		return "", types.ErrEvidenceNotFound
	}

	return path, nil
}

// FileHandler serves the URLs produced by Put and URL. It expects the full
// request path, FilesPath included.
func (l *Local) FileHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.URL.Path, FilesPath)
		path, err := l.Resolve(token)
		if err != nil {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Cache-Control", "private, max-age=300")
		http.ServeFile(w, r, path)
	})
}
