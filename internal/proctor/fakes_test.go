package proctor

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"exproctor/internal/storage"
	"exproctor/internal/store"
	"exproctor/pkg/types"

	"github.com/sirupsen/logrus"
)

type fakeStore struct {
	method types.StorageMethod

	mu         sync.Mutex
	containers map[string]map[string][]byte
	creates    int
	puts       int

	putErr             error
	deleteErr          error
	deleteContainerErr map[string]error
	blockPut           bool
	onPut              func()
}

func newFakeStore(method types.StorageMethod) *fakeStore {
	return &fakeStore{
		method:             method,
		containers:         make(map[string]map[string][]byte),
		deleteContainerErr: make(map[string]error),
	}
}

func (f *fakeStore) Method() types.StorageMethod { return f.method }

func (f *fakeStore) Put(ctx context.Context, container, key string, data []byte, contentType string) (types.Locator, error) {
	if f.blockPut {
		<-ctx.Done()
		return types.Locator{}, types.NewError(types.ErrTimeout, "put: deadline exceeded")
	}
	if f.onPut != nil {
		f.onPut()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.putErr != nil {
		return types.Locator{}, f.putErr
	}
	objects, ok := f.containers[container]
	if !ok {
		return types.Locator{}, types.NewError(types.ErrStorage, "container %s does not exist", container)
	}
	objects[key] = data
	f.puts++

	return types.Locator{Container: container, Key: key, URL: fmt.Sprintf("%s://%s/%s", f.method, container, key)}, nil
}

func (f *fakeStore) URL(ctx context.Context, loc types.Locator, ttl time.Duration) (string, error) {
	return fmt.Sprintf("%s://%s/%s?ttl=%s", f.method, loc.Container, loc.Key, ttl), nil
}

func (f *fakeStore) Delete(ctx context.Context, loc types.Locator) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.containers[loc.Container], loc.Key)
	return nil
}

func (f *fakeStore) CreateContainer(ctx context.Context, name string) error {
	// widen the window for concurrent first uploads
	time.Sleep(10 * time.Millisecond)
	if err := ctx.Err(); err != nil {
		return types.NewError(types.ErrTimeout, "create container: %s", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creates++
	if _, ok := f.containers[name]; !ok {
		f.containers[name] = make(map[string][]byte)
	}
	return nil
}

func (f *fakeStore) DeleteContainer(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.deleteContainerErr[name]; err != nil {
		return err
	}
	delete(f.containers, name)
	return nil
}

func (f *fakeStore) ListContainers(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	names := make([]string, 0, len(f.containers))
	for name := range f.containers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeStore) ListObjects(ctx context.Context, container string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	keys := make([]string, 0)
	for key := range f.containers[container] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeStore) objectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, objects := range f.containers {
		n += len(objects)
	}
	return n
}

func (f *fakeStore) containerNames() []string {
	names, _ := f.ListContainers(context.Background())
	return names
}

type fakeFilter struct {
	keep  bool
	err   error
	calls int
}

func (f *fakeFilter) ShouldPersist(ctx context.Context, image []byte) (bool, error) {
	f.calls++
	return f.keep, f.err
}

var testAttempt = types.AttemptKey{CourseID: 1, QuizID: 5, UserID: 9, AttemptID: 42}

func testPayload() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-bytes"))
}

func submitRequest(attempt types.AttemptKey, evidenceType types.EvidenceType) *types.SubmitRequest {
	return &types.SubmitRequest{
		AttemptKey:   attempt,
		EvidenceType: evidenceType,
		Payload:      testPayload(),
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type harness struct {
	ledger    *store.MemoryEvidenceRepository
	settings  *store.MemoryQuizSettingsRepository
	store     *fakeStore
	backends  *storage.Backends
	intake    *IntakeService
	retention *RetentionManager
	report    *ReportService
}

func newHarness(method types.StorageMethod, stores ...*fakeStore) *harness {
	h := &harness{
		ledger:   store.NewMemoryEvidenceRepository(),
		settings: store.NewMemoryQuizSettingsRepository(),
	}

	objectStores := make([]storage.ObjectStore, 0, len(stores))
	for _, s := range stores {
		if s.method == method {
			h.store = s
		}
		objectStores = append(objectStores, s)
	}
	h.backends = storage.NewBackends(objectStores...)

	logger := quietLogger()
	h.intake = NewIntakeService(IntakeConfig{
		StorageMethod:  method,
		BucketPrefix:   "exproctor-",
		StorageTimeout: time.Second,
	}, logger, h.ledger, h.backends, nil, h.settings)
	h.retention = NewRetentionManager(logger, h.ledger, h.backends, h.intake, time.Second, time.Second)
	h.report = NewReportService(logger, h.ledger, h.backends, 20*time.Minute, time.Second)

	return h
}
