package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ceramicnetwork/go-fanout/models"
)

func Assert(t *testing.T, expected any, actual any, message string) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s: expected %v, got %v", message, expected, actual)
	}
}

type MockMetricService struct {
	models.MetricService
	lock          sync.Mutex
	counts        map[models.MetricName]int
	distributions map[models.MetricName][]int
}

func (m *MockMetricService) Count(ctx context.Context, name models.MetricName, val int) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.counts == nil {
		m.counts = make(map[models.MetricName]int)
	}
	m.counts[name] += val
	return nil
}

func (m *MockMetricService) Distribution(ctx context.Context, name models.MetricName, val int) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.distributions == nil {
		m.distributions = make(map[models.MetricName][]int)
	}
	m.distributions[name] = append(m.distributions[name], val)
	return nil
}

func (m *MockMetricService) count(name models.MetricName) int {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.counts[name]
}

type MockPublisher struct {
	messages chan any
	fail     bool
}

func (m *MockPublisher) SendMessage(ctx context.Context, event any) (string, error) {
	if m.fail {
		return "", errors.New("test error")
	}
	m.messages <- event
	return "msgId", nil
}

// fakeEndpoint scripts the behavior of one address on a FakeTransport
type fakeEndpoint struct {
	failures int           // fail this many sends before succeeding, -1 to always fail
	hang     bool          // block until the transport is released, ignoring ctx
	delay    time.Duration // wait this long, honoring ctx
	panics   bool
}

type FakeTransport struct {
	lock      sync.Mutex
	endpoints map[string]*fakeEndpoint
	calls     map[string]int
	payloads  map[string][][]byte
	release   chan struct{}
}

func NewFakeTransport(endpoints map[string]*fakeEndpoint) *FakeTransport {
	return &FakeTransport{
		endpoints: endpoints,
		calls:     make(map[string]int),
		payloads:  make(map[string][][]byte),
		release:   make(chan struct{}),
	}
}

func (f *FakeTransport) Send(ctx context.Context, address string, payload []byte) error {
	f.lock.Lock()
	f.calls[address]++
	call := f.calls[address]
	f.payloads[address] = append(f.payloads[address], payload)
	endpoint := f.endpoints[address]
	f.lock.Unlock()

	if endpoint == nil {
		return nil
	}
	if endpoint.panics {
		panic("endpoint exploded")
	}
	if endpoint.hang {
		<-f.release
		return nil
	}
	if endpoint.delay > 0 {
		select {
		case <-time.After(endpoint.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if (endpoint.failures < 0) || (call <= endpoint.failures) {
		return fmt.Errorf("send %d to %s failed", call, address)
	}
	return nil
}

// Release unblocks hanging sends
func (f *FakeTransport) Release() {
	close(f.release)
}

func (f *FakeTransport) numCalls(address string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls[address]
}

func (f *FakeTransport) totalCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

type FakeSigner struct {
	failFor  map[string]bool
	panicFor map[string]bool
}

func (f *FakeSigner) Sign(data []byte) ([]byte, error) {
	return append([]byte("sig:"), data...), nil
}

func (f *FakeSigner) Encrypt(recipientId string, data []byte) ([]byte, error) {
	if f.panicFor[recipientId] {
		panic("encryption exploded")
	}
	if f.failFor[recipientId] {
		return nil, fmt.Errorf("no key for %s", recipientId)
	}
	return append([]byte(recipientId+":"), data...), nil
}

// FakeClock advances only when told to. After fires immediately and records the requested duration.
type FakeClock struct {
	lock   sync.Mutex
	now    time.Time
	delays []time.Duration
}

func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *FakeClock) Now() time.Time {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.now
}

func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.delays = append(f.delays, d)
	ch := make(chan time.Time, 1)
	ch <- f.now.Add(d)
	return ch
}

func (f *FakeClock) Advance(d time.Duration) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.now = f.now.Add(d)
}

func (f *FakeClock) requestedDelays() []time.Duration {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]time.Duration{}, f.delays...)
}

type FakeStateRepository struct {
	tips    map[string]*models.RecordTip
	entries []*models.PublishLedgerEntry
	fail    bool
}

func (f *FakeStateRepository) UpdateTip(ctx context.Context, newTip *models.RecordTip) (bool, *models.RecordTip, error) {
	if f.fail {
		return false, nil, errors.New("test error")
	}
	key := newTip.AuthorId + "/" + newTip.StableKey
	oldTip := f.tips[key]
	if (oldTip != nil) && oldTip.CreatedAt.After(newTip.CreatedAt) {
		return false, oldTip, nil
	}
	f.tips[key] = newTip
	return true, oldTip, nil
}

func (f *FakeStateRepository) StoreReport(ctx context.Context, entry *models.PublishLedgerEntry) error {
	if f.fail {
		return errors.New("test error")
	}
	f.entries = append(f.entries, entry)
	return nil
}

type FakeCollectionRepository struct {
	collections map[string]models.Collection
	saves       int
	fail        bool
}

func (f *FakeCollectionRepository) Load(ctx context.Context, ownerId string) (models.Collection, error) {
	if f.fail {
		return nil, errors.New("test error")
	}
	collection := models.Collection{}
	for key, item := range f.collections[ownerId] {
		collection[key] = item
	}
	return collection, nil
}

func (f *FakeCollectionRepository) Save(ctx context.Context, ownerId string, collection models.Collection) error {
	if f.fail {
		return errors.New("test error")
	}
	f.saves++
	f.collections[ownerId] = collection
	return nil
}

type FakeRecordPublisher struct {
	records []*models.Record
	fail    bool
}

func (f *FakeRecordPublisher) PublishRecord(ctx context.Context, record *models.Record) (*models.PublishReport, error) {
	f.records = append(f.records, record)
	if f.fail {
		return &models.PublishReport{RecordId: record.Id}, models.ErrTotalFailure
	}
	return &models.PublishReport{RecordId: record.Id, SucceededTargets: []models.PublishTarget{{Address: "relay"}}}, nil
}

type FakeBlobStore struct {
	failFor map[string]bool
	stored  map[string][]byte
	// called before each upload, lets tests interfere with the batch mid-flight
	beforePut func(name string)
}

func (f *FakeBlobStore) Put(ctx context.Context, name string, body io.Reader, size int64, progress func(int64)) (*models.BlobRef, error) {
	if f.beforePut != nil {
		f.beforePut(name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.failFor[name] {
		return nil, fmt.Errorf("upload of %s rejected", name)
	}
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, body); err != nil {
		return nil, err
	}
	if progress != nil {
		progress(size / 2)
		progress(size)
	}
	f.stored[name] = buf.Bytes()
	return &models.BlobRef{Cid: "cid-" + name, Url: "mem://" + name}, nil
}

type MockNotifier struct {
	alerts []string
	fail   bool
}

func (m *MockNotifier) SendAlert(title, desc, content string) error {
	if m.fail {
		return errors.New("test error")
	}
	m.alerts = append(m.alerts, fmt.Sprintf("%s|%s|%s", title, desc, content))
	return nil
}

type SpyObserver struct {
	progress  []models.BatchProgress
	analytics []models.Analytics
}

func (s *SpyObserver) OnProgress(progress models.BatchProgress, analytics models.Analytics) {
	s.progress = append(s.progress, progress)
	s.analytics = append(s.analytics, analytics)
}
