package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// StartTime is an arbitrary, deliberately not week-aligned test epoch.
const StartTime uint64 = 1_700_000_123

// MockClock provides a controllable time source for testing
type MockClock struct {
	mu      sync.Mutex
	current uint64
}

func NewMockClock(start uint64) *MockClock {
	return &MockClock{current: start}
}

func (m *MockClock) Now() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *MockClock) Advance(seconds uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current += seconds
}

func (m *MockClock) Set(t uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// Addr returns a deterministic, non-zero test address.
func Addr(n uint64) common.Address {
	return common.BigToAddress(new(uint256.Int).SetUint64(0x1000 + n).ToBig())
}

// Units returns n whole tokens (n * 1e18).
func Units(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), domain.Unit)
}

func Dec(t *testing.T, s string) *uint256.Int {
	t.Helper()
	v, err := uint256.FromDecimal(s)
	require.NoError(t, err)
	return v
}

// CreateTestEvents creates count sequential events with default values
func CreateTestEvents(t *testing.T, count int) []domain.Event {
	t.Helper()
	events := make([]domain.Event, count)
	for i := 0; i < count; i++ {
		events[i] = domain.NewEvent(domain.EventClaim, StartTime+uint64(i),
			"user", Addr(uint64(i)),
			"amount", uint256.NewInt(uint64(1000+i)),
		)
		events[i].Seq = uint64(i + 1)
		events[i].CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	return events
}

// AssertEventsEqual asserts that two events carry the same payload
func AssertEventsEqual(t *testing.T, expected, actual domain.Event) {
	t.Helper()
	require.Equal(t, expected.Seq, actual.Seq)
	require.Equal(t, expected.Name, actual.Name)
	require.Equal(t, expected.Topic, actual.Topic)
	require.Equal(t, expected.Args, actual.Args)
	require.Equal(t, expected.Timestamp, actual.Timestamp)
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Condition not met within timeout of %v", timeout)
}

// TestContext creates a test context with timeout
func TestContext(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// MockEventRepository is a mock implementation of EventRepository
type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) SaveBatch(ctx context.Context, events []domain.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}

func (m *MockEventRepository) FindAll(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Event), args.Error(1)
}

func (m *MockEventRepository) LastSeq(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

// MockVotingEscrow is a mock implementation of VotingEscrow
type MockVotingEscrow struct {
	mock.Mock
}

func (m *MockVotingEscrow) BalanceOf(ctx context.Context, account common.Address, at uint64) (*uint256.Int, error) {
	args := m.Called(ctx, account, at)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uint256.Int), args.Error(1)
}

func (m *MockVotingEscrow) LockEnd(ctx context.Context, account common.Address) (uint64, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockVotingEscrow) LastSlope(ctx context.Context, account common.Address) (*uint256.Int, error) {
	args := m.Called(ctx, account)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*uint256.Int), args.Error(1)
}

// MemorySink collects published events; safe for concurrent use.
type MemorySink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *MemorySink) SaveBatch(_ context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *MemorySink) FindAll(_ context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, e := range s.events {
		if filter.Name != "" && e.Name != filter.Name {
			continue
		}
		if e.Seq <= filter.AfterSeq {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemorySink) LastSeq(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return 0, nil
	}
	return s.events[len(s.events)-1].Seq, nil
}

func (s *MemorySink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.events))
	for i, e := range s.events {
		names[i] = e.Name
	}
	return names
}

// Last returns the most recent event called name.
func (s *MemorySink) Last(name string) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Name == name {
			return s.events[i], nil
		}
	}
	return domain.Event{}, fmt.Errorf("no %s event recorded", name)
}
