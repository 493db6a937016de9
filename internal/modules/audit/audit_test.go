package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"scamwatch/internal/background"
	"scamwatch/internal/storage"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type memStore struct {
	mu      sync.Mutex
	actions []storage.AdminAction
	err     error
}

func (m *memStore) AddAdminAction(_ context.Context, action storage.AdminAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.actions = append(m.actions, action)
	return nil
}

func TestRecordWritesAndNotifies(t *testing.T) {
	store := &memStore{}
	runner := background.New(zap.NewNop(), nil, time.Second)
	logger := NewLogger(store, runner, nil, zap.NewNop())

	var notified []string
	var mu sync.Mutex
	logger.SetNotifier(func(_ context.Context, action storage.AdminAction) error {
		mu.Lock()
		notified = append(notified, action.ActionType)
		mu.Unlock()
		return nil
	})

	logger.Record(context.Background(), storage.AdminAction{AdminID: "a", ActionType: storage.ActionKick, TargetID: "u"})
	runner.Wait()

	require.Len(t, store.actions, 1)
	assert.Equal(t, []string{storage.ActionKick}, notified)
}

func TestRecordSwallowsStoreFailure(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	store := &memStore{err: errors.New("connection refused")}
	logger := NewLogger(store, nil, nil, zap.New(core))

	logger.Record(context.Background(), storage.AdminAction{ActionType: storage.ActionBan})
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "audit write failed", logs.All()[0].Message)
}
