package application

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/q4ZAr/boost-market/pkg/logger"
	"github.com/q4ZAr/boost-market/pkg/metrics"
)

const (
	keeperConcurrency = 8
	keeperTimeout     = 5 * time.Minute
)

// Keeper periodically checkpoints the accounts the engine depends on so the
// delegation primitive drops expired boosts.
type Keeper struct {
	engine   *Engine
	schedule string
	logger   *logger.Logger
	cron     *cron.Cron
	mu       sync.Mutex
	started  bool
	initial  sync.WaitGroup
}

func NewKeeper(engine *Engine, schedule string, logger *logger.Logger) *Keeper {
	return &Keeper{
		engine:   engine,
		schedule: schedule,
		logger:   logger,
	}
}

func (k *Keeper) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.started {
		return fmt.Errorf("keeper already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(k.schedule, k.runOnce); err != nil {
		return fmt.Errorf("failed to schedule keeper %q: %w", k.schedule, err)
	}
	c.Start()
	k.cron = c
	k.started = true

	k.initial.Add(1)
	go func() {
		defer k.initial.Done()
		k.runOnce()
	}()

	k.logger.Infow("Keeper started", "schedule", k.schedule)
	return nil
}

func (k *Keeper) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.started {
		return
	}

	<-k.cron.Stop().Done()
	k.initial.Wait()
	k.started = false
	k.logger.Info("Keeper stopped")
}

func (k *Keeper) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), keeperTimeout)
	defer cancel()

	if err := k.RefreshOnce(ctx); err != nil {
		k.logger.Errorw("Checkpoint refresh incomplete", "error", err)
	}
}

// RefreshOnce checkpoints every listed seller and every open pledge receiver.
// Each refresh is serialized with engine operations.
func (k *Keeper) RefreshOnce(ctx context.Context) error {
	accounts := k.engine.CheckpointAccounts(ctx)
	if len(accounts) == 0 {
		return nil
	}

	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(keeperConcurrency)

	for _, account := range accounts {
		account := account
		g.Go(func() error {
			err := k.engine.Sequence(func() error {
				return k.engine.boosts.RefreshAccountCheckpoint(gctx, account)
			})
			metrics.RecordKeeperRefresh(err == nil)
			if err != nil {
				failed.Add(1)
				k.logger.Warnw("Failed to refresh account checkpoint", "account", account.Hex(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("failed to refresh %d of %d accounts", n, len(accounts))
	}
	k.logger.Debugw("Refreshed account checkpoints", "count", len(accounts))
	return nil
}

// CheckpointAccounts lists listed sellers and receivers of open pledges,
// without duplicates, in listing order.
func (e *Engine) CheckpointAccounts(ctx context.Context) []common.Address {
	var accounts []common.Address
	_ = e.read(ctx, func(t *tx) error {
		seen := make(map[common.Address]bool)
		add := func(a common.Address) {
			if !seen[a] {
				seen[a] = true
				accounts = append(accounts, a)
			}
		}
		for _, o := range e.st.offers[1:] {
			add(o.User)
		}
		for _, p := range e.st.pledges {
			if !p.Closed && p.EndTimestamp > t.now {
				add(p.Receiver)
			}
		}
		return nil
	})
	return accounts
}
