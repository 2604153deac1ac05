package application

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/q4ZAr/boost-market/internal/domain"
	"github.com/q4ZAr/boost-market/pkg/config"
	"github.com/q4ZAr/boost-market/pkg/logger"
	"github.com/q4ZAr/boost-market/pkg/metrics"
)

const journalTimeout = 5 * time.Second

// Params are the deploy-time settings of the engine.
type Params struct {
	Address           common.Address
	Owner             common.Address
	FeeToken          common.Address
	Chest             common.Address
	ReserveManager    common.Address
	Managers          []common.Address
	FeeReserveRatio   uint64
	MinPercRequired   uint64
	MinDelegationTime uint64
	AdvisedPrice      *uint256.Int
	MinVoteDiff       *uint256.Int
	ProtocolFeeRatio  uint64
	RewardTokens      []domain.RewardToken
}

// Dependencies are the collaborators the engine settles against. Journal and
// Events are optional.
type Dependencies struct {
	Escrow  domain.VotingEscrow
	Boosts  domain.DelegationBoost
	Tokens  domain.TokenLedger
	Journal domain.Journal
	Clock   domain.Clock
	Events  domain.EventRepository
}

// ParamsFromConfig parses the YAML market parameters.
func ParamsFromConfig(m *config.Market) (Params, error) {
	p := Params{
		FeeReserveRatio:   m.FeeReserveRatio,
		MinPercRequired:   m.MinPercRequired,
		MinDelegationTime: m.MinDelegationTime,
		ProtocolFeeRatio:  m.ProtocolFeeRatio,
	}

	var err error
	if p.Address, err = parseAddress("engine", m.Engine); err != nil {
		return Params{}, err
	}
	if p.Owner, err = parseAddress("owner", m.Owner); err != nil {
		return Params{}, err
	}
	if p.FeeToken, err = parseAddress("fee_token", m.FeeToken); err != nil {
		return Params{}, err
	}
	if p.Chest, err = parseAddress("chest", m.Chest); err != nil {
		return Params{}, err
	}
	if m.ReserveManager != "" {
		if p.ReserveManager, err = parseAddress("reserve_manager", m.ReserveManager); err != nil {
			return Params{}, err
		}
	}
	for _, raw := range m.Managers {
		addr, err := parseAddress("managers", raw)
		if err != nil {
			return Params{}, err
		}
		p.Managers = append(p.Managers, addr)
	}
	if p.AdvisedPrice, err = parseAmount("advised_price", m.AdvisedPrice); err != nil {
		return Params{}, err
	}
	if p.MinVoteDiff, err = parseAmount("min_vote_diff", m.MinVoteDiff); err != nil {
		return Params{}, err
	}
	for _, rt := range m.RewardTokens {
		token, err := parseAddress("reward_tokens.token", rt.Token)
		if err != nil {
			return Params{}, err
		}
		minRate, err := parseAmount("reward_tokens.min_reward_per_vote", rt.MinRewardPerVote)
		if err != nil {
			return Params{}, err
		}
		p.RewardTokens = append(p.RewardTokens, domain.RewardToken{Token: token, MinRewardPerVote: minRate})
	}

	return p, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", field, raw)
	}
	return common.HexToAddress(raw), nil
}

func parseAmount(field, raw string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid %s amount %q: %w", field, raw, err)
	}
	return v, nil
}

// Engine runs every marketplace, fee and pledge operation as one atomic step
// over its own state and the collaborators' state.
type Engine struct {
	address common.Address
	escrow  domain.VotingEscrow
	boosts  domain.DelegationBoost
	tokens  domain.TokenLedger
	journal domain.Journal
	clock   domain.Clock
	events  domain.EventRepository
	logger  *logger.Logger

	mu  sync.Mutex
	st  *state
	seq uint64
}

func NewEngine(params Params, deps Dependencies, logger *logger.Logger) (*Engine, error) {
	if deps.Escrow == nil || deps.Boosts == nil || deps.Tokens == nil {
		return nil, errors.New("engine requires a voting escrow, a boost primitive and a token ledger")
	}
	if err := validateParams(params); err != nil {
		return nil, fmt.Errorf("invalid market params: %w", err)
	}

	e := &Engine{
		address: params.Address,
		escrow:  deps.Escrow,
		boosts:  deps.Boosts,
		tokens:  deps.Tokens,
		journal: deps.Journal,
		clock:   deps.Clock,
		events:  deps.Events,
		logger:  logger,
		st:      newState(params),
	}
	if e.journal == nil {
		e.journal = noopJournal{}
	}
	if e.clock == nil {
		e.clock = domain.SystemClock{}
	}

	if e.events != nil {
		ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
		defer cancel()
		last, err := e.events.LastSeq(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read last event sequence: %w", err)
		}
		e.seq = last
	}

	e.updateGauges()
	return e, nil
}

func validateParams(p Params) error {
	switch {
	case domain.IsZeroAddress(p.Address), domain.IsZeroAddress(p.Owner),
		domain.IsZeroAddress(p.FeeToken), domain.IsZeroAddress(p.Chest):
		return domain.ErrZeroAddress
	case p.Chest == p.Address:
		return domain.ErrInvalidAddress
	case p.FeeReserveRatio > domain.MaxFeeReserveRatio:
		return domain.ErrInvalidValue
	case p.MinPercRequired == 0 || p.MinPercRequired > domain.MaxBPS:
		return domain.ErrInvalidValue
	case p.MinDelegationTime == 0:
		return domain.ErrNullValue
	case p.ProtocolFeeRatio == 0 || p.ProtocolFeeRatio > domain.MaxProtocolFeeRatio:
		return domain.ErrInvalidValue
	case p.AdvisedPrice == nil || p.AdvisedPrice.IsZero():
		return domain.ErrNullValue
	case p.MinVoteDiff == nil || p.MinVoteDiff.Lt(domain.Unit):
		return domain.ErrInvalidValue
	}
	for _, rt := range p.RewardTokens {
		if domain.IsZeroAddress(rt.Token) {
			return domain.ErrZeroAddress
		}
		if rt.MinRewardPerVote == nil || rt.MinRewardPerVote.IsZero() {
			return domain.ErrNullValue
		}
	}
	return nil
}

func (e *Engine) Address() common.Address {
	return e.address
}

// tx is the context of one engine operation. Events and commit hooks are
// only released once the operation succeeds.
type tx struct {
	ctx      context.Context
	now      uint64
	caller   common.Address
	events   []domain.Event
	onCommit []func()
}

func (t *tx) emit(name string, kv ...interface{}) {
	t.events = append(t.events, domain.NewEvent(name, t.now, kv...))
}

func (t *tx) afterCommit(fn func()) {
	t.onCommit = append(t.onCommit, fn)
}

// execute runs fn as a single all-or-nothing operation. gated operations are
// refused while the engine is paused.
func (e *Engine) execute(ctx context.Context, op string, caller common.Address, gated bool, fn func(t *tx) error) error {
	start := time.Now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if gated && e.st.paused {
		e.reject(op, caller, domain.ErrPaused, start)
		return domain.ErrPaused
	}

	snapshot := e.st.clone()
	rev := e.journal.NewCheckpoint()

	t := &tx{ctx: ctx, now: e.clock.Now(), caller: caller}
	if err := fn(t); err != nil {
		e.st = snapshot
		e.journal.RevertTo(rev)
		e.reject(op, caller, err, start)
		return err
	}

	e.journal.Release(rev)
	e.publish(ctx, t.events)
	for _, hook := range t.onCommit {
		hook()
	}

	metrics.RecordOperation(op, "committed", time.Since(start).Seconds())
	e.updateGauges()
	e.logger.Debugw("Operation committed",
		"operation", op,
		"caller", caller.Hex(),
		"events", len(t.events),
	)
	return nil
}

// read runs fn under the engine lock without opening a checkpoint.
func (e *Engine) read(ctx context.Context, fn func(t *tx) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return fn(&tx{ctx: ctx, now: e.clock.Now()})
}

// Sequence runs fn serialized with engine operations. It is used to mutate
// collaborators from outside the engine without interleaving with a transaction.
func (e *Engine) Sequence(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return fn()
}

func (e *Engine) reject(op string, caller common.Address, err error, start time.Time) {
	duration := time.Since(start).Seconds()
	if reason := domain.ReasonOf(err); reason != "" {
		metrics.RecordRevert(reason)
		metrics.RecordOperation(op, "reverted", duration)
		e.logger.Infow("Operation reverted",
			"operation", op,
			"caller", caller.Hex(),
			"reason", reason,
		)
		return
	}
	metrics.RecordOperation(op, "failed", duration)
	e.logger.Errorw("Operation failed",
		"operation", op,
		"caller", caller.Hex(),
		"error", err,
	)
}

func (e *Engine) publish(ctx context.Context, events []domain.Event) {
	if len(events) == 0 {
		return
	}
	createdAt := time.Now().UTC()
	for i := range events {
		e.seq++
		events[i].Seq = e.seq
		events[i].ID = uuid.NewString()
		events[i].CreatedAt = createdAt
		metrics.RecordEvent(events[i].Name)
	}

	if e.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()
	if err := e.events.SaveBatch(ctx, events); err != nil {
		metrics.JournalWriteErrors.Inc()
		e.logger.Errorw("Failed to journal events",
			"error", err,
			"count", len(events),
			"firstSeq", events[0].Seq,
		)
	}
}

func (e *Engine) updateGauges() {
	metrics.UpdateMarketGauges(len(e.st.offers)-1, e.st.openPledges())
	metrics.UpdateReserve(tokenFloat(e.st.reserveAmount))
}

// Events lists journaled events. It fails when no journal is configured.
func (e *Engine) Events(ctx context.Context, filter domain.EventFilter) ([]domain.Event, error) {
	if e.events == nil {
		return nil, ErrJournalDisabled
	}
	return e.events.FindAll(ctx, filter)
}

var ErrJournalDisabled = errors.New("event journal is disabled")

type Stats struct {
	Offers        int    `json:"offers"`
	Pledges       int    `json:"pledges"`
	OpenPledges   int    `json:"open_pledges"`
	ReserveAmount string `json:"reserve_amount"`
	AdvisedPrice  string `json:"advised_price"`
	Paused        bool   `json:"paused"`
	ClaimBlocked  bool   `json:"claim_blocked"`
	LastEventSeq  uint64 `json:"last_event_seq"`
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	return Stats{
		Offers:        len(e.st.offers) - 1,
		Pledges:       len(e.st.pledges),
		OpenPledges:   e.st.openPledges(),
		ReserveAmount: e.st.reserveAmount.Dec(),
		AdvisedPrice:  e.st.advisedPrice.Dec(),
		Paused:        e.st.paused,
		ClaimBlocked:  e.st.claimBlocked,
		LastEventSeq:  e.seq,
	}
}

// tokenFloat converts a 1e18-scaled amount to whole tokens for gauges.
func tokenFloat(v *uint256.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v.ToBig()), new(big.Float).SetInt(domain.Unit.ToBig())).Float64()
	return f
}

// collapse maps any rejection by the delegation primitive to CannotDelegate.
func collapse(err error, what string) error {
	if domain.IsRevert(err) {
		return domain.ErrCannotDelegate
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}

type noopJournal struct{}

func (noopJournal) NewCheckpoint() int { return 0 }
func (noopJournal) RevertTo(int)       {}
func (noopJournal) Release(int)        {}
