package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"gridsettle/crypto"
	"gridsettle/ledger"
	"gridsettle/observability"
)

// Config captures the runtime knobs of the settlement engine.
type Config struct {
	// MaxGroupItems caps claims per transaction group.
	MaxGroupItems int
	// MaxGroupAmount caps the accumulated token amount per group.
	MaxGroupAmount uint64
	// MaxBatchClaims is the absolute per-run claim ceiling.
	MaxBatchClaims int
	// MaxInFlight bounds concurrently running group pipelines.
	MaxInFlight int
	// SubmitRate paces ledger submissions per second. Zero disables pacing.
	SubmitRate float64
	// BaseFee is the per-transaction ledger fee in fee units.
	BaseFee uint64
	// AccountCreationFee is the per-account creation fee in fee units.
	AccountCreationFee uint64
}

// Engine settles batches of mint claims against the ledger: it plans
// transaction-legal groups, resolves settlement accounts, submits one
// aggregated mint transaction per recipient group with bounded parallelism,
// and maps transaction outcomes back onto the original claims.
type Engine struct {
	client    ledger.Client
	authority *crypto.PrivateKey
	limits    Limits
	inFlight  int
	baseFee   uint64
	acctFee   uint64
	chainID   uint64
	limiter   *rate.Limiter
	metrics   *observability.SettlementMetrics
	log       *slog.Logger
	now       func() time.Time
}

// Option customises the engine instance.
type Option func(*Engine)

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *observability.SettlementMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger supplies the structured logger used for per-group reporting.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.now = clock }
}

// WithChainID overrides the ledger chain identifier stamped into transactions.
func WithChainID(id uint64) Option {
	return func(e *Engine) { e.chainID = id }
}

// NewEngine constructs a settlement engine speaking to the supplied ledger
// client, signing with the settlement authority key.
func NewEngine(client ledger.Client, authority *crypto.PrivateKey, cfg Config, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, fmt.Errorf("settle: ledger client required")
	}
	if authority == nil {
		return nil, fmt.Errorf("settle: authority key required")
	}
	limits := Limits{MaxItems: cfg.MaxGroupItems, MaxAmount: cfg.MaxGroupAmount, MaxClaims: cfg.MaxBatchClaims}
	if err := limits.validate(); err != nil {
		return nil, err
	}
	inFlight := cfg.MaxInFlight
	if inFlight <= 0 {
		inFlight = 4
	}
	engine := &Engine{
		client:    client,
		authority: authority,
		limits:    limits,
		inFlight:  inFlight,
		baseFee:   cfg.BaseFee,
		acctFee:   cfg.AccountCreationFee,
		chainID:   ledger.ChainID,
		now:       time.Now,
	}
	if cfg.SubmitRate > 0 {
		engine.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), 1)
	}
	for _, opt := range opts {
		opt(engine)
	}
	if engine.metrics == nil {
		engine.metrics = observability.Settlement()
	}
	if engine.log == nil {
		engine.log = slog.Default()
	}
	return engine, nil
}

// SettleBatch settles the supplied claims and returns exactly one outcome per
// claim, in input order. Structural errors (empty batch, ceiling exceeded)
// abort the whole call with no outcomes; everything else is reported
// per-claim, and a partially successful run is a normal result.
func (e *Engine) SettleBatch(ctx context.Context, claims []MintClaim) ([]Outcome, error) {
	if len(claims) == 0 {
		e.metrics.RecordError("empty_batch")
		return nil, ErrEmptyBatch
	}
	if len(claims) > e.limits.MaxClaims {
		e.metrics.RecordError("batch_too_large")
		return nil, &BatchTooLargeError{Size: len(claims), Max: e.limits.MaxClaims}
	}
	start := e.now()

	// Malformed claims fail individually without blocking the rest.
	upfront := make(map[uuid.UUID]Outcome)
	valid := make([]MintClaim, 0, len(claims))
	for _, claim := range claims {
		if err := claim.Validate(); err != nil {
			upfront[claim.ID] = Outcome{
				ClaimID: claim.ID,
				Status:  StatusFailed,
				Kind:    FailInvalidClaim,
				Reason:  err.Error(),
			}
			continue
		}
		valid = append(valid, claim)
	}

	var plan *BatchPlan
	var results []groupResult
	if len(valid) > 0 {
		planned, err := Plan(valid, e.limits)
		if err != nil {
			return nil, err
		}
		plan = planned
		results = e.dispatch(ctx, plan.Groups)
	}

	outcomes := aggregate(claims, plan, results, upfront)
	e.recordRun(plan, results, outcomes, e.now().Sub(start))
	return outcomes, nil
}

// EstimateFee predicts the cost of settling the supplied claims without
// executing anything. The same structural checks as SettleBatch apply.
func (e *Engine) EstimateFee(claims []MintClaim) (FeeEstimate, error) {
	if len(claims) == 0 {
		return FeeEstimate{}, ErrEmptyBatch
	}
	if len(claims) > e.limits.MaxClaims {
		return FeeEstimate{}, &BatchTooLargeError{Size: len(claims), Max: e.limits.MaxClaims}
	}
	valid := make([]MintClaim, 0, len(claims))
	for _, claim := range claims {
		if claim.Validate() == nil {
			valid = append(valid, claim)
		}
	}
	if len(valid) == 0 {
		return FeeEstimate{}, nil
	}
	plan, err := Plan(valid, e.limits)
	if err != nil {
		return FeeEstimate{}, err
	}
	estimate := EstimateFee(plan, e.baseFee, e.acctFee)
	e.metrics.RecordEstimate(estimate.TotalFeeUnits)
	return estimate, nil
}

// dispatch runs each group pipeline as an independent unit of work with
// bounded parallelism. Admission follows plan order; completion order is
// unconstrained. A caller cancellation stops admitting further groups but
// already-started pipelines run to a terminal state.
func (e *Engine) dispatch(ctx context.Context, groups []TransactionGroup) []groupResult {
	results := make([]groupResult, len(groups))
	slots := make(chan struct{}, e.inFlight)
	var wg sync.WaitGroup
	for i := range groups {
		if ctx.Err() != nil {
			results[i] = groupResult{
				status: StatusFailed,
				kind:   FailCanceled,
				reason: "run canceled before group was dispatched",
			}
			continue
		}
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			results[i] = groupResult{
				status: StatusFailed,
				kind:   FailCanceled,
				reason: "run canceled before group was dispatched",
			}
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-slots }()
			results[i] = e.processGroup(ctx, groups[i])
		}(i)
	}
	wg.Wait()
	return results
}

func (e *Engine) processGroup(ctx context.Context, group TransactionGroup) groupResult {
	e.metrics.GroupStarted()
	start := e.now()
	res := e.runGroup(ctx, group)
	e.metrics.GroupFinished()
	e.metrics.ObserveGroup(string(res.status), e.now().Sub(start))
	switch res.status {
	case StatusSettled:
		e.log.Info("group settled",
			"account", group.Account,
			"claims", len(group.Claims),
			"amount", group.Total,
			"tx", res.txHash,
		)
	case StatusIndeterminate:
		e.metrics.RecordError("indeterminate")
		e.log.Warn("group outcome indeterminate",
			"account", group.Account,
			"claims", len(group.Claims),
			"tx", res.txHash,
			"reason", res.reason,
		)
	default:
		e.metrics.RecordError(string(res.kind))
		e.log.Warn("group failed",
			"account", group.Account,
			"claims", len(group.Claims),
			"kind", string(res.kind),
			"reason", res.reason,
		)
	}
	return res
}

// runGroup executes one pipeline: resolve account, build the aggregated mint
// transaction, submit and await confirmation. The three phases are strictly
// ordered; the ledger calls are the only suspension points.
func (e *Engine) runGroup(ctx context.Context, group TransactionGroup) groupResult {
	if _, err := e.resolveAccount(ctx, group.Account); err != nil {
		if isCtxErr(err) {
			return groupResult{
				status: StatusFailed,
				kind:   FailCanceled,
				reason: "run canceled before account resolution completed",
			}
		}
		return groupResult{status: StatusFailed, kind: FailAccountResolution, reason: err.Error()}
	}

	tx, err := e.buildTransaction(group)
	if err != nil {
		if errors.Is(err, ErrInvalidAmount) {
			return groupResult{status: StatusFailed, kind: FailInvalidAmount, reason: err.Error()}
		}
		return groupResult{status: StatusFailed, kind: FailSubmission, reason: err.Error()}
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return groupResult{
				status: StatusFailed,
				kind:   FailCanceled,
				reason: "run canceled before submission",
			}
		}
	}

	hash, err := e.client.SubmitTransaction(ctx, tx)
	switch {
	case err == nil:
		return groupResult{status: StatusSettled, txHash: hash}
	case errors.Is(err, ledger.ErrUnconfirmed):
		// The ledger accepted the submission; it may still land.
		return groupResult{
			status: StatusIndeterminate,
			txHash: hash,
			reason: "submitted but confirmation not observed",
		}
	case isCtxErr(err):
		// The submission was already dispatched when the caller gave up; the
		// transaction may have reached the ledger and completed server-side.
		return groupResult{
			status: StatusIndeterminate,
			reason: "canceled while awaiting confirmation",
		}
	default:
		return groupResult{status: StatusFailed, kind: FailSubmission, reason: err.Error()}
	}
}

// resolveAccount returns an existing settlement account handle or lazily
// creates one. A creation that raced with a prior or concurrent call is
// treated as success.
func (e *Engine) resolveAccount(ctx context.Context, addr string) (ledger.Account, error) {
	exists, err := e.client.AccountExists(ctx, addr)
	if err != nil {
		return ledger.Account{}, fmt.Errorf("lookup account: %w", err)
	}
	if exists {
		return ledger.Account{Address: addr}, nil
	}
	account, err := e.client.CreateAccount(ctx, addr)
	if err != nil {
		if errors.Is(err, ledger.ErrAccountExists) {
			return ledger.Account{Address: addr}, nil
		}
		return ledger.Account{}, fmt.Errorf("create account: %w", err)
	}
	return account, nil
}

// buildTransaction produces the single signed mint transaction for a group.
func (e *Engine) buildTransaction(group TransactionGroup) (*ledger.SignedTx, error) {
	if group.Total == 0 {
		return nil, ErrInvalidAmount
	}
	tx := ledger.MintTx{
		Account:  group.Account,
		Amount:   strconv.FormatUint(group.Total, 10),
		ChainID:  e.chainID,
		IssuedAt: e.now().Unix(),
	}
	signed, err := tx.Sign(e.authority)
	if err != nil {
		return nil, fmt.Errorf("build mint tx: %w", err)
	}
	return signed, nil
}

func (e *Engine) recordRun(plan *BatchPlan, results []groupResult, outcomes []Outcome, elapsed time.Duration) {
	counts := make(map[OutcomeStatus]int, 3)
	for _, outcome := range outcomes {
		counts[outcome.Status]++
	}
	for status, n := range counts {
		e.metrics.RecordClaims(string(status), n)
	}
	if plan != nil {
		for i, group := range plan.Groups {
			if results[i].status == StatusSettled {
				e.metrics.RecordMinted(group.Total)
			}
		}
	}
	e.metrics.ObserveRun(elapsed)
}

func isCtxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
