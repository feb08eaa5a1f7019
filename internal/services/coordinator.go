package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/wave745/goontest-sub001/internal/db"
	"github.com/wave745/goontest-sub001/internal/models"
	"github.com/wave745/goontest-sub001/utils"
)

// errAbandoned marks a flight cancelled because every caller stopped waiting.
var errAbandoned = errors.New("unlock attempt abandoned")

// AttemptState is the lifecycle of one unlock attempt.
type AttemptState int

const (
	StateIdle AttemptState = iota
	StateAwaitingPayment
	StateConfirming
	StateCommitted
	StateFailed
)

func (s AttemptState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPayment:
		return "awaiting_payment"
	case StateConfirming:
		return "confirming"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("AttemptState(%d)", int(s))
	}
}

// UnlockInput identifies who unlocks what. WalletPubkey empty means no wallet
// is connected; UserID defaults to WalletPubkey.
type UnlockInput struct {
	UserID       string
	PostID       string
	WalletPubkey string
	TxnSignature string
	SerializedTx string
}

// UnlockResult is the outcome of Unlock. On failure it is still returned with
// a fail-closed Access so callers can render the post as locked.
type UnlockResult struct {
	UserID          string
	PostID          string
	Access          models.AccessState
	AlreadyUnlocked bool
	Record          *models.UnlockRecord
	State           AttemptState
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithVerifier sets the payment verifier. Defaults to TrustingVerifier.
func WithVerifier(v PaymentVerifier) CoordinatorOption {
	return func(c *Coordinator) { c.verifier = v }
}

// WithTimeout bounds AwaitingPayment plus Confirming. Zero disables the bound.
func WithTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *utils.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = l }
}

// WithObserver registers a callback for every attempt state transition.
func WithObserver(fn func(key string, state AttemptState)) CoordinatorOption {
	return func(c *Coordinator) { c.observe = fn }
}

// Coordinator runs unlock attempts. Concurrent attempts for the same
// (user, post) share a single provider call that keeps running until its last
// caller stops waiting; different keys never wait on each other.
type Coordinator struct {
	store    db.Store
	provider PaymentProvider
	verifier PaymentVerifier
	timeout  time.Duration
	log      *utils.Logger
	observe  func(key string, state AttemptState)

	flights singleflight.Group
	mu      sync.Mutex
	waiting map[string]*waiters
}

// waiters counts the callers blocked on one key. The flight runs on ctx, which
// is cancelled once n drops to zero.
type waiters struct {
	n      int
	ctx    context.Context
	cancel context.CancelFunc
}

func NewCoordinator(store db.Store, provider PaymentProvider, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:    store,
		provider: provider,
		verifier: TrustingVerifier{},
		timeout:  2 * time.Minute,
		log:      utils.Discard,
		waiting:  make(map[string]*waiters),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Unlock runs or joins an unlock attempt for in.UserID and in.PostID.
func (c *Coordinator) Unlock(ctx context.Context, in UnlockInput) (*UnlockResult, error) {
	if in.WalletPubkey == "" {
		return nil, ErrNotConnected
	}
	if in.PostID == "" {
		return nil, fmt.Errorf("%w: postId is required", ErrInvalidRequest)
	}
	if in.UserID == "" {
		in.UserID = in.WalletPubkey
	}

	post, err := c.store.GetPost(ctx, in.PostID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, ErrPostNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}

	res := &UnlockResult{UserID: in.UserID, PostID: post.ID, State: StateIdle}
	switch state := Resolve(post, nil); state.Kind {
	case models.AccessNotAvailable:
		return nil, ErrNotAvailable
	case models.AccessFree:
		res.Access = state
		return res, nil
	}

	if done, err := c.alreadyUnlocked(ctx, post, res); done || err != nil {
		return res, err
	}

	key := in.UserID + "|" + post.ID
	for {
		fctx := c.join(ctx, key)
		led := false
		ch := c.flights.DoChan(key, func() (interface{}, error) {
			led = true
			return c.attempt(fctx, key, post, in)
		})

		select {
		case <-ctx.Done():
			c.leave(key)
			res.Access = models.Locked(post.PriceLamports)
			res.State = StateFailed
			return res, cancelled(ctx.Err())
		case r := <-ch:
			c.leave(key)
			// joined a flight whose last waiter had already left
			if errors.Is(r.Err, errAbandoned) {
				if ctx.Err() == nil {
					continue
				}
				res.Access = models.Locked(post.PriceLamports)
				res.State = StateFailed
				return res, cancelled(ctx.Err())
			}
			out := r.Val.(UnlockResult)
			if r.Err == nil && !led {
				c.joined(key, in, &out)
			}
			return &out, r.Err
		}
	}
}

// join registers the caller as waiting on key and returns the context the
// shared attempt runs on. It outlives any single caller.
func (c *Coordinator) join(ctx context.Context, key string) context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.waiting[key]
	if !ok {
		w = &waiters{}
		w.ctx, w.cancel = context.WithCancel(context.WithoutCancel(ctx))
		c.waiting[key] = w
	}
	w.n++
	return w.ctx
}

// leave drops the caller from key and cancels the shared attempt when nobody
// is left waiting on it.
func (c *Coordinator) leave(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.waiting[key]
	if !ok {
		return
	}
	w.n--
	if w.n <= 0 {
		w.cancel()
		delete(c.waiting, key)
	}
}

func (c *Coordinator) waiterCount(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.waiting[key]; ok {
		return w.n
	}
	return 0
}

// joined adjusts a result copied from another caller's attempt. Only the
// leading caller's signature reaches the ledger.
func (c *Coordinator) joined(key string, in UnlockInput, out *UnlockResult) {
	if out.Record == nil {
		return
	}
	out.AlreadyUnlocked = true
	if in.TxnSignature != "" && in.TxnSignature != out.Record.TxnSignature {
		c.log.Warn("unlock %s: signature %s not recorded, pair committed by a concurrent attempt with %s",
			key, in.TxnSignature, out.Record.TxnSignature)
	}
}

// alreadyUnlocked fills res and reports true when the ledger already holds the
// pair. A ledger failure fails closed.
func (c *Coordinator) alreadyUnlocked(ctx context.Context, post *models.Post, res *UnlockResult) (bool, error) {
	rec, err := c.store.GetPurchase(ctx, res.UserID, post.ID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return false, nil
	case err != nil:
		res.Access = models.Locked(post.PriceLamports)
		res.State = StateFailed
		return false, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	res.Access = Resolve(post, rec)
	res.AlreadyUnlocked = true
	res.Record = rec
	res.State = StateCommitted
	return true, nil
}

// attempt is the body of one flight. Its result value is always an
// UnlockResult so joiners can copy it.
func (c *Coordinator) attempt(ctx context.Context, key string, post *models.Post, in UnlockInput) (UnlockResult, error) {
	res := UnlockResult{UserID: in.UserID, PostID: post.ID, State: StateIdle}
	c.transition(key, &res, StateIdle)

	fail := func(err error) (UnlockResult, error) {
		res.Access = models.Locked(post.PriceLamports)
		res.Record = nil
		c.transition(key, &res, StateFailed)
		if ctx.Err() != nil {
			c.log.Debug("unlock %s abandoned: %v", key, err)
			return res, fmt.Errorf("%w: %w", errAbandoned, err)
		}
		c.log.Warn("unlock %s failed: %v", key, err)
		return res, err
	}

	// a previous flight for this key may have committed since the caller checked
	if done, err := c.alreadyUnlocked(ctx, post, &res); err != nil {
		return fail(err)
	} else if done {
		c.transition(key, &res, StateCommitted)
		return res, nil
	}

	recipient, err := c.recipient(ctx, post)
	if err != nil {
		return fail(err)
	}

	payCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		payCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := PaymentRequest{
		UserID:         in.UserID,
		PostID:         post.ID,
		Payer:          in.WalletPubkey,
		Recipient:      recipient,
		AmountLamports: post.PriceLamports,
		TxnSignature:   in.TxnSignature,
		SerializedTx:   in.SerializedTx,
	}

	c.transition(key, &res, StateAwaitingPayment)
	receipt, err := c.provider.RequestPayment(payCtx, req)
	if err != nil {
		return fail(providerFailure(payCtx, err))
	}
	if receipt.Signature == "" {
		return fail(fmt.Errorf("%w: provider returned no signature", ErrProviderError))
	}
	if receipt.Payer == "" {
		receipt.Payer = in.WalletPubkey
	}

	c.transition(key, &res, StateConfirming)
	if err := c.verifier.Verify(payCtx, req, receipt); err != nil {
		return fail(providerFailure(payCtx, err))
	}

	// payment is confirmed: the ledger write must not be abandoned by a caller
	// that stops waiting
	rec, err := c.store.RecordPurchase(context.WithoutCancel(ctx), models.UnlockRecord{
		UserID:         in.UserID,
		PostID:         post.ID,
		AmountLamports: post.PriceLamports,
		TxnSignature:   receipt.Signature,
		PayerAddress:   receipt.Payer,
	})
	switch {
	case err == nil:
		res.Record = rec
	case errors.Is(err, db.ErrDuplicateUnlock):
		c.log.Info("unlock %s raced with an already committed record", key)
		res.Record = rec
		res.AlreadyUnlocked = true
	case errors.Is(err, db.ErrDuplicateSignature):
		return fail(fmt.Errorf("%w: %s", ErrPaymentReplay, receipt.Signature))
	default:
		c.log.Error("unlock %s: payment %s confirmed but not recorded: %v", key, receipt.Signature, err)
		return fail(fmt.Errorf("%w: %w", ErrLedgerUnavailable, err))
	}

	res.Access = Resolve(post, res.Record)
	c.transition(key, &res, StateCommitted)
	c.log.Info("unlock %s committed signature=%s amount=%d", key, res.Record.TxnSignature, res.Record.AmountLamports)
	return res, nil
}

// recipient returns the creator's wallet, or "" when the creator has none.
func (c *Coordinator) recipient(ctx context.Context, post *models.Post) (string, error) {
	creator, err := c.store.GetUser(ctx, post.CreatorID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return "", nil
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	return creator.WalletAddress, nil
}

func (c *Coordinator) transition(key string, res *UnlockResult, state AttemptState) {
	res.State = state
	c.log.Debug("unlock %s -> %s", key, state)
	if c.observe != nil {
		c.observe(key, state)
	}
}

// providerFailure keeps declines as declines and folds everything else into
// ErrProviderError.
func providerFailure(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, ErrPaymentDeclined), errors.Is(err, ErrPaymentMismatch), errors.Is(err, ErrProviderError):
		return err
	case ctx.Err() != nil:
		return cancelled(ctx.Err())
	default:
		return fmt.Errorf("%w: %w", ErrProviderError, err)
	}
}

// cancelled maps a caller cancel to a decline and a deadline to a provider error.
func cancelled(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: payment timed out: %w", ErrProviderError, err)
	}
	return fmt.Errorf("%w: cancelled: %w", ErrPaymentDeclined, err)
}
