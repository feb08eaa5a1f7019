// Package listener waits for relayed unlock payments to land on chain.
package listener

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/wave745/goontest-sub001/utils"
)

var (
	// ErrTxFailed: the transaction landed but its execution failed.
	ErrTxFailed = errors.New("transaction failed on chain")

	errSubscribe = errors.New("signature subscribe failed")
)

// StatusClient is the slice of *rpc.Client the confirmer polls with.
type StatusClient interface {
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// Confirmer waits for a signature to reach a commitment level. It subscribes
// over WebSocket when a ws URL is configured and falls back to polling
// getSignatureStatuses otherwise, or when the subscription cannot be set up.
type Confirmer struct {
	client       StatusClient
	wsURL        string
	commitment   rpc.CommitmentType
	pollInterval time.Duration
	log          *utils.Logger
}

func NewConfirmer(client StatusClient, wsURL, commitment string, pollInterval time.Duration, log *utils.Logger) *Confirmer {
	c := rpc.CommitmentType(commitment)
	if c == "" {
		c = rpc.CommitmentConfirmed
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if log == nil {
		log = utils.Discard
	}
	return &Confirmer{client: client, wsURL: wsURL, commitment: c, pollInterval: pollInterval, log: log}
}

// Confirm blocks until sig is confirmed, fails on chain, or ctx is done.
func (c *Confirmer) Confirm(ctx context.Context, sig solana.Signature) error {
	if c.wsURL != "" {
		err := c.subscribe(ctx, sig)
		if !errors.Is(err, errSubscribe) {
			return err
		}
		c.log.Warn("ws confirmation for %s unavailable, polling instead: %v", sig, err)
	}
	return c.poll(ctx, sig)
}

func (c *Confirmer) subscribe(ctx context.Context, sig solana.Signature) error {
	wsClient, err := ws.Connect(ctx, c.wsURL)
	if err != nil {
		return fmt.Errorf("%w: connect: %v", errSubscribe, err)
	}
	defer wsClient.Close()

	sub, err := wsClient.SignatureSubscribe(sig, c.commitment)
	if err != nil {
		return fmt.Errorf("%w: %v", errSubscribe, err)
	}
	defer sub.Unsubscribe()

	// the signature may have landed before the subscription was active
	if done, err := c.check(ctx, sig); done || err != nil {
		return err
	}

	res, err := sub.Recv(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: recv: %v", errSubscribe, err)
	}
	if res != nil && res.Value.Err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTxFailed, sig, res.Value.Err)
	}
	c.log.Debug("signature %s reached %s via ws", sig, c.commitment)
	return nil
}

func (c *Confirmer) poll(ctx context.Context, sig solana.Signature) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		done, err := c.check(ctx, sig)
		if done || err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// check reports whether sig has reached the commitment. RPC errors are
// treated as "not yet" so a flaky node does not fail the payment.
func (c *Confirmer) check(ctx context.Context, sig solana.Signature) (bool, error) {
	statuses, err := c.client.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		c.log.Debug("signature status %s: %v", sig, err)
		return false, nil
	}
	if statuses == nil || len(statuses.Value) == 0 || statuses.Value[0] == nil {
		return false, nil
	}
	status := statuses.Value[0]
	if status.Err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrTxFailed, sig, status.Err)
	}
	return reached(status.ConfirmationStatus, c.commitment), nil
}

var commitmentRank = map[string]int{
	string(rpc.CommitmentProcessed): 1,
	string(rpc.CommitmentConfirmed): 2,
	string(rpc.CommitmentFinalized): 3,
}

func reached(status rpc.ConfirmationStatusType, want rpc.CommitmentType) bool {
	got, ok := commitmentRank[string(status)]
	if !ok {
		return false
	}
	return got >= commitmentRank[string(want)]
}
