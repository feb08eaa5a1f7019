package services

import (
	"context"
	"fmt"
)

// PaymentRequest asks a provider for a payment of AmountLamports from Payer to
// Recipient (the creator's wallet). TxnSignature and SerializedTx carry the
// client's proof, whichever the provider consumes.
type PaymentRequest struct {
	UserID         string
	PostID         string
	Payer          string
	Recipient      string
	AmountLamports uint64
	TxnSignature   string
	SerializedTx   string
}

// PaymentReceipt is the provider's confirmation of a payment.
type PaymentReceipt struct {
	Signature string
	Payer     string
}

// PaymentProvider obtains a confirmed payment. It may block for human-scale
// time and must return promptly once ctx is done.
type PaymentProvider interface {
	RequestPayment(ctx context.Context, req PaymentRequest) (PaymentReceipt, error)
}

// PaymentVerifier checks a receipt before it is committed to the ledger.
// Returning an error wrapping ErrPaymentMismatch declines the payment.
type PaymentVerifier interface {
	Verify(ctx context.Context, req PaymentRequest, receipt PaymentReceipt) error
}

// ProofProvider accepts the signature of a transfer the wallet already
// submitted client-side.
type ProofProvider struct{}

func (ProofProvider) RequestPayment(ctx context.Context, req PaymentRequest) (PaymentReceipt, error) {
	if err := ctx.Err(); err != nil {
		return PaymentReceipt{}, err
	}
	if req.TxnSignature == "" {
		return PaymentReceipt{}, fmt.Errorf("%w: no txn signature supplied", ErrPaymentDeclined)
	}
	return PaymentReceipt{Signature: req.TxnSignature, Payer: req.Payer}, nil
}

// TrustingVerifier accepts any receipt carrying a signature.
type TrustingVerifier struct{}

func (TrustingVerifier) Verify(_ context.Context, _ PaymentRequest, receipt PaymentReceipt) error {
	if receipt.Signature == "" {
		return fmt.Errorf("%w: empty signature", ErrProviderError)
	}
	return nil
}

// PaymentProviderFunc adapts a function to PaymentProvider.
type PaymentProviderFunc func(ctx context.Context, req PaymentRequest) (PaymentReceipt, error)

func (f PaymentProviderFunc) RequestPayment(ctx context.Context, req PaymentRequest) (PaymentReceipt, error) {
	return f(ctx, req)
}
