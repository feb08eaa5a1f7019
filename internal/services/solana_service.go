package services

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/wave745/goontest-sub001/internal/config"
	"github.com/wave745/goontest-sub001/internal/listener"
	"github.com/wave745/goontest-sub001/utils"
)

// systemTransfer is the System Program instruction index for Transfer.
const systemTransfer = 2

// SignatureConfirmer waits until a broadcast signature reaches the configured
// commitment or fails on chain.
type SignatureConfirmer interface {
	Confirm(ctx context.Context, sig solana.Signature) error
}

// ParsePayer parses a base58 fee-payer secret. An empty secret yields a nil key.
func ParsePayer(secret string) (solana.PrivateKey, error) {
	if secret == "" {
		return nil, nil
	}
	// Only support base58 format
	pk, err := solana.PrivateKeyFromBase58(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payer_secret as base58: %w", err)
	}
	return pk, nil
}

// RelayProvider takes a user-signed transfer, co-signs it as fee payer when
// the transaction names the service wallet as fee payer, broadcasts it and
// waits for confirmation.
type RelayProvider struct {
	client    *rpc.Client
	payer     solana.PrivateKey
	confirmer SignatureConfirmer
	log       *utils.Logger

	// txMutex 串行化广播，避免 RPC 节点限流以及 fee payer 余额竞争
	txMutex sync.Mutex
}

func NewRelayProvider(client *rpc.Client, payer solana.PrivateKey, confirmer SignatureConfirmer, log *utils.Logger) *RelayProvider {
	if log == nil {
		log = utils.Discard
	}
	return &RelayProvider{client: client, payer: payer, confirmer: confirmer, log: log}
}

// PayerAddress returns the fee payer wallet, or "" when none is configured.
func (p *RelayProvider) PayerAddress() string {
	if p.payer == nil {
		return ""
	}
	return p.payer.PublicKey().String()
}

func (p *RelayProvider) RequestPayment(ctx context.Context, req PaymentRequest) (PaymentReceipt, error) {
	if req.SerializedTx == "" {
		return PaymentReceipt{}, fmt.Errorf("%w: no signed transaction supplied", ErrPaymentDeclined)
	}
	if req.Recipient == "" {
		return PaymentReceipt{}, fmt.Errorf("%w: creator has no wallet", ErrPaymentDeclined)
	}

	tx, err := utils.DecodeBase64Tx(req.SerializedTx)
	if err != nil {
		return PaymentReceipt{}, fmt.Errorf("%w: %w: %v", ErrPaymentDeclined, ErrBadTx, err)
	}
	if err := CheckTransfer(tx, req.Payer, req.Recipient, req.AmountLamports); err != nil {
		return PaymentReceipt{}, err
	}
	if err := p.cosign(tx); err != nil {
		return PaymentReceipt{}, fmt.Errorf("%w: %w", ErrPaymentDeclined, err)
	}

	sig, err := p.broadcast(ctx, tx)
	if err != nil {
		return PaymentReceipt{}, err
	}
	p.log.Info("relayed unlock payment %s for post %s", sig, req.PostID)

	if p.confirmer != nil {
		if err := p.confirmer.Confirm(ctx, sig); err != nil {
			return PaymentReceipt{}, fmt.Errorf("confirm %s: %w", sig, err)
		}
	}
	return PaymentReceipt{Signature: sig.String(), Payer: req.Payer}, nil
}

// cosign fills the fee payer signature (Signatures[0]) when the service wallet
// is the fee payer, and requires every other signer slot to be filled.
func (p *RelayProvider) cosign(tx *solana.Transaction) error {
	if len(tx.Message.AccountKeys) == 0 {
		return ErrBadTx
	}

	requiredSigners := int(tx.Message.Header.NumRequiredSignatures)
	for len(tx.Signatures) < requiredSigners {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}

	feePayer := tx.Message.AccountKeys[0]
	if p.payer != nil && feePayer.Equals(p.payer.PublicKey()) && tx.Signatures[0].IsZero() {
		messageBytes, err := tx.Message.MarshalBinary()
		if err != nil {
			return fmt.Errorf("%w: marshal message: %v", ErrPartialSignFailed, err)
		}
		feePayerSig, err := p.payer.Sign(messageBytes)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPartialSignFailed, err)
		}
		tx.Signatures[0] = feePayerSig
	}

	for i := 0; i < requiredSigners; i++ {
		if tx.Signatures[i].IsZero() {
			return fmt.Errorf("%w: signer %s has not signed", ErrBadTx, tx.Message.AccountKeys[i])
		}
	}
	return nil
}

// broadcast sends tx with skipPreflight, retrying transient failures. An
// expired blockhash is not retried: the user must sign a fresh transaction.
func (p *RelayProvider) broadcast(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	enc, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, fmt.Errorf("%w: serialize: %v", ErrProviderError, err)
	}
	encBase64 := base64.StdEncoding.EncodeToString(enc)

	p.txMutex.Lock()
	defer p.txMutex.Unlock()

	const maxRetries = 3
	var (
		sig          solana.Signature
		broadcastErr error
	)
	for i := 0; i < maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return solana.Signature{}, err
		}
		broadcastErr = p.client.RPCCallForInto(ctx, &sig, "sendTransaction", []interface{}{
			encBase64,
			map[string]interface{}{
				"skipPreflight":       true,
				"preflightCommitment": "confirmed",
				"encoding":            "base64",
			},
		})
		if broadcastErr == nil && !sig.IsZero() {
			return sig, nil
		}
		if broadcastErr == nil {
			broadcastErr = errors.New("broadcast returned an empty signature")
		}
		p.log.Warn("broadcast attempt %d/%d failed: %v", i+1, maxRetries, broadcastErr)

		errStr := broadcastErr.Error()
		if strings.Contains(errStr, "Blockhash not found") || strings.Contains(errStr, "BlockhashNotFound") {
			return solana.Signature{}, fmt.Errorf("%w: blockhash expired, sign a fresh transaction", ErrPaymentDeclined)
		}
		if strings.Contains(errStr, "signature verification failure") {
			return solana.Signature{}, fmt.Errorf("%w: %w: signature verification failure", ErrPaymentDeclined, ErrBadTx)
		}
	}
	return solana.Signature{}, fmt.Errorf("%w: %w: %v", ErrProviderError, ErrBroadcastFailed, broadcastErr)
}

// CheckTransfer requires tx to carry exactly one System Program transfer from
// payer to recipient of exactly amount lamports, signed by payer.
func CheckTransfer(tx *solana.Transaction, payer, recipient string, amount uint64) error {
	from, err := solana.PublicKeyFromBase58(payer)
	if err != nil {
		return fmt.Errorf("%w: %w: payer %q is not a public key", ErrPaymentDeclined, ErrBadTx, payer)
	}
	to, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return fmt.Errorf("%w: recipient %q is not a public key", ErrPaymentDeclined, recipient)
	}
	if !tx.IsSigner(from) {
		return fmt.Errorf("%w: payer %s did not sign", ErrPaymentMismatch, from)
	}

	keys := tx.Message.AccountKeys
	matches := 0
	for _, inst := range tx.Message.Instructions {
		if int(inst.ProgramIDIndex) >= len(keys) || !keys[inst.ProgramIDIndex].Equals(solana.SystemProgramID) {
			continue
		}
		data := []byte(inst.Data)
		if len(data) < 12 || binary.LittleEndian.Uint32(data[0:4]) != systemTransfer || len(inst.Accounts) < 2 {
			continue
		}
		if int(inst.Accounts[0]) >= len(keys) || int(inst.Accounts[1]) >= len(keys) {
			return fmt.Errorf("%w: account index out of range", ErrBadTx)
		}
		if !keys[inst.Accounts[1]].Equals(to) {
			continue
		}
		if !keys[inst.Accounts[0]].Equals(from) {
			return fmt.Errorf("%w: transfer is not from %s", ErrPaymentMismatch, from)
		}
		if lamports := binary.LittleEndian.Uint64(data[4:12]); lamports != amount {
			return fmt.Errorf("%w: transfer of %d lamports, want %d", ErrPaymentMismatch, lamports, amount)
		}
		matches++
	}
	switch matches {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("%w: no transfer to %s", ErrPaymentMismatch, to)
	default:
		return fmt.Errorf("%w: %d transfers to %s", ErrPaymentMismatch, matches, to)
	}
}

// RPCVerifier checks a signature against the chain: the transaction must have
// succeeded, be signed by the payer, and credit the recipient at least the price.
type RPCVerifier struct {
	client     *rpc.Client
	commitment rpc.CommitmentType
}

func NewRPCVerifier(client *rpc.Client, commitment string) *RPCVerifier {
	c := rpc.CommitmentType(commitment)
	if c == "" {
		c = rpc.CommitmentConfirmed
	}
	return &RPCVerifier{client: client, commitment: c}
}

func (v *RPCVerifier) Verify(ctx context.Context, req PaymentRequest, receipt PaymentReceipt) error {
	sig, err := solana.SignatureFromBase58(receipt.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature %q", ErrPaymentMismatch, receipt.Signature)
	}

	maxVersion := uint64(0)
	out, err := v.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     v.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return fmt.Errorf("%w: transaction %s not found", ErrPaymentMismatch, sig)
	}
	if err != nil {
		return fmt.Errorf("%w: get transaction: %w", ErrProviderError, err)
	}
	if out == nil || out.Meta == nil || out.Transaction == nil {
		return fmt.Errorf("%w: transaction %s has no metadata", ErrProviderError, sig)
	}
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return fmt.Errorf("%w: decode transaction: %w", ErrProviderError, err)
	}
	return CheckSettlement(tx, out.Meta, receiptPayer(req, receipt), req.Recipient, req.AmountLamports)
}

func receiptPayer(req PaymentRequest, receipt PaymentReceipt) string {
	if receipt.Payer != "" {
		return receipt.Payer
	}
	return req.Payer
}

// CheckSettlement checks a confirmed transaction's metadata: success, payer
// signature, and a recipient balance increase of at least amount.
func CheckSettlement(tx *solana.Transaction, meta *rpc.TransactionMeta, payer, recipient string, amount uint64) error {
	if meta.Err != nil {
		return fmt.Errorf("%w: transaction failed on chain: %v", ErrPaymentMismatch, meta.Err)
	}
	from, err := solana.PublicKeyFromBase58(payer)
	if err != nil {
		return fmt.Errorf("%w: payer %q is not a public key", ErrPaymentMismatch, payer)
	}
	to, err := solana.PublicKeyFromBase58(recipient)
	if err != nil {
		return fmt.Errorf("%w: recipient %q is not a public key", ErrPaymentMismatch, recipient)
	}
	if !tx.IsSigner(from) {
		return fmt.Errorf("%w: payer %s did not sign", ErrPaymentMismatch, from)
	}

	idx := -1
	for i, key := range tx.Message.AccountKeys {
		if key.Equals(to) {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(meta.PreBalances) || idx >= len(meta.PostBalances) {
		return fmt.Errorf("%w: recipient %s not in transaction", ErrPaymentMismatch, to)
	}
	pre, post := meta.PreBalances[idx], meta.PostBalances[idx]
	if post < pre || post-pre < amount {
		return fmt.Errorf("%w: recipient credited %d lamports, want %d", ErrPaymentMismatch, int64(post)-int64(pre), amount)
	}
	return nil
}

// NewPaymentStack builds the provider and verifier selected by cfg.
func NewPaymentStack(cfg *config.Config, log *utils.Logger) (PaymentProvider, PaymentVerifier, error) {
	var client *rpc.Client
	if cfg.Solana.RPCURL != "" {
		client = rpc.New(cfg.Solana.RPCURL)
	}

	var provider PaymentProvider
	switch cfg.Payment.Provider {
	case config.ProviderProof, "":
		provider = ProofProvider{}
	case config.ProviderRelay:
		payer, err := ParsePayer(cfg.Solana.PayerSecret)
		if err != nil {
			return nil, nil, err
		}
		confirmer := listener.NewConfirmer(client, cfg.Solana.WSURL, cfg.Solana.Commitment, cfg.Payment.PollInterval, log)
		relay := NewRelayProvider(client, payer, confirmer, log)
		if addr := relay.PayerAddress(); addr != "" {
			log.Info("relay fee payer: %s", addr)
		}
		provider = relay
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownProvider, cfg.Payment.Provider)
	}

	var verifier PaymentVerifier
	switch cfg.Payment.Verify {
	case config.VerifyTrust, "":
		verifier = TrustingVerifier{}
	case config.VerifyRPC:
		verifier = NewRPCVerifier(client, cfg.Solana.Commitment)
	default:
		return nil, nil, fmt.Errorf("%w: %q", config.ErrUnknownVerifier, cfg.Payment.Verify)
	}
	return provider, verifier, nil
}
