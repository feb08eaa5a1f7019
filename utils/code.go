package utils

import (
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// LamportsPerUnit is the number of lamports in one display unit.
const LamportsPerUnit = 1_000_000_000

// maxTxSize is the Solana packet limit for a serialized transaction.
const maxTxSize = 1232

var ErrTxTooLarge = errors.New("serialized transaction exceeds packet size")

// DecodeBase64Tx decodes a base64 wire transaction.
func DecodeBase64Tx(b64 string) (*solana.Transaction, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	if len(data) > maxTxSize {
		return nil, ErrTxTooLarge
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// EncodeBase64Tx serializes tx to base64 wire format.
func EncodeBase64Tx(tx *solana.Transaction) (string, error) {
	enc, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(enc), nil
}

// FormatLamports renders an amount in display units with three decimals,
// rounding half up: 500000000 -> "0.500", 1 -> "0.000", 1499999 -> "0.001".
func FormatLamports(lamports uint64) string {
	const perMilli = LamportsPerUnit / 1000
	milli := lamports / perMilli
	if lamports%perMilli >= perMilli/2 {
		milli++
	}
	return fmt.Sprintf("%d.%03d", milli/1000, milli%1000)
}

// IsPublicKey reports whether s is a valid base58 public key.
func IsPublicKey(s string) bool {
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}

// ExplorerURL links a signature on the Solana explorer for the cluster.
func ExplorerURL(signature, cluster string) string {
	if cluster == "" {
		cluster = "mainnet"
	}
	return "https://explorer.solana.com/tx/" + signature + "?cluster=" + cluster
}

// IsSignature reports whether s is a base58 transaction signature.
func IsSignature(s string) bool {
	_, err := solana.SignatureFromBase58(s)
	return err == nil
}
