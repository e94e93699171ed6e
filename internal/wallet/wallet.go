package wallet

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrNotSigner        = errors.New("key is not a required signer")
	ErrMissingSignature = errors.New("missing signature")
	ErrBadSignature     = errors.New("invalid signature")
)

// EncodeTransaction serializes tx to base64 wire format. Empty signature
// slots are zero-filled so partially signed transactions can be encoded.
func EncodeTransaction(tx *solana.Transaction) (string, error) {
	fillSignatureSlots(tx)
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeTransaction parses a base64 wire-format transaction.
func DecodeTransaction(encoded string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return tx, nil
}

func fillSignatureSlots(tx *solana.Transaction) {
	n := int(tx.Message.Header.NumRequiredSignatures)
	for len(tx.Signatures) < n {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
}

// signerIndex returns the signature slot of key.
func signerIndex(tx *solana.Transaction, key solana.PublicKey) (int, error) {
	n := int(tx.Message.Header.NumRequiredSignatures)
	for i := 0; i < n && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(key) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrNotSigner, key)
}

// PartialSign fills key's signature slot and leaves the others untouched.
func PartialSign(tx *solana.Transaction, key solana.PrivateKey) error {
	idx, err := signerIndex(tx, key.PublicKey())
	if err != nil {
		return err
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	sig, err := key.Sign(msg)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}
	fillSignatureSlots(tx)
	tx.Signatures[idx] = sig
	return nil
}

// IsSigned reports whether key's slot holds a non-zero signature.
func IsSigned(tx *solana.Transaction, key solana.PublicKey) bool {
	idx, err := signerIndex(tx, key)
	if err != nil || idx >= len(tx.Signatures) {
		return false
	}
	return !tx.Signatures[idx].IsZero()
}

// VerifySignatures checks that every required signer has a valid signature
// over the message.
func VerifySignatures(tx *solana.Transaction) error {
	n := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) != n {
		return fmt.Errorf("%w: have %d of %d", ErrMissingSignature, len(tx.Signatures), n)
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}
	for i := 0; i < n; i++ {
		sig := tx.Signatures[i]
		key := tx.Message.AccountKeys[i]
		if sig.IsZero() {
			return fmt.Errorf("%w: %s", ErrMissingSignature, key)
		}
		if !ed25519.Verify(ed25519.PublicKey(key[:]), msg, sig[:]) {
			return fmt.Errorf("%w: %s", ErrBadSignature, key)
		}
	}
	return nil
}

// SameMessage reports whether a and b carry byte-identical messages.
func SameMessage(a, b *solana.Transaction) (bool, error) {
	ma, err := a.Message.MarshalBinary()
	if err != nil {
		return false, err
	}
	mb, err := b.Message.MarshalBinary()
	if err != nil {
		return false, err
	}
	return bytes.Equal(ma, mb), nil
}

// Signature returns the transaction id, which is the fee payer's signature.
func Signature(tx *solana.Transaction) (solana.Signature, error) {
	if len(tx.Signatures) == 0 || tx.Signatures[0].IsZero() {
		return solana.Signature{}, ErrMissingSignature
	}
	return tx.Signatures[0], nil
}
