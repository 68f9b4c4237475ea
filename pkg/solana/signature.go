package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

type Signature [ed25519.SignatureSize]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

var ErrSignerMismatch = errors.New("signature count does not match signer count")

// Message returns the digest that signers of the instruction sign over.
//
// The layout is program || u16 account count || (key || signer || writable)* || u32 data length || data,
// hashed with SHA-256 so signatures stay a fixed size regardless of payload.
func (i Instruction) Message() []byte {
	h := sha256.New()
	h.Write(i.Program)

	var buf [4]byte
	binary.LittleEndian.PutUint16(buf[:2], uint16(len(i.Accounts)))
	h.Write(buf[:2])
	for _, account := range i.Accounts {
		h.Write(account.PublicKey)
		h.Write([]byte{boolToByte(account.IsSigner), boolToByte(account.IsWritable)})
	}

	binary.LittleEndian.PutUint32(buf[:], uint32(len(i.Data)))
	h.Write(buf[:])
	h.Write(i.Data)

	return h.Sum(nil)
}

// Sign produces one signature per signer account, in the order returned by
// Signers. Every signer must have a matching private key.
func (i Instruction) Sign(keys ...ed25519.PrivateKey) ([]Signature, error) {
	signers := i.Signers()
	message := i.Message()

	sigs := make([]Signature, len(signers))
	for idx, signer := range signers {
		var found bool
		for _, key := range keys {
			if signer.Equal(key.Public()) {
				copy(sigs[idx][:], ed25519.Sign(key, message))
				found = true
				break
			}
		}

		if !found {
			return nil, errors.Errorf("missing private key for signer %s", base58.Encode(signer))
		}
	}
	return sigs, nil
}

// VerifySignatures checks that sigs contains a valid signature for every
// signer account of the instruction, in Signers order.
func (i Instruction) VerifySignatures(sigs []Signature) error {
	signers := i.Signers()
	if len(signers) != len(sigs) {
		return ErrSignerMismatch
	}

	message := i.Message()
	for idx, signer := range signers {
		if len(signer) != ed25519.PublicKeySize || !ed25519.Verify(signer, message, sigs[idx][:]) {
			return errors.Errorf("invalid signature for signer %s", base58.Encode(signer))
		}
	}
	return nil
}

func boolToByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
