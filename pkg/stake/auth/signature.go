package auth

import (
	"context"
	"crypto/ed25519"
	"errors"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-staking/pkg/metrics"
	"github.com/code-payments/code-staking/pkg/solana"
)

const (
	metricsStructName = "auth.instruction_signature_verifier"
)

var (
	ErrUnauthenticated = errors.New("instruction is not signed by every signer")
	ErrMissingSigner   = errors.New("required signer is not present")
)

// InstructionSignatureVerifier verifies that every signer account of an
// instruction signed its message.
type InstructionSignatureVerifier struct {
	log *logrus.Entry
}

func NewInstructionSignatureVerifier() *InstructionSignatureVerifier {
	return &InstructionSignatureVerifier{
		log: logrus.StandardLogger().WithField("type", "auth/instruction_signature_verifier"),
	}
}

// Authenticate checks the signatures against the instruction's signer
// accounts. When requiredSigners are provided, each must also be flagged as a
// signer on the instruction.
func (v *InstructionSignatureVerifier) Authenticate(ctx context.Context, ix solana.Instruction, sigs []solana.Signature, requiredSigners ...ed25519.PublicKey) error {
	defer metrics.TraceMethodCall(ctx, metricsStructName, "Authenticate").End()

	log := v.log.WithFields(logrus.Fields{
		"method":  "Authenticate",
		"program": base58.Encode(ix.Program),
	})

	signers := ix.Signers()
	for _, required := range requiredSigners {
		if !containsKey(signers, required) {
			log.WithField("signer", base58.Encode(required)).Debug("required signer is missing")
			return ErrMissingSigner
		}
	}

	if err := ix.VerifySignatures(sigs); err != nil {
		log.WithError(err).Info("instruction is not signature verified")
		return ErrUnauthenticated
	}
	return nil
}

func containsKey(keys []ed25519.PublicKey, target ed25519.PublicKey) bool {
	for _, key := range keys {
		if key.Equal(target) {
			return true
		}
	}
	return false
}
