package staking

import (
	"bytes"

	"github.com/code-payments/code-staking/pkg/solana/layout"
)

type InstructionType uint8

const (
	Unknown InstructionType = iota

	InstructionTypeInitializePool
	InstructionTypeStake
	InstructionTypeUnstake
	InstructionTypeClaimRewards
)

var instructionNames = map[InstructionType]string{
	InstructionTypeInitializePool: "initialize_pool",
	InstructionTypeStake:          "stake",
	InstructionTypeUnstake:        "unstake",
	InstructionTypeClaimRewards:   "claim_rewards",
}

var instructionDiscriminators = func() map[InstructionType][]byte {
	res := make(map[InstructionType][]byte)
	for instructionType, name := range instructionNames {
		res[instructionType] = anchorDiscriminator("global", name)
	}
	return res
}()

func (t InstructionType) String() string {
	name, ok := instructionNames[t]
	if !ok {
		return "unknown"
	}
	return name
}

// Discriminator returns the 8 byte instruction prefix, or nil for Unknown.
func (t InstructionType) Discriminator() []byte {
	return instructionDiscriminators[t]
}

// GetInstructionType returns the instruction encoded in data, or Unknown if
// the discriminator doesn't match any supported instruction.
func GetInstructionType(data []byte) InstructionType {
	if len(data) < discriminatorSize {
		return Unknown
	}

	for instructionType, discriminator := range instructionDiscriminators {
		if bytes.HasPrefix(data, discriminator) {
			return instructionType
		}
	}
	return Unknown
}

// newInstructionData returns an encoder for instruction data of type t, with
// the discriminator already written.
func newInstructionData(t InstructionType, argsSize int) *layout.Encoder {
	return layout.NewEncoder(discriminatorSize + argsSize).Raw(t.Discriminator())
}
