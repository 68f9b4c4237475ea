package staking

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/mr-tron/base58"

	"github.com/code-payments/code-staking/pkg/solana/layout"
)

const (
	UserStakeAccountSize = (discriminatorSize +
		32 + // user
		8 + // amount
		8 + // pending_rewards
		8 + // checkpoint_unix_time
		1) // bump
)

var UserStakeAccountDiscriminator = anchorDiscriminator("account", "UserStake")

type UserStakeAccount struct {
	User               ed25519.PublicKey
	Amount             uint64
	PendingRewards     uint64
	CheckpointUnixTime int64
	Bump               uint8
}

func (obj *UserStakeAccount) Marshal() []byte {
	return layout.NewEncoder(UserStakeAccountSize).
		Raw(UserStakeAccountDiscriminator).
		Key(obj.User).
		Uint64(obj.Amount).
		Uint64(obj.PendingRewards).
		Int64(obj.CheckpointUnixTime).
		Uint8(obj.Bump).
		Bytes()
}

func (obj *UserStakeAccount) Unmarshal(data []byte) error {
	if len(data) < UserStakeAccountSize || !bytes.HasPrefix(data, UserStakeAccountDiscriminator) {
		return ErrInvalidAccountData
	}

	d := layout.NewDecoder(data[discriminatorSize:])
	obj.User = d.Key()
	obj.Amount = d.Uint64()
	obj.PendingRewards = d.Uint64()
	obj.CheckpointUnixTime = d.Int64()
	obj.Bump = d.Uint8()
	return nil
}

func (obj *UserStakeAccount) String() string {
	return fmt.Sprintf(
		"UserStake{user=%s,amount=%d,pending_rewards=%d,checkpoint_unix_time=%s,bump=%d}",
		base58.Encode(obj.User),
		obj.Amount,
		obj.PendingRewards,
		time.Unix(obj.CheckpointUnixTime, 0).UTC().Format(time.RFC3339),
		obj.Bump,
	)
}
