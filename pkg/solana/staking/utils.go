package staking

import (
	"crypto/sha256"

	"github.com/mr-tron/base58"
)

const discriminatorSize = 8

// anchorDiscriminator is the first 8 bytes of sha256("<namespace>:<name>"),
// which prefixes Anchor account data and instruction data.
func anchorDiscriminator(namespace, name string) []byte {
	h := sha256.Sum256([]byte(namespace + ":" + name))
	return h[:discriminatorSize]
}

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
