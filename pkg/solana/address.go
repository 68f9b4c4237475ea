package solana

import (
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32

	derivationMarker = "ProgramDerivedAddress"
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")

	// ErrInvalidPublicKey is returned when seeds hash to a point on the
	// ed25519 curve, which could have a private key.
	ErrInvalidPublicKey = errors.New("invalid public key")
	ErrNoViableBump     = errors.New("unable to find a viable program address bump seed")
)

// derivationHash is swapped out in tests to force on-curve results.
var derivationHash = sha256.New

// CreateProgramAddress derives sha256(seeds || program || "ProgramDerivedAddress")
// and rejects results that lie on the ed25519 curve, so that no private key
// exists for a program address.
func CreateProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	if len(seeds) > maxSeeds {
		return nil, ErrTooManySeeds
	}

	h := derivationHash()
	for _, seed := range seeds {
		if len(seed) > maxSeedLength {
			return nil, ErrMaxSeedLengthExceeded
		}
		h.Write(seed)
	}
	h.Write(program)
	h.Write([]byte(derivationMarker))

	var candidate [ed25519.PublicKeySize]byte
	copy(candidate[:], h.Sum(nil))

	if isOnCurve(&candidate) {
		return nil, ErrInvalidPublicKey
	}
	return candidate[:], nil
}

// isOnCurve reports whether key decodes as a compressed Edwards point. The
// x/crypto implementation keeps point decoding internal, hence the jdgcs
// package.
func isOnCurve(key *[ed25519.PublicKeySize]byte) bool {
	var point edwards25519.ExtendedGroupElement
	return point.FromBytes(key)
}

// IsOnCurve reports whether key is an ed25519 point, and so could have a
// private key. Program derived addresses never are.
func IsOnCurve(key ed25519.PublicKey) bool {
	if len(key) != ed25519.PublicKeySize {
		return false
	}

	var candidate [ed25519.PublicKeySize]byte
	copy(candidate[:], key)
	return isOnCurve(&candidate)
}

// FindProgramAddressAndBump searches bumps from 255 down to 1, returning the
// first off-curve address derived from seeds plus the bump, and the bump
// itself. The caller's seeds are not modified.
func FindProgramAddressAndBump(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, uint8, error) {
	// The bump occupies one seed slot
	if len(seeds) >= maxSeeds {
		return nil, 0, ErrTooManySeeds
	}

	bump := []byte{0}
	withBump := append(append(make([][]byte, 0, len(seeds)+1), seeds...), bump)

	for candidate := 255; candidate > 0; candidate-- {
		bump[0] = uint8(candidate)

		address, err := CreateProgramAddress(program, withBump...)
		switch err {
		case nil:
			return address, bump[0], nil
		case ErrInvalidPublicKey:
		default:
			return nil, 0, err
		}
	}
	return nil, 0, ErrNoViableBump
}

// FindProgramAddress is FindProgramAddressAndBump without the bump.
func FindProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	address, _, err := FindProgramAddressAndBump(program, seeds...)
	return address, err
}

// VerifyProgramAddress reports whether address is derived from seeds and bump.
func VerifyProgramAddress(address, program ed25519.PublicKey, bump uint8, seeds ...[]byte) (bool, error) {
	withBump := append(append(make([][]byte, 0, len(seeds)+1), seeds...), []byte{bump})

	expected, err := CreateProgramAddress(program, withBump...)
	switch err {
	case nil:
		return expected.Equal(address), nil
	case ErrInvalidPublicKey:
		return false, nil
	default:
		return false, err
	}
}
