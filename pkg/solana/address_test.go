package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"hash"
	"testing"

	"github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProgramAddress(t *testing.T) {
	exceededSeed := make([]byte, maxSeedLength+1)
	maxSeed := make([]byte, maxSeedLength)

	// Vectors from the Solana SDK test suite, including its misspelled key
	publicKey, err := base58.Decode("SeedPubey1111111111111111111111111111111111")
	require.NoError(t, err)
	programID, err := base58.Decode("BPFLoader1111111111111111111111111111111111")
	require.NoError(t, err)

	_, err = CreateProgramAddress(programID, exceededSeed)
	assert.Equal(t, ErrMaxSeedLengthExceeded, err)
	_, err = CreateProgramAddress(programID, []byte("short seed"), exceededSeed)
	assert.Equal(t, ErrMaxSeedLengthExceeded, err)

	_, err = CreateProgramAddress(programID, maxSeed)
	assert.NoError(t, err)

	cases := []struct {
		expected string
		input    [][]byte
	}{
		{
			expected: "3gF2KMe9KiC6FNVBmfg9i267aMPvK37FewCip4eGBFcT",
			input:    [][]byte{{}, {1}},
		},
		{
			expected: "7ytmC1nT1xY4RfxCV2ZgyA7UakC93do5ZdyhdF3EtPj7",
			input:    [][]byte{[]byte("☉")},
		},
		{
			expected: "HwRVBufQ4haG5XSgpspwKtNd3PC9GM9m1196uJW36vds",
			input:    [][]byte{[]byte("Talking"), []byte("Squirrels")},
		},
		{
			expected: "GUs5qLUfsEHkcMB9T38vjr18ypEhRuNWiePW2LoK4E3K",
			input:    [][]byte{publicKey},
		},
	}

	for _, tc := range cases {
		key, err := CreateProgramAddress(programID, tc.input...)
		assert.NoError(t, err)
		assert.Equal(t, tc.expected, base58.Encode(key))
	}

	a, err := CreateProgramAddress(programID, []byte("Talking"))
	assert.NoError(t, err)
	b, err := CreateProgramAddress(programID, []byte("Talking"), []byte("Squirrels"))
	assert.NoError(t, err)

	assert.NotEqual(t, a, b)
}

// onCurveHash always sums to a freshly generated public key.
type onCurveHash struct {
	hash.Hash
	key ed25519.PublicKey
}

func (h *onCurveHash) Sum(b []byte) []byte {
	return append(b, h.key...)
}

func withOnCurveHash(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	derivationHash = func() hash.Hash {
		return &onCurveHash{Hash: sha256.New(), key: pub}
	}
	t.Cleanup(func() {
		derivationHash = sha256.New
	})
}

func TestCreateProgramAddress_Invalid(t *testing.T) {
	withOnCurveHash(t)

	programID, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	_, err = CreateProgramAddress(programID, []byte("Lil'"), []byte("Bits"))
	assert.Equal(t, ErrInvalidPublicKey, err)
}

func TestFindProgramAddress_Exhausted(t *testing.T) {
	withOnCurveHash(t)

	programID, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	pub, bump, err := FindProgramAddressAndBump(programID, []byte("pool"))
	assert.Equal(t, ErrNoViableBump, err)
	assert.Nil(t, pub)
	assert.EqualValues(t, 0, bump)
}

func TestFindProgramAddress_TooManySeeds(t *testing.T) {
	programID, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	seeds := make([][]byte, maxSeeds)
	for i := range seeds {
		seeds[i] = []byte{byte(i)}
	}
	_, _, err = FindProgramAddressAndBump(programID, seeds...)
	assert.Equal(t, ErrTooManySeeds, err)
}

func TestFindProgramAddress_Deterministic(t *testing.T) {
	programID, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	user, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	seeds := [][]byte{[]byte("user"), user}

	first, firstBump, err := FindProgramAddressAndBump(programID, seeds...)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		actual, bump, err := FindProgramAddressAndBump(programID, seeds...)
		require.NoError(t, err)
		assert.EqualValues(t, first, actual)
		assert.Equal(t, firstBump, bump)
	}

	// The caller's seed slice must not be mutated by the bump search
	assert.Len(t, seeds, 2)

	valid, err := VerifyProgramAddress(first, programID, firstBump, seeds...)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = VerifyProgramAddress(user, programID, firstBump, seeds...)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestIsOnCurve(t *testing.T) {
	for i := 0; i < 100; i++ {
		pub, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		assert.True(t, IsOnCurve(pub))

		derived, err := FindProgramAddress(pub, []byte("pool"))
		require.NoError(t, err)
		assert.False(t, IsOnCurve(derived))
	}

	assert.False(t, IsOnCurve(nil))
	assert.False(t, IsOnCurve(make(ed25519.PublicKey, 31)))
}

func TestFindProgramAddress(t *testing.T) {
	for i := 0; i < 1000; i++ {
		programID, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)

		_, err = FindProgramAddress(programID, []byte("Lil'"), []byte("Bits"))
		assert.NoError(t, err)
	}
}

func TestFindProgramAddress_Ref(t *testing.T) {
	references := []struct {
		programID string
		expected  string
	}{
		{
			programID: "4uQeVj5tqViQh7yWWGStvkEG1Zmhx6uasJtWCJziofM",
			expected:  "Bn9pAWUXWc5Kd849xTkQcHqiCbHUEizLFn4r5Cf8XYnd",
		},
		{
			programID: "8opHzTAnfzRpPEx21XtnrVTX28YQuCpAjcn1PczScKh",
			expected:  "oDvUHiiGdMo31xYzjefAzUekWH8EbCKrxgs2FkyTs1S",
		},
		{
			programID: "CiDwVBFgWV9E5MvXWoLgnEgn2hK7rJikbvfWavzAQz3",
			expected:  "B2vBn2bmF9GuaGkebrm8oUqDC34pE6m4bagjNcVE6msv",
		},
		{
			programID: "GcdayuLaLyrdmUu324nahyv33G5poQdLUEZ1nEytDeP",
			expected:  "2mN5Nfq9v1EwTV9FPTHPESZ3XiZce9wi5PQoULFuxvev",
		},
		{
			programID: "LX3EUdRUBUa3TbsYXLEUdj9J3prXkWXvLYSWyYyc2Jj",
			expected:  "9CqF6oTZtW5zSeoLnZRoQmj3s2tXGPqifM1W8Z8LVE1z",
		},
		{
			programID: "QRSsyMWN1yHT9ir42bgNZUNZ4PdEhcSWCrL2AryKpy5",
			expected:  "FwBDYafabYZLDC8FwaDCsLxWkKnaQxKuQv3afDAGiXJ8",
		},
	}

	for _, r := range references {
		programID, err := base58.Decode(r.programID)
		require.NoError(t, err)
		expected, err := base58.Decode(r.expected)
		require.NoError(t, err)

		actual, err := FindProgramAddress(programID, []byte("Lil'"), []byte("Bits"))
		assert.NoError(t, err)
		assert.EqualValues(t, expected, actual)
	}
}
