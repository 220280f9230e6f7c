// Package commitment computes the binding hash a player submits during the
// commit phase and checks it against the later reveal.
//
// The preimage is the tightly packed encoding of
//
//	(address player, uint256 game, uint256 round, bytes32 salt, uint8[5] ingredients)
//
// where every array element occupies a full 32-byte word, and the digest is
// Keccak-256. All fields are fixed width, so two different tuples can never
// share a preimage.
package commitment

import (
	"crypto/rand"
	"fmt"

	"example.com/degenpizza/internal/recipe"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const wordSize = 32

// EncodedLen is the byte length of the hashed preimage.
const EncodedLen = common.AddressLength + 3*wordSize + recipe.Slots*wordSize

// Encode returns the preimage that Hash digests.
func Encode(player common.Address, game, round uint64, salt common.Hash, sel recipe.Selection) []byte {
	buf := make([]byte, 0, EncodedLen)
	buf = append(buf, player.Bytes()...)
	buf = appendWord(buf, game)
	buf = appendWord(buf, round)
	buf = append(buf, salt.Bytes()...)
	for _, ing := range sel {
		buf = appendWord(buf, uint64(ing))
	}
	return buf
}

// Hash returns the commitment for a (player, game, round, salt, selection)
// tuple.
func Hash(player common.Address, game, round uint64, salt common.Hash, sel recipe.Selection) common.Hash {
	d := sha3.NewLegacyKeccak256()
	d.Write(Encode(player, game, round, salt, sel))
	return common.BytesToHash(d.Sum(nil))
}

// Verify reports whether the tuple hashes to want.
func Verify(want common.Hash, player common.Address, game, round uint64, salt common.Hash, sel recipe.Selection) bool {
	return Hash(player, game, round, salt, sel) == want
}

// NewSalt returns 32 random bytes for a fresh commitment.
func NewSalt() (common.Hash, error) {
	var salt common.Hash
	if _, err := rand.Read(salt[:]); err != nil {
		return common.Hash{}, fmt.Errorf("commitment: salt: %w", err)
	}
	return salt, nil
}

func appendWord(buf []byte, v uint64) []byte {
	var w [wordSize]byte
	for i := 0; i < 8; i++ {
		w[wordSize-1-i] = byte(v >> (8 * i))
	}
	return append(buf, w[:]...)
}
