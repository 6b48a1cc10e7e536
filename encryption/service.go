package encryption

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/sha3"
)

// ErrInvalidAddress is returned for wallet addresses that are not
// 0x-prefixed 20-byte hex strings.
var ErrInvalidAddress = errors.New("invalid wallet address")

type CryptoService struct{}

func NewCryptoService() *CryptoService {
	return &CryptoService{}
}

// VoteHash derives the deterministic audit digest for a vote. The same
// (voter, candidate, election, wallet) tuple always yields the same
// hash; the inputs are not secret, so the hash is an audit handle, not
// a proof of ballot secrecy.
func (cs *CryptoService) VoteHash(voterID, candidateID, electionID, walletAddress string) string {
	// Fields are separated so distinct tuples cannot concatenate to
	// the same preimage.
	preimage := voterID + "|" + candidateID + "|" + electionID + "|" + walletAddress
	return hexutil.Encode(cs.Keccak256([]byte(preimage)))
}

// NormalizeWalletAddress validates an address and returns its EIP-55
// checksummed form so two spellings of the same address compare equal.
func (cs *CryptoService) NormalizeWalletAddress(address string) (string, error) {
	if !common.IsHexAddress(address) {
		return "", ErrInvalidAddress
	}
	return common.HexToAddress(address).Hex(), nil
}

// HashPassword creates the durable password credential.
func (cs *CryptoService) HashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

// Keccak256 computes Keccak-256 over the concatenation of the inputs.
func (cs *CryptoService) Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}
