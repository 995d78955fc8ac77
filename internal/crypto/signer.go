package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Agent(string source,bytes32 connectionId)
	agentTypeHash = ethcrypto.Keccak256(
		[]byte("Agent(string source,bytes32 connectionId)"),
	)
)

// l1ChainID is the chain id of the Hyperliquid "Exchange" signing domain.
const l1ChainID = 1337

// Signature is an ECDSA signature split the way the Hyperliquid exchange
// endpoint expects it.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

// Signer signs Hyperliquid L1 actions with a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domainSep  []byte
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		domainSep:  buildDomainSeparator("Exchange", "1", l1ChainID, common.Address{}),
	}, nil
}

// Address returns the address derived from the signer's key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignL1Action signs the phantom agent for an action hash. mainnet selects
// the agent source: "a" on mainnet, "b" on testnet.
func (s *Signer) SignL1Action(actionHash []byte, mainnet bool) (Signature, error) {
	if len(actionHash) != 32 {
		return Signature{}, fmt.Errorf("crypto/signer: action hash must be 32 bytes, got %d", len(actionHash))
	}
	source := "b"
	if mainnet {
		source = "a"
	}
	structHash := ethcrypto.Keccak256(
		concatBytes(
			agentTypeHash,
			ethcrypto.Keccak256([]byte(source)),
			actionHash,
		),
	)
	return s.signDigest(eip712Hash(s.domainSep, structHash))
}

// RecoverL1Signer returns the address that produced sig over actionHash.
func RecoverL1Signer(actionHash []byte, mainnet bool, sig Signature) (common.Address, error) {
	source := "b"
	if mainnet {
		source = "a"
	}
	structHash := ethcrypto.Keccak256(concatBytes(agentTypeHash, ethcrypto.Keccak256([]byte(source)), actionHash))
	digest := eip712Hash(buildDomainSeparator("Exchange", "1", l1ChainID, common.Address{}), structHash)

	r, err := hexutil.Decode(sig.R)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: decode r: %w", err)
	}
	sb, err := hexutil.Decode(sig.S)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: decode s: %w", err)
	}
	raw := concatBytes(common.LeftPadBytes(r, 32), common.LeftPadBytes(sb, 32), []byte{byte(sig.V - 27)})
	pub, err := ethcrypto.SigToPub(digest, raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("crypto/signer: recover: %w", err)
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// buildDomainSeparator returns
// keccak256(abi.encode(typeHash, nameHash, versionHash, chainId, verifyingContract)).
func buildDomainSeparator(name, version string, chainID int64, contract common.Address) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(contract.Bytes(), 32),
		),
	)
}

// eip712Hash computes keccak256("\x19\x01" || domainSeparator || structHash).
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

func (s *Signer) signDigest(digest []byte) (Signature, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return Signature{}, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	// go-ethereum returns v in {0,1}; the exchange expects {27,28}.
	return Signature{
		R: hexutil.Encode(sig[:32]),
		S: hexutil.Encode(sig[32:64]),
		V: int(sig[64]) + 27,
	}, nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
