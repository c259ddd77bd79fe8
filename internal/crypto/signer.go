package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
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

// Hyperliquid L1 actions are signed against a fixed domain.
const (
	l1DomainName    = "Exchange"
	l1DomainVersion = "1"
	l1ChainID       = 1337
)

// Signature is an ECDSA signature split the way Hyperliquid expects it.
type Signature struct {
	R string `json:"r" msgpack:"r"`
	S string `json:"s" msgpack:"s"`
	V int    `json:"v" msgpack:"v"`
}

// Signer provides EIP-712 signing with a secp256k1 key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	domainSep  []byte // cached L1 domain separator
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key.
func NewSigner(privateKeyHex string) (*Signer, error) {
	keyHex := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		domainSep:  buildDomainSeparator(l1DomainName, l1DomainVersion, l1ChainID, common.Address{}),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// SignL1Action signs the phantom agent {source, connectionId} for an action
// hash. Mainnet uses source "a", testnet "b".
func (s *Signer) SignL1Action(connectionID [32]byte, mainnet bool) (Signature, error) {
	return s.signDigest(eip712Hash(s.domainSep, agentStructHash(connectionID, mainnet)))
}

// RecoverAddress returns the signer address for a digest and signature.
// Used to verify signatures in tests and diagnostics.
func RecoverAddress(digest []byte, sig Signature) (common.Address, error) {
	r, err := hex.DecodeString(strings.TrimPrefix(sig.R, "0x"))
	if err != nil {
		return common.Address{}, err
	}
	sv, err := hex.DecodeString(strings.TrimPrefix(sig.S, "0x"))
	if err != nil {
		return common.Address{}, err
	}
	raw := concatBytes(common.LeftPadBytes(r, 32), common.LeftPadBytes(sv, 32), []byte{byte(sig.V - 27)})
	pub, err := ethcrypto.SigToPub(digest, raw)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// L1Digest exposes the digest SignL1Action signs.
func L1Digest(connectionID [32]byte, mainnet bool) []byte {
	domainSep := buildDomainSeparator(l1DomainName, l1DomainVersion, l1ChainID, common.Address{})
	return eip712Hash(domainSep, agentStructHash(connectionID, mainnet))
}

func agentStructHash(connectionID [32]byte, mainnet bool) []byte {
	source := "b"
	if mainnet {
		source = "a"
	}
	return ethcrypto.Keccak256(
		concatBytes(
			agentTypeHash,
			ethcrypto.Keccak256([]byte(source)),
			connectionID[:],
		),
	)
}

// buildDomainSeparator returns
// keccak256(abi.encode(typeHash, nameHash, versionHash, chainId, verifyingContract)).
func buildDomainSeparator(name, version string, chainID int64, verifying common.Address) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(name)),
			ethcrypto.Keccak256([]byte(version)),
			bigIntTo32Bytes(big.NewInt(chainID)),
			common.LeftPadBytes(verifying.Bytes(), 32),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// signDigest signs a 32-byte digest using secp256k1.
func (s *Signer) signDigest(digest []byte) (Signature, error) {
	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return Signature{}, fmt.Errorf("crypto/signer: signing: %w", err)
	}

	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	v := int(sig[64])
	if v < 27 {
		v += 27
	}
	return Signature{
		R: "0x" + hex.EncodeToString(sig[:32]),
		S: "0x" + hex.EncodeToString(sig[32:64]),
		V: v,
	}, nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
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
