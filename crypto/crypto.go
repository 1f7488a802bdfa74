package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/cometbft/cometbft/crypto/ed25519"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// GenerateKeyPair creates a new Ed25519 keypair for the delegate identity
func GenerateKeyPair() (pubHex string, privHex string) {
	priv := ed25519.GenPrivKey()
	return hex.EncodeToString(priv.PubKey().Bytes()), hex.EncodeToString(priv.Bytes())
}

// PublicKeyFromPrivate derives the hex public key for a hex private key
func PublicKeyFromPrivate(privateKeyHex string) (string, error) {
	priv, err := decodePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(priv.PubKey().Bytes()), nil
}

// AddressFromPublicKey returns the short address derived from a hex public key
func AddressFromPublicKey(publicKeyHex string) (string, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(raw) != ed25519.PubKeySize {
		return "", errors.New("invalid public key format")
	}
	return ed25519.PubKey(raw).Address().String(), nil
}

// SignMessage signs a message using the private key
func SignMessage(privateKeyHex string, message []byte) (string, error) {
	priv, err := decodePrivateKey(privateKeyHex)
	if err != nil {
		return "", err
	}
	signature, err := priv.Sign(message)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}
	return hex.EncodeToString(signature), nil
}

// VerifySignature verifies a signed message using the public key
func VerifySignature(publicKeyHex string, message []byte, signatureHex string) bool {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(raw) != ed25519.PubKeySize {
		return false
	}
	signature, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return ed25519.PubKey(raw).VerifySignature(message, signature)
}

// Keccak256Hex returns the 0x-prefixed keccak256 digest used for on-chain references
func Keccak256Hex(data []byte) string {
	return ethcrypto.Keccak256Hash(data).Hex()
}

func decodePrivateKey(privateKeyHex string) (ed25519.PrivKey, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil || len(raw) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key format")
	}
	return ed25519.PrivKey(raw), nil
}
