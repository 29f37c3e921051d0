package auth

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gtank/cryptopasta"
)

// Decrypt is the inverse of Encrypt, checking the HMAC and decrypting the
// encoded data, if possible.
func Decrypt(encoded, key, sig string) ([]byte, error) {
	rawkey, err := toKey(key)
	if err != nil {
		return nil, err
	}

	rawsig, err := toKey(sig)
	if err != nil {
		return nil, err
	}

	// split into cyphertext & signature
	bits := strings.SplitN(encoded, ".", 2)
	if len(bits) != 2 {
		return nil, fmt.Errorf("decryption failed, encoded string invalid")
	}

	cypher, err := base64.RawURLEncoding.DecodeString(bits[0])
	if err != nil {
		return nil, err
	}

	signature, err := base64.RawURLEncoding.DecodeString(bits[1])
	if err != nil {
		return nil, err
	}

	if !cryptopasta.CheckHMAC(cypher, signature, rawsig) {
		return nil, fmt.Errorf("signature validation failed")
	}

	return cryptopasta.Decrypt(cypher, rawkey)
}

// Encrypt encrypts & base64 encodes the result into a string with an HMAC
// signature attached.
func Encrypt(plaintext []byte, key, sig string) (string, error) {
	rawkey, err := toKey(key)
	if err != nil {
		return "", err
	}

	rawsig, err := toKey(sig)
	if err != nil {
		return "", err
	}

	cyphertext, err := cryptopasta.Encrypt(plaintext, rawkey)
	if err != nil {
		return "", err
	}

	signature := cryptopasta.GenerateHMAC(cyphertext, rawsig)

	return fmt.Sprintf(
		"%s.%s",
		base64.RawURLEncoding.EncodeToString(cyphertext),
		base64.RawURLEncoding.EncodeToString(signature),
	), nil
}

// toKey uses the first 32 bytes of s as a key.
func toKey(s string) (*[32]byte, error) {
	if len(s) < 32 {
		return nil, fmt.Errorf("key too short for encryption/signing operation, want at least 32 chars")
	}
	data := &[32]byte{}
	copy(data[:], s)
	return data, nil
}
