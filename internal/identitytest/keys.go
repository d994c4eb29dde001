package identitytest

import (
	"crypto/rand"
	"crypto/rsa"
	"math/big"

	jwtlib "github.com/golang-jwt/jwt/v5"
	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
)

// RS256 is the only algorithm the identity platform signs ID tokens with.
const RS256 = "RS256"

// KeyPair is an RSA signing key published under KeyID.
type KeyPair struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kty string `json:"kty"`           // Key type (RSA)
	Use string `json:"use,omitempty"` // sig
	Kid string `json:"kid,omitempty"` // Key ID
	Alg string `json:"alg,omitempty"` // Algorithm
	N   string `json:"n,omitempty"`   // Modulus
	E   string `json:"e,omitempty"`   // Exponent
}

// GenerateKeyPair generates a 2048 bit RSA key.
func GenerateKeyPair(keyID string) (*KeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, autherrors.Wrapf(err, "failed to generate RSA key")
	}
	return &KeyPair{KeyID: keyID, PrivateKey: privateKey}, nil
}

// Sign creates a compact RS256 JWT carrying the key's kid header.
func (kp *KeyPair) Sign(claims jwtlib.MapClaims) (string, error) {
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodRS256, claims)
	token.Header["kid"] = kp.KeyID

	signed, err := token.SignedString(kp.PrivateKey)
	if err != nil {
		return "", autherrors.Wrapf(err, "failed to sign token with asymmetric key")
	}
	return signed, nil
}

// ToJWK converts the public half to JWK format
func (kp *KeyPair) ToJWK() JWK {
	pub := kp.PrivateKey.PublicKey
	return JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kp.KeyID,
		Alg: RS256,
		N:   (&jwtlib.Token{}).EncodeSegment(pub.N.Bytes()),
		E:   (&jwtlib.Token{}).EncodeSegment(big.NewInt(int64(pub.E)).Bytes()),
	}
}
