package azure

import (
	"encoding/json"
	"fmt"
	"strings"

	jwtlib "github.com/golang-jwt/jwt/v5"
	autherrors "github.com/jrsteele09/go-mail-oauth/internal/errors"
	"github.com/jrsteele09/go-mail-oauth/internal/utils"
)

// IDTokenClaims are the claims read from the payload of a Microsoft identity platform ID token.
// Claims are looked up by name; one with an unexpected type reads as absent.
type IDTokenClaims struct {
	jwtlib.MapClaims
}

func (c IDTokenClaims) stringClaim(name string) *string {
	v, ok := c.MapClaims[name].(string)
	if !ok {
		return nil
	}
	return &v
}

// PreferredUsername is the sign-in name, usually the mailbox address (profile scope).
func (c IDTokenClaims) PreferredUsername() *string { return c.stringClaim("preferred_username") }

// Name is the display name (profile scope).
func (c IDTokenClaims) Name() *string { return c.stringClaim("name") }

// Email is only issued with the email scope, and only when the account has one.
func (c IDTokenClaims) Email() *string { return c.stringClaim("email") }

func (c IDTokenClaims) TenantID() string { return utils.Value(c.stringClaim("tid")) }
func (c IDTokenClaims) ObjectID() string { return utils.Value(c.stringClaim("oid")) }
func (c IDTokenClaims) Nonce() string    { return utils.Value(c.stringClaim("nonce")) }

var segmentParser = jwtlib.NewParser(jwtlib.WithPaddingAllowed())

// DecodeSegment decodes base64url data, restoring any '=' padding that was stripped.
func DecodeSegment(seg string) ([]byte, error) {
	return segmentParser.DecodeSegment(seg)
}

// EncodeSegment encodes data as unpadded base64url, as used in JWT segments.
func EncodeSegment(data []byte) string {
	return (&jwtlib.Token{}).EncodeSegment(data)
}

// ParseIDToken decodes the payload of an ID token without checking its signature.
// Only the first two segments are required.
func ParseIDToken(rawIDToken string) (*IDTokenClaims, error) {
	parts := strings.Split(rawIDToken, ".")
	if len(parts) < 2 {
		return nil, autherrors.ErrJWTFormat
	}

	payload, err := DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: unable to decode id_token payload: %w", autherrors.ErrProtocol, err)
	}

	claims := jwtlib.MapClaims{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: unable to parse id_token claims: %w", autherrors.ErrProtocol, err)
	}
	return &IDTokenClaims{MapClaims: claims}, nil
}
