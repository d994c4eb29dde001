package oauth2

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// TokenResponse represents the response from the Microsoft identity platform /token endpoint.
// Every field is optional: a nil pointer means the provider did not send it.
type TokenResponse struct {
	// AccessToken is the bearer credential handed to IMAP/POP3/SMTP/EWS/Graph.
	// Lifespan: about an hour
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is the OpenID Connect ID token.
	// Only present: when "openid" scope was requested
	IdToken *string `json:"id_token,omitempty"`

	// TokenType is "Bearer" for this provider.
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// The v1 endpoints sent it as a string, so both forms are accepted.
	ExpiresIn Seconds `json:"expires_in,omitempty"`

	// RefreshToken is an opaque token used to obtain new access tokens.
	// Only present: when "offline_access" scope was requested
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope is the space-separated list of scopes that were actually granted.
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse is the JSON body the token endpoint sends with an HTTP error status.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Seconds is a duration in whole seconds. It unmarshals from a JSON number or a
// numeric string; anything else leaves it zero.
type Seconds int64

func (s *Seconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return nil
		}
		data = []byte(strings.TrimSpace(str))
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*s = Seconds(v)
	return nil
}

// ParseTokenResponse decodes a token endpoint body. The body must be a JSON
// object; unknown fields, and known fields of an unexpected type, are ignored.
func ParseTokenResponse(body []byte) (*TokenResponse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}

	resp := &TokenResponse{
		AccessToken:  stringField(fields, "access_token"),
		IdToken:      stringField(fields, "id_token"),
		RefreshToken: stringField(fields, "refresh_token"),
	}
	if v := stringField(fields, "token_type"); v != nil {
		resp.TokenType = *v
	}
	if v := stringField(fields, "scope"); v != nil {
		resp.Scope = *v
	}
	if raw, ok := fields["expires_in"]; ok {
		_ = resp.ExpiresIn.UnmarshalJSON(raw)
	}
	return resp, nil
}

func stringField(fields map[string]json.RawMessage, name string) *string {
	var v *string
	if err := json.Unmarshal(fields[name], &v); err != nil {
		return nil
	}
	return v
}

// ParseErrorResponse decodes a token endpoint error body.
func ParseErrorResponse(body []byte) (*ErrorResponse, error) {
	var resp ErrorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
