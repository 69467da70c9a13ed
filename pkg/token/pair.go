package token

import (
	"encoding/json"
	"fmt"
)

// Pair is the token set handed to clients after login or refresh.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Type names a token kind, sent to the provider as token_type_hint.
type Type string

const (
	AccessToken  Type = "access_token"
	RefreshToken Type = "refresh_token"
)

func (t Type) String() string {
	return string(t)
}

// parsePair decodes a token endpoint response and requires an access token.
func parsePair(body []byte) (*Pair, error) {
	var pair Pair
	if err := json.Unmarshal(body, &pair); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if pair.AccessToken == "" {
		return nil, fmt.Errorf("token response has no access_token")
	}
	return &pair, nil
}
