package websocket

import (
	"errors"
	"net/http"
	"strings"

	"dockhub/internal/microservices/http-api/service"
)

var ErrTokenRequired = errors.New("missing access token")

// TokenValidator is satisfied by service.TokenService.
type TokenValidator interface {
	ValidateToken(tokenString string) (*service.Claims, error)
}

// tokenGate requires a valid access token before the upgrade. Browsers cannot
// set headers on a websocket handshake, so ?token= is accepted as well.
type tokenGate struct {
	tokens TokenValidator
}

func (g *tokenGate) check(r *http.Request) error {
	token := ""
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			token = parts[1]
		}
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return ErrTokenRequired
	}
	_, err := g.tokens.ValidateToken(token)
	return err
}
