package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultTokenTTL is the access token lifetime in minutes when the
// config does not set one.
const defaultTokenTTL = 15

// loginRequest is the request body for POST /api/v1/auth/login.
type loginRequest struct {
	Password string `json:"password"`
}

// loginResponse is the response body for a successful login.
type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// handleLogin exchanges the static password for a short-lived bearer
// token, so browser clients don't have to attach the password to every
// request. With auth disabled there is nothing to exchange.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.authCfg.Enabled {
		writeBadRequest(w, "authentication is disabled")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.authCfg.Password)) != 1 {
		writeUnauthorized(w, "invalid password")
		return
	}

	ttl := s.authCfg.JWT.AccessTokenTTL
	if ttl == 0 {
		ttl = defaultTokenTTL
	}

	claims := jwt.MapClaims{
		"sub": "tapowatt",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Duration(ttl) * time.Minute).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.authCfg.JWT.Secret))
	if err != nil {
		writeInternalError(w, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60,
	})
}
