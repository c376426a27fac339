package webapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"
	solgate "github.com/solgatepay/solgate/pkg"
)

// Two credentials exist side by side: dashboard endpoints use a JWT
// session minted at login, the invoice API uses the account's API key.
// Both travel as bearer tokens in the Authorization header.

// mintSession creates a signed session token for an account.
func (t WebAPI) mintSession(account solgate.Account) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": account.ID,
		"iat":     now.Unix(),
		"exp":     now.AddDate(0, 0, t.config.Auth.SessionDays).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(t.config.Auth.SessionSecret))
}

// sessionUserID verifies a session token and returns the account ID
// it was minted for.
func (t WebAPI) sessionUserID(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(t.config.Auth.SessionSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, solgate.NewErr(solgate.Unauthorized, "invalid session: %v", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, solgate.NewErr(solgate.Unauthorized, "invalid session claims")
	}
	userID, ok := claims["user_id"].(float64) // JSON numbers decode as float64
	if !ok {
		return 0, solgate.NewErr(solgate.Unauthorized, "invalid session claims")
	}
	return int64(userID), nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// withSession wraps a dashboard handler, resolving the session token
// to an account ID.
func (t WebAPI) withSession(handler func(w http.ResponseWriter, r *http.Request, p httprouter.Params, userID int64)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		token := bearerToken(r)
		if token == "" {
			sendUnauthorized(w, "missing session token")
			return
		}
		userID, err := t.sessionUserID(token)
		if err != nil {
			sendUnauthorized(w, "invalid or expired session")
			return
		}
		handler(w, r, p, userID)
	}
}

// withAPIKey wraps an invoice-API handler, resolving the API key to
// its account.
func (t WebAPI) withAPIKey(handler func(w http.ResponseWriter, r *http.Request, p httprouter.Params, account solgate.Account)) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		account, err := t.api.AuthenticateAPIKey(bearerToken(r))
		if err != nil {
			sendUnauthorized(w, "invalid API key")
			return
		}
		handler(w, r, p, account)
	}
}
