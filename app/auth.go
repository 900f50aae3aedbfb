package firmchat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/firmdesk/firmchat/core"
	"github.com/firmdesk/firmchat/pkg/router"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrUnrecognizedToken = errors.New("unrecognized token")
)

const (
	key            sessionKey = "session"
	AuthCookieName            = "auth_token"
	tokenLifetime             = 24 * time.Hour
)

type sessionKey = string

// Session is the authenticated identity attached to a request. The portal's
// identity service issues the token; the chat service only verifies it.
type Session struct {
	UserID core.ID `json:"user_id"`
	Name   string  `json:"name"`
	Role   string  `json:"role"`
}

type AuthClaims struct {
	UserID core.ID `json:"user_id"`
	Name   string  `json:"name"`
	Role   string  `json:"role"`
	jwt.RegisteredClaims
}

func NewClaims(user core.User, exp time.Time) *AuthClaims {
	return &AuthClaims{
		UserID: user.ID,
		Name:   user.Name,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "firmchat",
		},
	}
}

func NewToken(user core.User, expiration time.Duration, secret []byte) (string, time.Time, error) {
	exp := time.Now().Add(expiration)
	claims := NewClaims(user, exp)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(secret)
	if err != nil {
		return signed, exp, err
	}

	return signed, exp, err
}

func VerifyToken(token string, secret []byte) (*AuthClaims, error) {

	claims := &AuthClaims{}
	_token, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	switch {
	case _token != nil && _token.Valid:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrUnrecognizedToken
	}
}

func contextWithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, key, session)
}

func sessionFromContext(ctx context.Context) (Session, bool) {
	session, ok := ctx.Value(key).(Session)
	return session, ok
}

// SessionFromRequest extracts the session from the request context.
// It must be called in handlers that are protected by the JWTMiddleware.
// It panics if the session is not found in the request context.
func SessionFromRequest(r *http.Request) Session {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		panic("session not found in request context: call this function in handlers that are protected by JWTMiddleware")
	}
	return session
}

// tokenFromRequest looks for the token in the Authorization header, the auth
// cookie, and the token query parameter, in that order. The query parameter
// exists for the websocket endpoint, where browser clients cannot set
// headers.
func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return token
		}
	}
	if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Valid() == nil {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}

// JWTMiddleware verifies the request's JWT token and attaches the session to
// the request context. The session is guaranteed to be attached to the
// request context for subsequent handlers if the token is valid.
func JWTMiddleware(secret []byte) router.Middleware {

	return func(next http.Handler) router.HandlerFunc {

		authErr := router.NewJsonError(http.StatusUnauthorized, "unauthenticated")

		return router.HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
			token := tokenFromRequest(r)
			if token == "" {
				return authErr
			}

			claims, err := VerifyToken(token, secret)
			if err != nil {
				return authErr
			}

			session := Session{
				UserID: claims.UserID,
				Name:   claims.Name,
				Role:   claims.Role,
			}
			next.ServeHTTP(w, r.WithContext(contextWithSession(r.Context(), session)))

			return nil
		})
	}
}
