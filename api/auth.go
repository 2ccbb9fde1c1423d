package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/wallet-ledger/ledger"
)

// ErrForbidden is returned when the caller may not touch a wallet.
var ErrForbidden = errors.New("forbidden")

type ctxKey int

const userKey ctxKey = iota

// UserFrom returns the authenticated caller.
func UserFrom(ctx context.Context) (ledger.UserID, bool) {
	u, ok := ctx.Value(userKey).(ledger.UserID)
	return u, ok && u != ""
}

func withUser(ctx context.Context, u ledger.UserID) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// Authenticator resolves the caller from an HS256 bearer token. The user id
// is the token subject.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token", Kind: "unauthorized"})
			return
		}
		user, err := a.Verify(raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid token", Kind: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// Verify checks the signature and expiry and returns the subject.
func (a *Authenticator) Verify(raw string) (ledger.UserID, error) {
	claims := new(jwt.RegisteredClaims)
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	token, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return ledger.UserID(claims.Subject), nil
}

// IssueToken signs a token for user valid for ttl.
func IssueToken(secret string, user ledger.UserID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(user),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// =============================================================================
// AUTHORIZATION
// =============================================================================

type walletDirectory interface {
	GetWallet(ctx context.Context, id ledger.WalletID) (ledger.Wallet, error)
	IsHouseholdMember(ctx context.Context, household ledger.HouseholdID, user ledger.UserID) (bool, error)
}

// Authorizer admits the owner of a wallet and members of its household.
type Authorizer struct {
	Wallets walletDirectory
}

// Wallet loads id and checks that user may act on it.
func (a Authorizer) Wallet(ctx context.Context, user ledger.UserID, id ledger.WalletID) (ledger.Wallet, error) {
	w, err := a.Wallets.GetWallet(ctx, id)
	if err != nil {
		return ledger.Wallet{}, err
	}
	if w.OwnerID == user {
		return w, nil
	}
	if w.HouseholdID != nil {
		ok, err := a.Wallets.IsHouseholdMember(ctx, *w.HouseholdID, user)
		if err != nil {
			return ledger.Wallet{}, err
		}
		if ok {
			return w, nil
		}
	}
	return ledger.Wallet{}, ErrForbidden
}

// Household checks that user belongs to household.
func (a Authorizer) Household(ctx context.Context, user ledger.UserID, household ledger.HouseholdID) error {
	ok, err := a.Wallets.IsHouseholdMember(ctx, household, user)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}
