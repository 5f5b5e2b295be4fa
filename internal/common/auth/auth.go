// Package auth resolves the acting user (id, role, enterprise) from a bearer
// JWT and carries it through the request context for HTTP and gRPC.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/pesio-ai/be-ap-procurement/internal/common/errors"
)

// UserContext is the authenticated actor.
type UserContext struct {
	UserID       string
	Role         string
	EnterpriseID string
}

// Claims are the JWT claims the service expects.
type Claims struct {
	jwt.RegisteredClaims
	Role         string `json:"role"`
	EnterpriseID string `json:"enterprise_id"`
}

type userKey struct{}

// WithUserContext stores uc on ctx.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userKey{}, uc)
}

// GetUserContext returns the actor stored on ctx.
func GetUserContext(ctx context.Context) (*UserContext, error) {
	uc, ok := ctx.Value(userKey{}).(*UserContext)
	if !ok || uc == nil {
		return nil, errors.New(errors.ErrCodeUnauthenticated, "no authenticated user")
	}
	return uc, nil
}

// Validator verifies HMAC-signed tokens.
type Validator struct {
	secret []byte
	issuer string
}

// NewValidator creates a validator for the given shared secret. An empty
// issuer disables the issuer check.
func NewValidator(secret, issuer string) *Validator {
	return &Validator{secret: []byte(secret), issuer: issuer}
}

// Validate parses a token and returns the actor it identifies.
func (v *Validator) Validate(tokenStr string) (*UserContext, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnauthenticated, "invalid or expired token")
	}
	if !token.Valid {
		return nil, errors.New(errors.ErrCodeUnauthenticated, "invalid token")
	}
	if claims.Subject == "" || claims.Role == "" || claims.EnterpriseID == "" {
		return nil, errors.New(errors.ErrCodeUnauthenticated, "token must carry sub, role and enterprise_id")
	}

	return &UserContext{
		UserID:       claims.Subject,
		Role:         strings.ToUpper(claims.Role),
		EnterpriseID: claims.EnterpriseID,
	}, nil
}

// Issue signs a token for uc. Used by tooling and tests.
func (v *Validator) Issue(uc UserContext, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uc.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:         uc.Role,
		EnterpriseID: uc.EnterpriseID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func bearer(header string) (string, error) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("expected 'Bearer <token>'")
	}
	return parts[1], nil
}

var publicPaths = map[string]struct{}{
	"/health": {},
}

// Middleware authenticates every non-public request.
func Middleware(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := publicPaths[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			tokenStr, err := bearer(r.Header.Get("Authorization"))
			if err != nil {
				writeUnauthenticated(w, "missing or malformed Authorization header")
				return
			}
			uc, err := v.Validate(tokenStr)
			if err != nil {
				writeUnauthenticated(w, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserContext(r.Context(), uc)))
		})
	}
}

func writeUnauthenticated(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":  string(errors.ErrCodeUnauthenticated),
		"error": msg,
	})
}

// UnaryServerInterceptor authenticates gRPC calls from the "authorization"
// metadata entry.
func UnaryServerInterceptor(v *Validator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		values := md.Get("authorization")
		if len(values) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing authorization metadata")
		}
		tokenStr, err := bearer(values[0])
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		uc, err := v.Validate(tokenStr)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(WithUserContext(ctx, uc), req)
	}
}
