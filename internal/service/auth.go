package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const tokenIssuer = "tileworld"

// ErrInvalidToken - токен не прошел проверку
var ErrInvalidToken = errors.New("недействительный токен")

// Claims - утверждения токена сессии. Subject - ID игрока.
type Claims struct {
	Name     string `json:"name"`
	Operator bool   `json:"op,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator выдает и проверяет токены сессий (HS256)
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthenticator создает аутентификатор с секретом и временем жизни токенов
func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// SetClock подменяет часы (для тестов)
func (a *Authenticator) SetClock(now func() time.Time) {
	a.now = now
}

// Issue выдает токен игроку
func (a *Authenticator) Issue(playerID, name string, operator bool) (string, error) {
	now := a.now()
	claims := Claims{
		Name:     name,
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("не удалось подписать токен: %w", err)
	}
	return signed, nil
}

// Verify проверяет подпись, срок и издателя токена
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type claimsKey struct{}

// ClaimsFromContext возвращает утверждения токена, положенные перехватчиком
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok
}

// ContextWithClaims кладет утверждения в контекст
func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// isPublicMethod - методы без аутентификации
func isPublicMethod(method string) bool {
	return method == World_JoinGame_FullMethod
}

func (a *Authenticator) authenticate(ctx context.Context) (*Claims, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	authorization := md.Get("authorization")
	if len(authorization) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing authorization header")
	}
	token := strings.TrimPrefix(authorization[0], "Bearer ")
	if token == authorization[0] {
		return nil, status.Error(codes.Unauthenticated, "invalid authorization header format")
	}
	claims, err := a.Verify(token)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
	}
	return claims, nil
}

// UnaryInterceptor требует токен на всех унарных методах, кроме JoinGame
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isPublicMethod(info.FullMethod) {
			return handler(ctx, req)
		}
		claims, err := a.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(ContextWithClaims(ctx, claims), req)
	}
}

// authedStream подменяет контекст потока контекстом с утверждениями
type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

// StreamInterceptor требует токен на всех потоковых методах
func (a *Authenticator) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if isPublicMethod(info.FullMethod) {
			return handler(srv, ss)
		}
		claims, err := a.authenticate(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ContextWithClaims(ss.Context(), claims)})
	}
}

// ServerOptions возвращает опции grpc.Server с перехватчиками аутентификации
func (a *Authenticator) ServerOptions() []grpc.ServerOption {
	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(a.UnaryInterceptor()),
		grpc.ChainStreamInterceptor(a.StreamInterceptor()),
	}
}

// BearerToken - учетные данные вызова для клиента
type BearerToken string

func (t BearerToken) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

// RequireTransportSecurity false: сервер рассчитан на локальную сеть без TLS
func (t BearerToken) RequireTransportSecurity() bool { return false }
