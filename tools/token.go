package tools

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	claimSubject = "sub"
	claimOrgID   = "org_id"
	claimAdmin   = "admin"
	claimType    = "typ"

	operatorTokenType = "operator"
)

// OperatorClaims é o que o painel recebe de um token de operador válido.
type OperatorClaims struct {
	OperatorID string
	OrgID      string
	Admin      bool
	ExpiresAt  time.Time
}

// IssueOperatorToken assina um JWT HS256 para um operador.
func IssueOperatorToken(secret, operatorID, orgID string, admin bool, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(operatorID) == "" {
		return "", time.Time{}, fmt.Errorf("operator id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt ttl must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	claims := jwt.MapClaims{
		claimSubject: operatorID,
		claimOrgID:   orgID,
		claimAdmin:   admin,
		claimType:    operatorTokenType,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseOperatorToken valida assinatura/expiração e extrai as claims do operador.
// BearerToken tira o esquema "Bearer" (sem diferenciar maiúsculas) do header Authorization.
// Sem esquema, devolve o valor inteiro.
func BearerToken(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 6 && strings.EqualFold(raw[:6], "bearer") && (len(raw) == 6 || raw[6] == ' ') {
		raw = raw[6:]
	}
	return strings.TrimSpace(raw)
}

func ParseOperatorToken(secret, raw string) (OperatorClaims, error) {
	var out OperatorClaims
	raw = BearerToken(raw)
	if raw == "" {
		return out, errors.New("token is required")
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return out, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return out, errors.New("invalid token claims")
	}
	if typ, _ := claims[claimType].(string); typ != operatorTokenType {
		return out, errors.New("not an operator token")
	}

	out.OperatorID, _ = claims[claimSubject].(string)
	if strings.TrimSpace(out.OperatorID) == "" {
		return out, errors.New("operator id missing")
	}
	out.OrgID, _ = claims[claimOrgID].(string)
	out.Admin, _ = claims[claimAdmin].(bool)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}
