package security

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
)

// SignerClaims : jeton émis en amont une fois la signature NEAR vérifiée.
type SignerClaims struct {
	SignerID string `json:"signer_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier ne fait que vérifier : la clé privée reste chez l'émetteur.
type JWTVerifier struct {
	publicKey *rsa.PublicKey
	issuer    string
}

func NewJWTVerifier(publicKeyPEM []byte, issuer string) (*JWTVerifier, error) {
	pubKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return &JWTVerifier{publicKey: pubKey, issuer: issuer}, nil
}

// Validate vérifie signature, expiration et émetteur puis renvoie le signerId.
func (j *JWTVerifier) Validate(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired()}
	if j.issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SignerClaims{}, func(token *jwt.Token) (interface{}, error) {
		// RS256 uniquement (pas de "none" ni HS256 avec la clé publique)
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.publicKey, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}

	claims, ok := token.Claims.(*SignerClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: invalid token claims", domain.ErrUnauthorized)
	}

	signer := strings.TrimSpace(claims.SignerID)
	if signer == "" {
		signer = strings.TrimSpace(claims.Subject)
	}
	if signer == "" {
		return "", errors.Join(domain.ErrUnauthorized, errors.New("token carries no signer"))
	}
	return signer, nil
}
