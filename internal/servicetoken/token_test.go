package servicetoken

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func TestSignerVerifierRoundTripCarriesOwner(t *testing.T) {
	privatePath, publicPath := writeRSAKeyPairFiles(t, "svc")
	signer, err := NewSigner(SignerOptions{
		PrivateKeyPath: privatePath,
		Issuer:         "chat-adapter",
		TTL:            2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	verifier, err := NewVerifier(VerifierOptions{
		PublicKeyPath:  publicPath,
		Audience:       ArchiveAudience,
		AllowedIssuers: []string{"chat-adapter"},
		Leeway:         time.Second,
	})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := signer.Sign(ArchiveAudience, 42)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := verifier.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Issuer != "chat-adapter" || claims.OwnerID != 42 {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSignerRequiresOwner(t *testing.T) {
	key := newKey(t)
	signer, err := NewSigner(SignerOptions{PrivateKey: key, Issuer: "chat-adapter"})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	if _, err := signer.Sign(ArchiveAudience, 0); err == nil {
		t.Fatalf("expected missing owner to fail")
	}
}

func TestSignerRequiresPrivateKey(t *testing.T) {
	if _, err := NewSigner(SignerOptions{Issuer: "chat-adapter"}); err == nil {
		t.Fatalf("expected missing key to fail")
	}
}

func TestVerifierRejectsWrongAudience(t *testing.T) {
	key := newKey(t)
	signer, _ := NewSigner(SignerOptions{PrivateKey: key, Issuer: "chat-adapter"})
	verifier, _ := NewVerifier(VerifierOptions{
		PublicKey:      &key.PublicKey,
		Audience:       ArchiveAudience,
		AllowedIssuers: []string{"chat-adapter"},
	})
	token, _ := signer.Sign("billing", 1)
	if _, err := verifier.Verify(token); err == nil {
		t.Fatalf("expected audience mismatch")
	}
}

func TestVerifierRejectsUnknownIssuer(t *testing.T) {
	key := newKey(t)
	signer, _ := NewSigner(SignerOptions{PrivateKey: key, Issuer: "rogue"})
	verifier, _ := NewVerifier(VerifierOptions{
		PublicKey:      &key.PublicKey,
		Audience:       ArchiveAudience,
		AllowedIssuers: []string{"chat-adapter"},
	})
	token, _ := signer.Sign(ArchiveAudience, 1)
	if _, err := verifier.Verify(token); err == nil {
		t.Fatalf("expected issuer to be rejected")
	}
}

func TestVerifierRejectsUnknownKid(t *testing.T) {
	key := newKey(t)
	signer, _ := NewSigner(SignerOptions{PrivateKey: key, KeyID: "kid-1", Issuer: "chat-adapter"})
	verifier, _ := NewVerifier(VerifierOptions{
		PublicKey:      &key.PublicKey,
		KeyID:          "kid-2",
		Audience:       ArchiveAudience,
		AllowedIssuers: []string{"chat-adapter"},
	})
	token, _ := signer.Sign(ArchiveAudience, 1)
	if _, err := verifier.Verify(token); err == nil {
		t.Fatalf("expected unknown kid to fail")
	}
}

func TestVerifierRejectsMissingOwnerClaim(t *testing.T) {
	key := newKey(t)
	verifier, _ := NewVerifier(VerifierOptions{
		PublicKey:      &key.PublicKey,
		Audience:       ArchiveAudience,
		AllowedIssuers: []string{"chat-adapter"},
	})
	now := time.Now().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    "chat-adapter",
		Subject:   "chat-adapter",
		Audience:  jwt.ClaimStrings{ArchiveAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		ID:        "jti-no-owner",
	})
	token.Header["kid"] = DefaultKeyID
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := verifier.Verify(signed); err == nil {
		t.Fatalf("expected token without owner to fail")
	}
}

func TestVerifierRejectsExpiredToken(t *testing.T) {
	key := newKey(t)
	verifier, _ := NewVerifier(VerifierOptions{
		PublicKey:      &key.PublicKey,
		Audience:       ArchiveAudience,
		AllowedIssuers: []string{"chat-adapter"},
		Leeway:         time.Second,
	})
	past := time.Now().UTC().Add(-time.Hour)
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, Claims{
		OwnerID: 1,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "chat-adapter",
			Audience:  jwt.ClaimStrings{ArchiveAudience},
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
			ID:        "jti-expired",
		},
	})
	token.Header["kid"] = DefaultKeyID
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := verifier.Verify(signed); err == nil {
		t.Fatalf("expected expired token to fail")
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	token, ok := BearerToken(req)
	if !ok || token != "abc" {
		t.Fatalf("expected bearer token")
	}
	req.Header.Set("Authorization", "Basic abc")
	if _, ok := BearerToken(req); ok {
		t.Fatalf("expected non-bearer header to be ignored")
	}
}

func newKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func writeRSAKeyPairFiles(t *testing.T, prefix string) (string, string) {
	t.Helper()
	key := newKey(t)
	dir := t.TempDir()
	privatePath := filepath.Join(dir, prefix+"-private.pem")
	publicPath := filepath.Join(dir, prefix+"-public.pem")
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		t.Fatalf("write private: %v", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public: %v", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		t.Fatalf("write public: %v", err)
	}
	return privatePath, publicPath
}
