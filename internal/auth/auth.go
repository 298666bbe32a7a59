// Package auth authenticates the single operator account that owns this
// backend (there is exactly one account: the person administering the
// Minecraft server, not a multi-tenant user directory), issuing and
// validating the JWTs the HTTP bridge requires on every PIM endpoint.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// Operator is the one administrator account this backend serves.
type Operator struct {
	Username            string     `json:"username"`
	PasswordHash        string     `json:"password_hash"`
	CreatedAt           time.Time  `json:"created_at"`
	LastLogin           *time.Time `json:"last_login,omitempty"`
	LastFailedLogin     *time.Time `json:"last_failed_login,omitempty"`
	LastFailedLoginIP   string     `json:"last_failed_login_ip,omitempty"`
	LastPasswordChange  *time.Time `json:"last_password_change,omitempty"`
	FailedLoginCount    int        `json:"failed_login_count"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	MustChangePassword  bool       `json:"must_change_password"`
}

var (
	operator   *Operator
	operatorMu sync.RWMutex

	loginLimiters = newLoginLimiterStore(1, 5, 10*time.Minute)
	revokedJWTs   = newRevokedJWTStore(30 * time.Minute)
	jwtKey        []byte
)

type revokedJWTStore struct {
	mu         sync.Mutex
	items      map[string]time.Time // tokenHash -> expiresAt
	lastGC     time.Time
	gcInterval time.Duration
}

func newRevokedJWTStore(gcInterval time.Duration) *revokedJWTStore {
	if gcInterval <= 0 {
		gcInterval = 30 * time.Minute
	}
	return &revokedJWTStore{
		items:      make(map[string]time.Time),
		lastGC:     time.Now(),
		gcInterval: gcInterval,
	}
}

func (s *revokedJWTStore) revoke(tokenHash string, expiresAt time.Time) {
	if tokenHash == "" {
		return
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastGC) >= s.gcInterval {
		for k, exp := range s.items {
			if !exp.After(now) {
				delete(s.items, k)
			}
		}
		s.lastGC = now
	}
	s.items[tokenHash] = expiresAt
}

func (s *revokedJWTStore) isRevoked(tokenHash string) bool {
	if tokenHash == "" {
		return false
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.items[tokenHash]
	if !ok {
		return false
	}
	if !exp.After(now) {
		delete(s.items, tokenHash)
		return false
	}
	return true
}

func hashToken(tokenString string) string {
	if strings.TrimSpace(tokenString) == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(tokenString))
	return hex.EncodeToString(sum[:])
}

func parseAndValidateJWT(tokenString string) (*jwt.RegisteredClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtKey, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// loginLimiterStore scopes a rate.Limiter per key (ip, username, or a
// composite), so a single abusive caller can't starve everyone else's
// login attempts.
type loginLimiterStore struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	lastSeen   map[string]time.Time
	r          rate.Limit
	burst      int
	maxIdle    time.Duration
	lastGC     time.Time
	gcInterval time.Duration
}

func newLoginLimiterStore(r rate.Limit, burst int, maxIdle time.Duration) *loginLimiterStore {
	if maxIdle <= 0 {
		maxIdle = 10 * time.Minute
	}
	return &loginLimiterStore{
		limiters:   make(map[string]*rate.Limiter),
		lastSeen:   make(map[string]time.Time),
		r:          r,
		burst:      burst,
		maxIdle:    maxIdle,
		gcInterval: 5 * time.Minute,
		lastGC:     time.Now(),
	}
}

func (s *loginLimiterStore) get(key string) *rate.Limiter {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastGC) >= s.gcInterval {
		for k, seen := range s.lastSeen {
			if now.Sub(seen) > s.maxIdle {
				delete(s.lastSeen, k)
				delete(s.limiters, k)
			}
		}
		s.lastGC = now
	}

	lim, ok := s.limiters[key]
	if !ok {
		lim = rate.NewLimiter(s.r, s.burst)
		s.limiters[key] = lim
	}
	s.lastSeen[key] = now
	return lim
}

// GetLoginLimiterForKey returns a rate limiter scoped to a caller-provided
// key (e.g. ip address), avoiding a global limiter DoS.
func GetLoginLimiterForKey(key string) *rate.Limiter {
	if key == "" {
		key = "_"
	}
	return loginLimiters.get(key)
}

func dataDir() string {
	if v := os.Getenv("DATA_DIR"); v != "" {
		return v
	}
	if _, err := os.Stat("/data"); err == nil {
		return "/data"
	}
	return "./data"
}

func operatorFilePath() string {
	return filepath.Join(dataDir(), "operator.json")
}

// InitOperatorStore loads the single operator account from disk, creating
// a default admin/admin123 account (forced password change) on first run.
func InitOperatorStore() error {
	operatorMu.Lock()
	defer operatorMu.Unlock()

	dir := dataDir()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		log.Printf("auth: create data dir %s: %v", dir, err)
	}
	_ = os.Chmod(dir, 0o700)

	path := operatorFilePath()
	data, err := os.ReadFile(path)
	if err != nil {
		now := time.Now()
		operator = &Operator{
			Username:           "admin",
			PasswordHash:       "$2a$10$Spuxl0kXOXW2hFb//8Ylj.Nrr./Qpa2Ba0JA0eKprr0NoNHaMJwUC", // bcrypt hash of "admin123"
			CreatedAt:          now,
			MustChangePassword: true,
		}
		return saveOperatorLocked()
	}

	operator = &Operator{}
	if err := json.Unmarshal(data, operator); err != nil {
		return fmt.Errorf("auth: parse operator file: %w", err)
	}
	return nil
}

func saveOperatorLocked() error {
	data, err := json.MarshalIndent(operator, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: marshal operator: %w", err)
	}
	if err := os.WriteFile(operatorFilePath(), data, 0o600); err != nil {
		return fmt.Errorf("auth: write operator file: %w", err)
	}
	_ = os.Chmod(operatorFilePath(), 0o600)
	return nil
}

// InitJWTKey loads the signing key from JWT_SECRET, generating a random
// development-only key when explicitly running in a dev environment.
func InitJWTKey() {
	key := os.Getenv("JWT_SECRET")
	if key == "" {
		if os.Getenv("ENV") == "development" || os.Getenv("DEV") == "true" {
			log.Println("WARNING: JWT_SECRET is not set, generating a random key for development only")
			randomKey := make([]byte, 32)
			if _, err := rand.Read(randomKey); err != nil {
				log.Fatalf("auth: generate random JWT key: %v", err)
			}
			jwtKey = randomKey
			return
		}
		log.Fatal("auth: JWT_SECRET environment variable is required in production")
	}

	jwtKey = []byte(key)
	if len(jwtKey) < 32 {
		log.Fatal("auth: JWT_SECRET must be at least 32 bytes long")
	}
	if len(jwtKey) < 64 {
		log.Println("WARNING: JWT_SECRET is less than 64 bytes; consider a longer secret")
	}
}

// GenerateJWT issues a 24h token for the operator.
func GenerateJWT(username string) (string, error) {
	now := time.Now()
	claims := &jwt.RegisteredClaims{
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(now.Add(24 * time.Hour)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ID:        fmt.Sprintf("%s-%d", username, now.UnixNano()),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtKey)
}

// ValidateJWT checks signature, expiry and the revocation list.
func ValidateJWT(tokenString string) (*jwt.RegisteredClaims, error) {
	claims, err := parseAndValidateJWT(tokenString)
	if err != nil {
		return nil, err
	}
	if revokedJWTs.isRevoked(hashToken(tokenString)) {
		return nil, fmt.Errorf("token revoked")
	}
	return claims, nil
}

// RevokeJWT marks a token revoked until its expiry, making logout effective
// server-side.
func RevokeJWT(tokenString string) {
	claims, err := parseAndValidateJWT(tokenString)
	if err != nil {
		return
	}
	exp := time.Now().Add(24 * time.Hour)
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	revokedJWTs.revoke(hashToken(tokenString), exp)
}

// HashPasswordBcrypt hashes a password for storage.
func HashPasswordBcrypt(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckAccountLock reports whether the operator account is currently
// locked out from a prior run of failed attempts.
func CheckAccountLock(op *Operator) bool {
	return op.LockedUntil != nil && op.LockedUntil.After(time.Now())
}

// ValidateOperator checks username/password against the single stored
// operator account, tracking the lockout counter on failure.
func ValidateOperator(username, password string) *Operator {
	operatorMu.Lock()
	defer operatorMu.Unlock()

	if operator == nil || operator.Username != username {
		return nil
	}
	if CheckAccountLock(operator) {
		log.Printf("auth: account locked for %s", username)
		return nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(password)); err != nil {
		operator.FailedLoginCount++
		if operator.FailedLoginCount >= 5 {
			lockedUntil := time.Now().Add(15 * time.Minute)
			operator.LockedUntil = &lockedUntil
			log.Printf("auth: account locked for %s after 5 failed attempts", username)
		}
		_ = saveOperatorLocked()
		return nil
	}

	operator.FailedLoginCount = 0
	operator.LockedUntil = nil
	now := time.Now()
	operator.LastLogin = &now
	_ = saveOperatorLocked()

	cp := *operator
	return &cp
}

// RecordFailedLogin attaches the calling IP to the operator's
// last-failed-login record, for audit purposes.
func RecordFailedLogin(username, ip string) {
	operatorMu.Lock()
	defer operatorMu.Unlock()

	if operator == nil || operator.Username != username {
		return
	}
	now := time.Now()
	operator.LastFailedLogin = &now
	operator.LastFailedLoginIP = ip
	_ = saveOperatorLocked()
}

// ChangePassword updates the operator's password; oldPassword must match
// unless the account is still under its initial MustChangePassword state.
func ChangePassword(username, oldPassword, newPassword string) error {
	username = strings.TrimSpace(username)
	if strings.TrimSpace(newPassword) == "" {
		return errors.New("new_password is required")
	}

	operatorMu.Lock()
	defer operatorMu.Unlock()

	if operator == nil || operator.Username != username {
		return fmt.Errorf("user not found")
	}

	if !operator.MustChangePassword {
		if strings.TrimSpace(oldPassword) == "" {
			return errors.New("old_password is required")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(operator.PasswordHash), []byte(oldPassword)); err != nil {
			return errors.New("invalid old password")
		}
	}

	hash, err := HashPasswordBcrypt(newPassword)
	if err != nil {
		return fmt.Errorf("password hashing failed: %w", err)
	}
	operator.PasswordHash = hash
	operator.FailedLoginCount = 0
	operator.LockedUntil = nil
	operator.MustChangePassword = false
	now := time.Now()
	operator.LastPasswordChange = &now
	return saveOperatorLocked()
}

// GetOperator returns a defensive copy of the current operator account, or
// nil if the store hasn't been initialized.
func GetOperator() *Operator {
	operatorMu.RLock()
	defer operatorMu.RUnlock()
	if operator == nil {
		return nil
	}
	cp := *operator
	return &cp
}
