package backend

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	deviceTokenIssuer     = "posync-agent"
	defaultDeviceTokenTTL = 5 * time.Minute
	// tokens are re-minted once less than this much lifetime remains.
	deviceTokenRefreshSkew = 30 * time.Second
)

var deviceSigningMethod = jwt.SigningMethodHS256

// TokenSource yields the bearer token for the next backend request.
type TokenSource interface {
	Token() (string, error)
}

// DeviceClaims identify the till making the request.
type DeviceClaims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// DeviceTokenSource mints short-lived HS256 tokens signed with a secret
// shared with the backend, caching each until it nears expiry.
type DeviceTokenSource struct {
	secret   []byte
	deviceID string
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	current string
	expires time.Time
}

func NewDeviceTokenSource(secret, deviceID string, ttl time.Duration) (*DeviceTokenSource, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("device token secret is required")
	}
	if strings.TrimSpace(deviceID) == "" {
		return nil, fmt.Errorf("device id is required")
	}
	if ttl <= deviceTokenRefreshSkew {
		ttl = defaultDeviceTokenTTL
	}
	return &DeviceTokenSource{
		secret:   []byte(secret),
		deviceID: deviceID,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

func (s *DeviceTokenSource) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if s.current != "" && now.Add(deviceTokenRefreshSkew).Before(s.expires) {
		return s.current, nil
	}

	expires := now.Add(s.ttl)
	claims := DeviceClaims{
		DeviceID: s.deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    deviceTokenIssuer,
			Subject:   s.deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(deviceSigningMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing device token: %w", err)
	}
	s.current = signed
	s.expires = expires
	return signed, nil
}

// ParseDeviceToken validates a token minted by DeviceTokenSource. The backend
// side of the handshake and the tests use it.
func ParseDeviceToken(secret, token string) (*DeviceClaims, error) {
	claims := &DeviceClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != deviceSigningMethod {
			return nil, fmt.Errorf("unexpected signing method %s", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(deviceTokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("parsing device token: %w", err)
	}
	return claims, nil
}

type staticToken string

func (t staticToken) Token() (string, error) { return string(t), nil }
