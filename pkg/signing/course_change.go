package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMalformed is returned when the token does not have the expected shape.
	ErrMalformed = errors.New("malformed course change token")
	// ErrSignature is returned when the token was not produced with our secret.
	ErrSignature = errors.New("invalid course change token signature")
	// ErrExpired is returned for tokens past their expiry.
	ErrExpired = errors.New("course change token expired")
)

// CourseChange is the payload carried by a course change confirmation token.
type CourseChange struct {
	StudentID    string
	EnrollmentID string
	FromClassID  string
	ToClassID    string
	ExpiresAt    time.Time
}

// CourseChangeSigner issues and verifies HMAC-SHA256 confirmation tokens for
// the two-step public course change.
type CourseChangeSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCourseChangeSigner constructs a signer with the provided secret and TTL.
func NewCourseChangeSigner(secret string, ttl time.Duration) *CourseChangeSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &CourseChangeSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a signed token for the change and its expiry.
func (s *CourseChangeSigner) Generate(change CourseChange) (string, time.Time, error) {
	if change.StudentID == "" || change.EnrollmentID == "" || change.FromClassID == "" || change.ToClassID == "" {
		return "", time.Time{}, fmt.Errorf("student, enrollment and classes required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	parts := []string{
		change.StudentID,
		change.EnrollmentID,
		change.FromClassID,
		change.ToClassID,
		strconv.FormatInt(expiresAt.Unix(), 10),
	}
	parts = append(parts, s.sign(parts))
	return strings.Join(parts, "."), expiresAt, nil
}

// Parse validates the token signature and expiry and returns the payload.
func (s *CourseChangeSigner) Parse(token string) (*CourseChange, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 6 {
		return nil, ErrMalformed
	}
	for _, part := range parts {
		if part == "" {
			return nil, ErrMalformed
		}
	}
	expUnix, err := strconv.ParseInt(parts[4], 10, 64)
	if err != nil {
		return nil, ErrMalformed
	}
	expected := s.sign(parts[:5])
	if !hmac.Equal([]byte(expected), []byte(parts[5])) {
		return nil, ErrSignature
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return nil, ErrExpired
	}
	return &CourseChange{
		StudentID:    parts[0],
		EnrollmentID: parts[1],
		FromClassID:  parts[2],
		ToClassID:    parts[3],
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *CourseChangeSigner) sign(parts []string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
