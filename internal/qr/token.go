// Package qr issues and verifies the signed, expiring session tokens that
// get embedded in scannable codes. Verification is stateless: it consults
// only the payload fields and the server secret, never persistence.
package qr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
)

// Clock returns the current time. Injectable for deterministic tests.
type Clock func() time.Time

// Signer builds and verifies QR payloads with an HMAC-SHA256 signature.
type Signer struct {
	secret []byte
	clock  Clock
}

// NewSigner constructs a Signer. A nil clock defaults to time.Now.
func NewSigner(secret string, clock Clock) *Signer {
	if clock == nil {
		clock = time.Now
	}
	return &Signer{secret: []byte(secret), clock: clock}
}

// Issue captures the current time and produces a signed payload valid for
// the given window. A nil fence yields a token without a geofence; scans
// against it skip the distance check.
func (s *Signer) Issue(sessionID, courseID, facultyID string, fence *models.Geofence, validity time.Duration) models.QRPayload {
	issuedAt := s.clock().UTC()
	payload := models.QRPayload{
		SessionID: sessionID,
		CourseID:  courseID,
		FacultyID: facultyID,
		Timestamp: issuedAt.UnixMilli(),
		ExpiresAt: issuedAt.Add(validity).UnixMilli(),
		Geofence:  fence,
	}
	payload.Signature = s.sign(payload)
	return payload
}

// Verify recomputes the MAC over the payload's own fields and checks expiry.
// Signature mismatch and expiry are distinct failures so callers can report
// a precise reason. Fails closed on any mismatch.
func (s *Signer) Verify(payload models.QRPayload) error {
	expected := s.sign(payload)
	if !hmac.Equal([]byte(expected), []byte(payload.Signature)) {
		return appErrors.ErrInvalidSignature
	}
	if !s.clock().UTC().Before(payload.ExpiresAtTime()) {
		return appErrors.ErrTokenExpired
	}
	return nil
}

// Encode serializes the payload as the canonical JSON wire form.
func Encode(payload models.QRPayload) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode QR payload")
	}
	return string(raw), nil
}

// Decode parses a raw scanned payload. Any structural problem is reported
// as an invalid-format error, never as a signature failure.
func Decode(raw string) (models.QRPayload, error) {
	var payload models.QRPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return models.QRPayload{}, appErrors.Clone(appErrors.ErrInvalidFormat, "QR payload is not valid JSON")
	}
	if payload.SessionID == "" || payload.Signature == "" || payload.Timestamp <= 0 || payload.ExpiresAt <= 0 {
		return models.QRPayload{}, appErrors.Clone(appErrors.ErrInvalidFormat, "QR payload is missing required fields")
	}
	return payload, nil
}

// PNG renders the encoded payload as a scannable PNG image.
func PNG(payload models.QRPayload, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	encoded, err := Encode(payload)
	if err != nil {
		return nil, err
	}
	img, err := qrcode.Encode(encoded, qrcode.Medium, size)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render QR image")
	}
	return img, nil
}

// sign computes the MAC over every integrity-relevant field. The geofence is
// included so a relocated token fails verification.
func (s *Signer) sign(payload models.QRPayload) string {
	parts := []string{
		payload.SessionID,
		payload.CourseID,
		payload.FacultyID,
		strconv.FormatInt(payload.Timestamp, 10),
		strconv.FormatInt(payload.ExpiresAt, 10),
	}
	if payload.Geofence != nil {
		parts = append(parts,
			strconv.FormatFloat(payload.Geofence.Lat, 'f', -1, 64),
			strconv.FormatFloat(payload.Geofence.Lon, 'f', -1, 64),
			strconv.FormatFloat(payload.Geofence.RadiusM, 'f', -1, 64),
		)
	}
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
