package token

import (
	"fmt"
	"strings"

	"pqcall/internal/crypto"
	"pqcall/internal/domain"
)

// QRPrefix is the scheme segment of every QR payload.
const QRPrefix = "pqc"

// qrFieldCount: prefix, version, value, checksum.
const qrFieldCount = 4

// FormatQR encodes a token as the ASCII payload carried in a QR code:
// pqc:<version>:<64-hex value>:<8-hex checksum>.
func FormatQR(tok domain.SecureToken) string {
	return fmt.Sprintf("%s:%d:%s:%s", QRPrefix, tok.Version, tok.Value, tok.Checksum)
}

// ValidateQRShape checks the payload structure without touching the
// checksum. Any deviation in field count, prefix, version, lengths, or hex
// alphabet is a format error, never conflated with a checksum error.
func ValidateQRShape(payload string) error {
	parts := strings.Split(payload, ":")
	if len(parts) != qrFieldCount {
		return formatErr("payload must have 4 colon-separated fields")
	}
	if parts[0] != QRPrefix {
		return formatErr("unrecognized payload prefix")
	}
	if !allDigits(parts[1]) || parts[1] == "" {
		return formatErr("version must be numeric")
	}
	if parts[1] != "1" {
		return domain.NewFailure(domain.KindFormat, domain.CodeUnsupportedVersion,
			"unsupported token version "+parts[1])
	}
	if len(parts[2]) != domain.TokenValueHexLen || !isHexString(parts[2]) {
		return formatErr("token value must be 64 hex characters")
	}
	if len(parts[3]) != domain.TokenChecksumHexLen || !isHexString(parts[3]) {
		return formatErr("checksum must be 8 hex characters")
	}
	return nil
}

// ParseQR validates shape and checksum and returns the token. A correctly
// shaped payload whose checksum does not match its value is an integrity
// error, distinct from the format errors ValidateQRShape reports.
func ParseQR(payload string) (domain.SecureToken, error) {
	if err := ValidateQRShape(payload); err != nil {
		return domain.SecureToken{}, err
	}
	parts := strings.Split(payload, ":")
	value := strings.ToLower(parts[2])
	checksum := strings.ToLower(parts[3])

	if !crypto.VerifyChecksum(value, checksum) {
		return domain.SecureToken{}, domain.NewFailure(domain.KindIntegrity,
			domain.CodeInvalidChecksum, "checksum does not match token value")
	}
	return domain.SecureToken{
		Value:    value,
		Version:  domain.TokenVersion,
		Checksum: checksum,
	}, nil
}

func formatErr(msg string) error {
	return domain.NewFailure(domain.KindFormat, domain.CodeInvalidFormat, msg)
}

func isHexString(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
