package services

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnexpectedCookieFormat reports a decoded cookie that does not split into
// the expected accountId:expiration:hash triple.
var ErrUnexpectedCookieFormat = fmt.Errorf("unexpected cookie format")

// DecodeSSOCookie decodes the base64 session cookie into its account ID and
// expiration time. The decoded value must be exactly three colon-separated
// parts.
func DecodeSSOCookie(encodedStr string) (string, time.Time, error) {
	decodedBytes, err := base64.StdEncoding.DecodeString(encodedStr)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode base64: %v", err)
	}

	parts := strings.Split(string(decodedBytes), ":")
	if len(parts) != 3 {
		return "", time.Time{}, ErrUnexpectedCookieFormat
	}

	accountID := parts[0]

	expirationTimestamp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to parse expiration timestamp: %v", err)
	}

	return accountID, time.Unix(expirationTimestamp, 0), nil
}
