// Package otp implements the OTP acquisition protocol: a pluggable message
// source, a sequential poll-with-backoff waiter over it, and a first-wins
// race used to combine polling with manual operator entry.
package otp

import (
	"context"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/metakgp/iitkgp-erp-login/internal/pkg/goerror"
)

// Message is one OTP-bearing mail: the extracted code and the message's
// delivery timestamp in epoch seconds.
type Message struct {
	OTP       string
	Timestamp int64
}

// Source is the capability boundary to an OTP channel (an email inbox).
//
// FetchLatest returns the single most recent matching message no older than
// afterUnix, (nil, nil) when no such message exists yet, and an error when
// the channel is unreachable or a present message is malformed.
type Source interface {
	FetchLatest(ctx context.Context, afterUnix int64) (*Message, error)
}

// IsOTP reports whether token is exactly 6 characters parsing as a
// non-negative integer.
func IsOTP(token string) bool {
	if len(token) != 6 {
		return false
	}

	n, err := strconv.Atoi(token)

	return err == nil && n >= 0
}

// FromSubject extracts the OTP from a mail subject: the first
// whitespace-separated token that looks like an OTP. A matching mail whose
// subject holds no code is a hard error, distinct from "no mail yet".
func FromSubject(subject string) (string, error) {
	token, ok := lo.Find(strings.Fields(subject), IsOTP)
	if !ok {
		return "", goerror.NewProtocol("no otp found in mail subject", goerror.CodeOTPNotInSubject)
	}

	return token, nil
}
