package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	messageIDPrefix = "msg_"
	callIDPrefix    = "call_"
)

var (
	messageIDPattern = regexp.MustCompile(`^msg_[a-zA-Z0-9]{24}$`)
	callIDPattern    = regexp.MustCompile(`^call_[a-zA-Z0-9]{24}$`)
)

// NewMessageID generates a message ID with the "msg_" prefix followed by
// 24 cryptographically random alphanumeric characters. One message ID is
// minted per logical assistant turn and reused across every continuation
// stream belonging to that turn.
func NewMessageID() string {
	return messageIDPrefix + randomAlphanumeric(idLength)
}

// NewCallID generates a call ID with the "call_" prefix. Used when a
// locally originated call (e.g. a rejected tool) needs an identifier;
// model-originated calls carry their own IDs.
func NewCallID() string {
	return callIDPrefix + randomAlphanumeric(idLength)
}

// ValidateMessageID checks whether the given string is a well-formed
// message ID.
func ValidateMessageID(id string) bool {
	return messageIDPattern.MatchString(id)
}

// ValidateCallID checks whether the given string is a well-formed call ID.
func ValidateCallID(id string) bool {
	return callIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
