package realtime

import (
	"errors"
	"fmt"

	"github.com/CyberTechArmor/NEON-sub002/pkg/errcode"
	"github.com/CyberTechArmor/NEON-sub002/pkg/protocol"
)

var (
	ErrNotConnected     = errors.New("realtime session not connected")
	ErrAlreadyConnected = errors.New("realtime session already connected")
	ErrClosed           = errors.New("realtime session closed")
	ErrNotClientEvent   = errors.New("event cannot be sent by a client")
	ErrNotRetryable     = errors.New("message is still awaiting its acknowledgment")
	ErrUnknownTempId    = errors.New("unknown temp id")
	// ErrRefused is a handshake the server declined for a reason other than
	// the token, such as load. It is retried like a dial failure.
	ErrRefused = errors.New("realtime handshake refused")
)

// IsAuthError reports whether err means the token was refused. The caller
// must obtain a fresh token before connecting again.
func IsAuthError(err error) bool {
	return errors.Is(err, errcode.ErrAuth)
}

// refusal classifies a failed auth ack. Auth codes, and replies without a
// code, mean the token itself was refused.
func refusal(ack *protocol.AuthAck) error {
	if ack.Code == 0 || ack.Code/1000 == errcode.ErrAuth.Code/1000 {
		msg := ack.Error
		if msg == "" {
			msg = errcode.ErrAuth.Msg
		}
		return errcode.ErrAuth.WithMsg(msg)
	}
	msg := ack.Error
	if msg == "" {
		msg = "refused"
	}
	return fmt.Errorf("%w: %w", ErrRefused, errcode.New(ack.Code, msg))
}
