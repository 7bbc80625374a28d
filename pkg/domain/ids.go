package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "saferide/pkg/domain-errors"
)

// External identifiers (drivers, alerts) are opaque document keys assigned by
// the surrounding platform. Internal identifiers (tracking sessions, escalation
// calls) are UUIDs minted by this module. Both are distinct types so a session
// ID can never be passed where an alert ID is expected.
type (
	DriverID   string
	AlertID    string
	OperatorID string
	SessionID  string
	CallID     string
)

const maxExternalIDLength = 128

func (id DriverID) String() string   { return string(id) }
func (id AlertID) String() string    { return string(id) }
func (id OperatorID) String() string { return string(id) }
func (id SessionID) String() string  { return string(id) }
func (id CallID) String() string     { return string(id) }

func (id DriverID) IsNil() bool  { return id == "" }
func (id AlertID) IsNil() bool   { return id == "" }
func (id SessionID) IsNil() bool { return id == "" }
func (id CallID) IsNil() bool    { return id == "" }

// NewSessionID mints a tracking session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// NewCallID mints an escalation call identifier.
func NewCallID() CallID {
	return CallID(uuid.NewString())
}

func ParseDriverID(s string) (DriverID, error) {
	v, err := parseExternalID("driver ID", s)
	return DriverID(v), err
}

func ParseAlertID(s string) (AlertID, error) {
	v, err := parseExternalID("alert ID", s)
	return AlertID(v), err
}

func ParseOperatorID(s string) (OperatorID, error) {
	v, err := parseExternalID("operator ID", s)
	return OperatorID(v), err
}

func ParseSessionID(s string) (SessionID, error) {
	v, err := parseUUID("session ID", s)
	return SessionID(v), err
}

func ParseCallID(s string) (CallID, error) {
	v, err := parseUUID("call ID", s)
	return CallID(v), err
}

// parseExternalID accepts printable, non-space-padded keys of bounded length.
func parseExternalID(kind, s string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxExternalIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	if !utf8.ValidString(s) || strings.TrimSpace(s) != s {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	for _, r := range s {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) || r == '/' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
		}
	}
	return s, nil
}

func parseUUID(kind, s string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return parsed.String(), nil
}
