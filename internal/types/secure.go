package types

import "log/slog"

// SecretString holds a credential that must never appear in logs or JSON.
// Reveal is the only way to read the raw value; every other formatting path
// prints a redaction marker.
type SecretString string

const redacted = "[REDACTED]"

func (s SecretString) String() string { return redacted }

func (s SecretString) GoString() string { return "types.SecretString(" + redacted + ")" }

func (s SecretString) MarshalText() ([]byte, error) { return []byte(redacted), nil }

func (s SecretString) LogValue() slog.Value { return slog.StringValue(redacted) }

// Reveal returns the underlying secret.
func (s SecretString) Reveal() string { return string(s) }

// IsSet reports whether the secret is non-empty.
func (s SecretString) IsSet() bool { return s != "" }
