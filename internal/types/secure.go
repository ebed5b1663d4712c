package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type for sensitive configuration values. String()
// and MarshalJSON() return a redacted placeholder, so a secret cannot leak
// through fmt verbs, structured logs, or serialized config dumps.
//
// Unmask() returns the raw value for the few places that genuinely need it,
// such as Authorization headers and connection strings.
type SecretString string

// String returns the redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string {
	return string(s)
}
