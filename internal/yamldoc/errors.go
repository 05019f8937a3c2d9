package yamldoc

import "fmt"

// ConfigError reports a malformed build document. Pos is zero when the
// offending location is unknown.
type ConfigError struct {
	Pos Pos
	Msg string
}

func (e *ConfigError) Error() string {
	if e.Pos.IsZero() {
		return e.Msg
	}
	return e.Pos.String() + ": " + e.Msg
}

// Errorf builds a ConfigError located at v. A nil v yields an error without
// a position.
func Errorf(v *Value, format string, args ...any) *ConfigError {
	err := &ConfigError{Msg: fmt.Sprintf(format, args...)}
	if v != nil {
		err.Pos = v.Pos
	}
	return err
}
