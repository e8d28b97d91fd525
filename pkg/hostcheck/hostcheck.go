// Package hostcheck decides whether a hostname is plausible as a fediverse instance.
package hostcheck

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/codeGROOVE-dev/fediscan/pkg/fedid"
)

// Mode selects how much corroboration a host needs.
type Mode int

const (
	// Strict requires a branding keyword in the host or a positive oracle answer.
	Strict Mode = iota
	// Lax accepts any host that is not forbidden. Used when the user explicitly
	// wrote an identity, e.g. "@alice@example.social".
	Lax
)

func (m Mode) String() string {
	if m == Lax {
		return "lax"
	}
	return "strict"
}

// Oracle reports whether a host is known to be a fediverse instance.
// Implementations may record unknown hosts as a side effect. It is asked about
// every host that is not forbidden, in both modes.
type Oracle interface {
	KnownHost(host string) (bool, error)
}

// OracleFunc adapts a plain predicate to Oracle.
type OracleFunc func(host string) bool

// KnownHost implements Oracle.
func (f OracleFunc) KnownHost(host string) (bool, error) {
	return f(host), nil
}

// Permissive is an oracle that knows every host.
var Permissive = OracleFunc(func(string) bool { return true })

// Validator applies the host rules. The zero value is usable and has no oracle.
type Validator struct {
	oracle Oracle
	logger *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// New creates a Validator. A nil oracle answers false for every host.
func New(oracle Oracle, opts ...Option) *Validator {
	v := &Validator{oracle: oracle, logger: slog.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate reports whether host passes the rules for mode.
func (v *Validator) Validate(host string, mode Mode) bool {
	h := strings.ToLower(host)
	if h == "" || IsForbidden(h) {
		return false
	}
	// Every allowed host is shown to the oracle, which may record it, even when
	// the mode or a keyword decides without it.
	known := v.known(h)
	if mode == Lax {
		return true
	}
	if MatchesKeyword(h) {
		return true
	}
	return known
}

// MakeIdentity returns an identity if local is a valid local part and host
// passes validation for mode, or nil otherwise. Trailing dots are dropped from
// host, so "example.social." and "example.social" name the same instance.
func (v *Validator) MakeIdentity(local, host, original string, mode Mode) *fedid.Identity {
	if !fedid.ValidLocal(local) {
		return nil
	}
	host = strings.TrimRight(host, ".")
	if !v.Validate(host, mode) {
		return nil
	}
	return fedid.New(local, host, original)
}

// known consults the oracle. Errors and panics count as "not known".
func (v *Validator) known(host string) (ok bool) {
	if v == nil || v.oracle == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			v.log().Debug("host oracle panicked", "host", host, "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	known, err := v.oracle.KnownHost(host)
	if err != nil {
		v.log().Debug("host oracle failed", "host", host, "error", err)
		return false
	}
	return known
}

func (v *Validator) log() *slog.Logger {
	if v.logger == nil {
		return slog.Default()
	}
	return v.logger
}
