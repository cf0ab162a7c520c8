// Package signing owns the per-client signing configuration and the
// consumed Signer collaborator (spec §4.7, §6). The orchestrator never
// implements SigV4 itself; it only owns a defensive deep copy of the
// caller's config, since the caller's own memory (region strings,
// credential cursors) is not guaranteed to outlive the client.
package signing

import "context"

// Credentials is an opaque, reference-counted credential set. Its
// contents are never inspected by this package; it is only threaded
// through to the Signer.
type Credentials interface {
	// Retain increments the credential's reference count.
	Retain() Credentials
	// Release decrements the credential's reference count, freeing it
	// at zero.
	Release()
}

// Provider supplies Credentials and can indicate whether it has since
// refreshed them, which controls whether an ClassAuth failure is
// retryable (spec §7).
type Provider interface {
	// Fetch returns the current credentials, retained on behalf of the
	// caller.
	Fetch(ctx context.Context) (Credentials, error)
	// Refresh forces a credential refresh and reports whether the
	// credentials actually changed.
	Refresh(ctx context.Context) (refreshed bool, err error)
}

// Config is the caller-supplied signing configuration. The orchestrator
// deep-copies this once, in Cache, and never mutates the caller's copy.
type Config struct {
	Region            string
	Service           string
	SignedBodyHeader  string
	SignedBodyValue   string
	Flags             uint32
	ExpirationSeconds int64
	Credentials       Credentials
	Provider          Provider
}

// clone returns a deep copy of cfg. Slices/strings in Go are already
// copy-safe by value; the only reference types needing explicit handling
// are Credentials/Provider, which are retained rather than copied.
//
// The signed-body-value deep copy is gated on its own length, not on
// Service's, so a non-empty value is never dropped just because Service
// happens to be empty.
func (cfg Config) clone() Config {
	out := cfg
	if len(cfg.SignedBodyValue) == 0 {
		out.SignedBodyValue = ""
	}
	if cfg.Credentials != nil {
		out.Credentials = cfg.Credentials.Retain()
	}
	return out
}

// Signer is the consumed collaborator that actually performs SigV4 (or
// equivalent) signing of a prepared HTTP message (spec §6).
type Signer interface {
	// Sign mutates req's headers in place to add a valid
	// signature computed from cfg. It returns an error if signing fails,
	// which the caller classifies as ClassAuth.
	Sign(ctx context.Context, cfg *Config, req SignableRequest) error
}

// SignableRequest is the minimal surface a Signer needs from an HTTP
// request: method, URL, headers, a way to set a header, and the body's
// length. It does not expose the body's bytes.
type SignableRequest interface {
	Method() string
	URL() string
	Header() map[string][]string
	SetHeader(key, value string)
	BodyLength() int64
}
