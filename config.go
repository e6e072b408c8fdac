package admission

import (
	"log/slog"
	"time"

	"github.com/eventgate/admission/instrumentation"
	"github.com/eventgate/admission/security"
	"github.com/eventgate/admission/store"
)

// Built-in policy names.
const (
	// PolicyStandard covers ordinary API traffic.
	PolicyStandard = "standard"

	// PolicyWebhook covers provider webhook deliveries. Denials under this
	// policy raise a critical audit alert.
	PolicyWebhook = "webhook"

	// PolicyOAuth covers the OAuth start/callback pair, which is both cheap
	// to abuse and a credential surface.
	PolicyOAuth = "oauth"
)

// Brute force guard defaults.
const (
	DefaultMaxFailures = 5
	DefaultLockout     = 15 * time.Minute
	DefaultResetWindow = time.Hour
)

// Policy is the rate limit configuration for one named policy.
type Policy struct {
	// MaxRequests is the sliding-window limit per client key.
	MaxRequests int

	// Window is the sliding-window length.
	Window time.Duration

	// BurstRate and BurstCapacity, when both positive, add a token-bucket
	// check on top of the window to smooth short spikes. Rate is tokens
	// per second.
	BurstRate     float64
	BurstCapacity float64
}

// DefaultPolicies returns the built-in policy set.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyStandard: {MaxRequests: 100, Window: 15 * time.Minute},
		PolicyWebhook:  {MaxRequests: 1000, Window: time.Minute, BurstRate: 50, BurstCapacity: 100},
		PolicyOAuth:    {MaxRequests: 10, Window: 15 * time.Minute},
	}
}

// Config configures an Admission façade. Store is required; everything else
// has a sensible default.
type Config struct {
	// Policies maps policy names to their limits. Nil means
	// DefaultPolicies().
	Policies map[string]Policy

	// Store backs all limiter state.
	Store store.Store

	// Logger receives warnings and denial logs. Nil means slog.Default().
	Logger *slog.Logger

	// Auditor receives security events. Optional.
	Auditor *security.Auditor

	// Instrumentation records metrics. Optional.
	Instrumentation *instrumentation.Instrumentation

	// MaxFailures, Lockout and ResetWindow configure the brute force
	// guard. Zero values take the defaults above.
	MaxFailures int
	Lockout     time.Duration
	ResetWindow time.Duration

	// Clock overrides the time source. Used by tests.
	Clock func() time.Time
}

func (c *Config) applyDefaults() {
	if c.Policies == nil {
		c.Policies = DefaultPolicies()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}
	if c.Lockout <= 0 {
		c.Lockout = DefaultLockout
	}
	if c.ResetWindow <= 0 {
		c.ResetWindow = DefaultResetWindow
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}
