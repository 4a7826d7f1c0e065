package admission

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/luminalabs/keygate/internal/identity"
)

// automationMarkers are case-insensitive substrings that mark a User-Agent
// as scripted traffic rather than a browser.
var automationMarkers = []string{
	"bot",
	"crawler",
	"spider",
	"curl",
	"wget",
	"python-requests",
	"go-http-client",
	"java/",
	"libwww",
}

type Config struct {
	MaxKeysPerIP       int           `mapstructure:"max_keys_per_ip"`
	MaxAttemptsPerHour int           `mapstructure:"max_attempts_per_hour"`
	Cooldown           time.Duration `mapstructure:"cooldown"`
	FraudThreshold     int           `mapstructure:"fraud_threshold"`
	MinPassingChecks   int           `mapstructure:"min_passing_checks"`
	FraudRetention     time.Duration `mapstructure:"fraud_retention"`
	MinUserAgentLength int           `mapstructure:"min_user_agent_length"`
	UpstreamDomain     string        `mapstructure:"-"`
	PlatformTag        string        `mapstructure:"-"`
}

// ActivityReader is the slice of the key store the heuristic consults.
type ActivityReader interface {
	RecentAttempts(ip string, window time.Duration) int
	ActiveKeyCount(ip string) int
	LastIssuedAt(ip string) (time.Time, bool)
}

// Decision is the outcome of scoring one request.
type Decision struct {
	Allowed bool
	Reason  string
	Score   int
	Passed  int
	Checks  int
	Failed  []string
}

// check is one named signal in the checklist. No single signal is
// authoritative; the decision counts how many pass.
type check struct {
	name string
	eval func(e *Engine, id identity.Identity) bool
}

var checklist = []check{
	{"ip_not_banned", (*Engine).checkNotBanned},
	{"attempt_limit", (*Engine).checkAttemptLimit},
	{"key_limit", (*Engine).checkKeyLimit},
	{"cooldown", (*Engine).checkCooldown},
	{"user_agent", (*Engine).checkUserAgent},
	{"referer", (*Engine).checkReferer},
	{"callback_params", (*Engine).checkCallbackParams},
}

// Engine scores requests against the checklist and keeps per-identity fraud
// scores. Scores age out on their own after the retention window.
type Engine struct {
	cfg      Config
	activity ActivityReader
	scores   *gocache.Cache
}

func NewEngine(cfg Config, activity ActivityReader) *Engine {
	return &Engine{
		cfg:      cfg,
		activity: activity,
		scores:   gocache.New(cfg.FraudRetention, 10*time.Minute),
	}
}

// Check evaluates the checklist and, on denial, bumps the identity's fraud
// score exactly once.
func (e *Engine) Check(id identity.Identity) Decision {
	d := e.Evaluate(id)
	if !d.Allowed {
		e.RecordViolation(id.IP)
		d.Score = e.FraudScore(id.IP)
		slog.Warn("Admission denied", "ip", id.IP, "reason", d.Reason, "score", d.Score)
	}
	return d
}

// Evaluate is the pure scoring pass: it mutates nothing and can be called
// repeatedly with the same inputs.
func (e *Engine) Evaluate(id identity.Identity) Decision {
	d := Decision{Checks: len(checklist), Score: e.FraudScore(id.IP)}
	for _, c := range checklist {
		if c.eval(e, id) {
			d.Passed++
		} else {
			d.Failed = append(d.Failed, c.name)
		}
	}

	d.Allowed = d.Passed >= e.cfg.MinPassingChecks
	if !d.Allowed {
		d.Reason = fmt.Sprintf("failed security checks (%d/%d): %s",
			d.Passed, d.Checks, strings.Join(d.Failed, ", "))
	}
	return d
}

// RecordViolation increments the identity's fraud score, creating the entry
// with the retention-window TTL on first violation.
func (e *Engine) RecordViolation(ip string) {
	if err := e.scores.Increment(ip, 1); err != nil {
		e.scores.Set(ip, 1, gocache.DefaultExpiration)
	}
}

func (e *Engine) FraudScore(ip string) int {
	v, found := e.scores.Get(ip)
	if !found {
		return 0
	}
	score, _ := v.(int)
	return score
}

func (e *Engine) Banned(ip string) bool {
	return e.FraudScore(ip) >= e.cfg.FraudThreshold
}

// BannedCount reports how many identities currently sit at or above the
// fraud threshold. Used by the stats endpoint.
func (e *Engine) BannedCount() int {
	count := 0
	for _, item := range e.scores.Items() {
		if score, ok := item.Object.(int); ok && score >= e.cfg.FraudThreshold {
			count++
		}
	}
	return count
}

func (e *Engine) checkNotBanned(id identity.Identity) bool {
	return !e.Banned(id.IP)
}

func (e *Engine) checkAttemptLimit(id identity.Identity) bool {
	return e.activity.RecentAttempts(id.IP, time.Hour) < e.cfg.MaxAttemptsPerHour
}

func (e *Engine) checkKeyLimit(id identity.Identity) bool {
	return e.activity.ActiveKeyCount(id.IP) < e.cfg.MaxKeysPerIP
}

func (e *Engine) checkCooldown(id identity.Identity) bool {
	last, ok := e.activity.LastIssuedAt(id.IP)
	if !ok {
		return true
	}
	return time.Since(last) > e.cfg.Cooldown
}

func (e *Engine) checkUserAgent(id identity.Identity) bool {
	if len(id.UserAgent) < e.cfg.MinUserAgentLength {
		return false
	}
	ua := strings.ToLower(id.UserAgent)
	for _, marker := range automationMarkers {
		if strings.Contains(ua, marker) {
			return false
		}
	}
	return true
}

// checkReferer passes for an absent Referer; browsers strip it on
// cross-origin redirects often enough that requiring it would lock out
// legitimate visitors.
func (e *Engine) checkReferer(id identity.Identity) bool {
	if id.Referer == "" {
		return true
	}
	u, err := url.Parse(id.Referer)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == e.cfg.UpstreamDomain || strings.HasSuffix(host, "."+e.cfg.UpstreamDomain)
}

func (e *Engine) checkCallbackParams(id identity.Identity) bool {
	return id.Verified && id.Platform == e.cfg.PlatformTag
}
