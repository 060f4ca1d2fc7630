package access

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/nickyhof/QueryGate/config"
	"github.com/nickyhof/QueryGate/core"
)

var (
	ErrNotAuthorized  = errors.New("query not authorized")
	ErrDatabaseDenied = errors.New("access to database not authorized")
)

type tier struct {
	ips      map[netip.Addr]struct{}
	prefixes []netip.Prefix
	tokens   map[string]struct{}
}

func newTier(ips, tokens []string) (tier, error) {
	t := tier{ips: make(map[netip.Addr]struct{}), tokens: make(map[string]struct{})}
	for _, s := range ips {
		if strings.Contains(s, "/") {
			prefix, err := netip.ParsePrefix(s)
			if err != nil {
				return tier{}, fmt.Errorf("bad network %q: %w", s, err)
			}
			t.prefixes = append(t.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(s)
		if err != nil {
			return tier{}, fmt.Errorf("bad ip %q: %w", s, err)
		}
		t.ips[addr.Unmap()] = struct{}{}
	}
	for _, tok := range tokens {
		t.tokens[tok] = struct{}{}
	}
	return t, nil
}

func (t tier) empty() bool {
	return len(t.ips) == 0 && len(t.prefixes) == 0 && len(t.tokens) == 0
}

func (t tier) matches(ip netip.Addr, token string) bool {
	if ip.IsValid() {
		if _, ok := t.ips[ip]; ok {
			return true
		}
		for _, p := range t.prefixes {
			if p.Contains(ip) {
				return true
			}
		}
	}
	if token != "" {
		if _, ok := t.tokens[token]; ok {
			return true
		}
	}
	return false
}

// Policy is built once from configuration and is safe for concurrent use.
type Policy struct {
	admin, write, read tier
	dbases             map[string]struct{}
	jwt                *jwtVerifier
	open               bool
}

func NewPolicy(cfg *config.Config) (*Policy, error) {
	var err error
	p := &Policy{dbases: make(map[string]struct{})}
	if p.admin, err = newTier(cfg.Values(config.AdminIPs), cfg.Values(config.AdminTokens)); err != nil {
		return nil, err
	}
	if p.write, err = newTier(cfg.Values(config.WriteIPs), cfg.Values(config.WriteTokens)); err != nil {
		return nil, err
	}
	if p.read, err = newTier(cfg.Values(config.ReadIPs), cfg.Values(config.ReadTokens)); err != nil {
		return nil, err
	}
	for _, name := range cfg.Values(config.Dbases) {
		p.dbases[name] = struct{}{}
	}
	if secret := cfg.First(config.JWTSecret); secret != "" {
		p.jwt = &jwtVerifier{secret: []byte(secret), issuer: cfg.First(config.JWTIssuer)}
	}
	p.open = p.admin.empty() && p.write.empty() && p.read.empty() && p.jwt == nil
	return p, nil
}

// Open reports whether the policy grants admin access to everyone.
func (p *Policy) Open() bool {
	return p.open
}

// Level returns the highest tier the caller belongs to for database.
func (p *Policy) Level(ip, token, database string) core.Level {
	return p.level(ip, token, func(c Claims) bool { return c.allows(database) })
}

func (p *Policy) level(ip, token string, allows func(Claims) bool) core.Level {
	if p.open {
		return core.AdminLevel
	}
	addr, _ := netip.ParseAddr(ip)
	addr = addr.Unmap()

	level := core.NoAccess
	switch {
	case p.admin.matches(addr, token):
		level = core.AdminLevel
	case p.write.matches(addr, token):
		level = core.WriteLevel
	case p.read.matches(addr, token):
		level = core.ReadLevel
	}
	if level == core.AdminLevel || p.jwt == nil || token == "" {
		return level
	}

	claims, err := p.jwt.verify(token)
	if err != nil || !allows(claims) {
		return level
	}
	return max(level, claims.Level)
}

// Authorize reports whether the caller may run an operation requiring
// required against database.
func (p *Policy) Authorize(required core.Level, ip, token, database string) bool {
	return p.Check(required, ip, token, database) == nil
}

// Check is Authorize with the reason for a refusal: ErrNotAuthorized when
// the caller lacks the level for any database, ErrDatabaseDenied when only
// this database is out of reach.
func (p *Policy) Check(required core.Level, ip, token, database string) error {
	if !p.level(ip, token, func(Claims) bool { return true }).Satisfies(required) {
		return ErrNotAuthorized
	}
	if !p.Level(ip, token, database).Satisfies(required) {
		return ErrDatabaseDenied
	}
	if required != core.AdminLevel && len(p.dbases) > 0 {
		if _, ok := p.dbases[database]; !ok {
			return ErrDatabaseDenied
		}
	}
	return nil
}

// Identity returns the commit author for a caller: the JWT subject when a
// valid token names one, otherwise the caller address.
func (p *Policy) Identity(ip, token string, fallback core.Identity) core.Identity {
	if p.jwt != nil && token != "" {
		if claims, err := p.jwt.verify(token); err == nil && (claims.Name != "" || claims.Email != "") {
			return core.Identity{Name: claims.Name, Email: claims.Email}
		}
	}
	if ip == "" {
		return fallback
	}
	return core.Identity{Name: fallback.Name, Email: ip}
}
