package access

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickyhof/QueryGate/config"
	"github.com/nickyhof/QueryGate/core"
)

func newPolicy(t *testing.T, settings map[string][]string) *Policy {
	t.Helper()
	cfg := config.New()
	for key, vals := range settings {
		require.NoError(t, cfg.Set(key, vals...))
	}
	p, err := NewPolicy(cfg)
	require.NoError(t, err)
	return p
}

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestOpenPolicy(t *testing.T) {
	p := newPolicy(t, nil)
	assert.True(t, p.Open())
	assert.Equal(t, core.AdminLevel, p.Level("1.2.3.4", "", "1000"))
	assert.True(t, p.Authorize(core.AdminLevel, "", "", "1000"))
}

func TestTiersByIP(t *testing.T) {
	p := newPolicy(t, map[string][]string{
		config.AdminIPs: {"127.0.0.1"},
		config.WriteIPs: {"10.0.0.0/8"},
		config.ReadIPs:  {"192.168.1.5"},
	})
	assert.False(t, p.Open())

	tests := []struct {
		ip    string
		level core.Level
	}{
		{"127.0.0.1", core.AdminLevel},
		{"::ffff:127.0.0.1", core.AdminLevel},
		{"10.20.30.40", core.WriteLevel},
		{"192.168.1.5", core.ReadLevel},
		{"192.168.1.6", core.NoAccess},
		{"", core.NoAccess},
		{"garbage", core.NoAccess},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.level, p.Level(tt.ip, "", "1000"), tt.ip)
	}

	assert.True(t, p.Authorize(core.ReadLevel, "127.0.0.1", "", "1000"))
	assert.True(t, p.Authorize(core.WriteLevel, "10.1.1.1", "", "1000"))
	assert.False(t, p.Authorize(core.AdminLevel, "10.1.1.1", "", "1000"))
	assert.False(t, p.Authorize(core.WriteLevel, "192.168.1.5", "", "1000"))
	assert.False(t, p.Authorize(core.NoAccess, "127.0.0.1", "", "1000"))
}

func TestTiersByToken(t *testing.T) {
	p := newPolicy(t, map[string][]string{
		config.AdminTokens: {"root"},
		config.ReadTokens:  {"guest"},
	})
	assert.Equal(t, core.AdminLevel, p.Level("", "root", "1"))
	assert.Equal(t, core.ReadLevel, p.Level("", "guest", "1"))
	assert.Equal(t, core.NoAccess, p.Level("", "other", "1"))
	assert.Equal(t, core.NoAccess, p.Level("", "", "1"))
}

func TestBadNetwork(t *testing.T) {
	cfg := config.New()
	require.NoError(t, cfg.Set(config.ReadIPs, "10.0.0.0/99"))
	_, err := NewPolicy(cfg)
	assert.Error(t, err)
}

func TestDatabaseList(t *testing.T) {
	p := newPolicy(t, map[string][]string{
		config.AdminIPs: {"127.0.0.1"},
		config.WriteIPs: {"10.0.0.1"},
		config.Dbases:   {"1000", "2000"},
	})
	assert.True(t, p.Authorize(core.WriteLevel, "10.0.0.1", "", "2000"))
	assert.False(t, p.Authorize(core.WriteLevel, "10.0.0.1", "", "3000"))
	// admin operations are not limited by the list
	assert.True(t, p.Authorize(core.AdminLevel, "127.0.0.1", "", "3000"))

	assert.NoError(t, p.Check(core.WriteLevel, "10.0.0.1", "", "1000"))
	assert.ErrorIs(t, p.Check(core.WriteLevel, "10.0.0.1", "", "3000"), ErrDatabaseDenied)
	assert.ErrorIs(t, p.Check(core.WriteLevel, "10.0.0.2", "", "1000"), ErrNotAuthorized)
}

func TestJWTLevel(t *testing.T) {
	p := newPolicy(t, map[string][]string{
		config.JWTSecret: {"s3cret"},
		config.JWTIssuer: {"gate"},
	})
	assert.False(t, p.Open())

	writer := sign(t, "s3cret", jwt.MapClaims{
		"iss":   "gate",
		"level": "write",
		"name":  "Alice",
		"email": "alice@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	assert.Equal(t, core.WriteLevel, p.Level("", writer, "1000"))
	assert.True(t, p.Authorize(core.WriteLevel, "", writer, "1000"))
	assert.False(t, p.Authorize(core.AdminLevel, "", writer, "1000"))
	assert.Equal(t, core.Identity{Name: "Alice", Email: "alice@example.com"},
		p.Identity("", writer, core.Identity{Name: "querygate"}))

	wrongIssuer := sign(t, "s3cret", jwt.MapClaims{"iss": "other", "level": "admin"})
	assert.Equal(t, core.NoAccess, p.Level("", wrongIssuer, "1000"))

	wrongKey := sign(t, "nope", jwt.MapClaims{"iss": "gate", "level": "admin"})
	assert.Equal(t, core.NoAccess, p.Level("", wrongKey, "1000"))

	expired := sign(t, "s3cret", jwt.MapClaims{
		"iss":   "gate",
		"level": "admin",
		"exp":   time.Now().Add(-time.Hour).Unix(),
	})
	assert.Equal(t, core.NoAccess, p.Level("", expired, "1000"))

	noLevel := sign(t, "s3cret", jwt.MapClaims{"iss": "gate"})
	assert.Equal(t, core.NoAccess, p.Level("", noLevel, "1000"))
}

func TestJWTDatabaseClaim(t *testing.T) {
	p := newPolicy(t, map[string][]string{
		config.JWTSecret: {"s3cret"},
		config.ReadIPs:   {"127.0.0.1"},
	})
	token := sign(t, "s3cret", jwt.MapClaims{"level": "admin", "dbs": []string{"7"}, "sub": "bob"})

	assert.Equal(t, core.AdminLevel, p.Level("", token, "7"))
	assert.Equal(t, core.NoAccess, p.Level("", token, "8"))
	// an ip tier still applies when the token does not cover the database
	assert.Equal(t, core.ReadLevel, p.Level("127.0.0.1", token, "8"))
	assert.Equal(t, "bob", p.Identity("", token, core.Identity{}).Name)

	assert.NoError(t, p.Check(core.AdminLevel, "", token, "7"))
	assert.ErrorIs(t, p.Check(core.WriteLevel, "", token, "8"), ErrDatabaseDenied)
	assert.ErrorIs(t, p.Check(core.WriteLevel, "", "", "7"), ErrNotAuthorized)
}

func TestIdentityFallback(t *testing.T) {
	p := newPolicy(t, nil)
	fallback := core.Identity{Name: "querygate", Email: "querygate@localhost"}
	assert.Equal(t, fallback, p.Identity("", "", fallback))
	assert.Equal(t, core.Identity{Name: "querygate", Email: "10.0.0.1"}, p.Identity("10.0.0.1", "", fallback))
}
