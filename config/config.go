// Package config loads the QueryGate configuration file.
//
// Every key maps to an ordered list of string values. Files are read with
// viper; the format follows the file extension, and files without a known
// extension are read as "key = value, value" properties.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	MaxConfigBytes  = 10000000
	MaxConfigValues = 1000000
)

const (
	DefaultDbase       = "default_dbase"
	DefaultDbaseSize   = "default_dbase_size"
	MaxDbaseSize       = "max_dbase_size"
	Dbases             = "dbases"
	AdminIPs           = "admin_ips"
	WriteIPs           = "write_ips"
	ReadIPs            = "read_ips"
	AdminTokens        = "admin_tokens"
	WriteTokens        = "write_tokens"
	ReadTokens         = "read_tokens"
	KeyFile            = "key_file"
	CertFile           = "cert_file"
	JWTSecret          = "jwt_secret"
	JWTIssuer          = "jwt_issuer"
	BaseDir            = "base_dir"
	S3Endpoint         = "s3_endpoint"
	S3Region           = "s3_region"
	S3AccessKey        = "s3_access_key"
	S3SecretKey        = "s3_secret_key"
	AllowUnknownParams = "allow_unknown_params"
	LockTimeout        = "lock_timeout"
)

var knownKeys = []string{
	DefaultDbase, DefaultDbaseSize, MaxDbaseSize, Dbases,
	AdminIPs, WriteIPs, ReadIPs, AdminTokens, WriteTokens, ReadTokens,
	KeyFile, CertFile, JWTSecret, JWTIssuer, BaseDir,
	S3Endpoint, S3Region, S3AccessKey, S3SecretKey,
	AllowUnknownParams, LockTimeout,
}

var (
	ErrUnknownKey   = errors.New("unknown key in configuration file")
	ErrTooLarge     = errors.New("configuration file too large")
	ErrTooManyVals  = errors.New("too many configuration values")
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Config is an immutable set of configuration values once loaded.
type Config struct {
	values map[string][]string
	count  int
	path   string
}

func New() *Config {
	return &Config{values: make(map[string][]string)}
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open configuration file %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("configuration file %s is a directory", path)
	}
	if info.Size() > MaxConfigBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if !slices.Contains(viper.SupportedExts, ext) {
		v.SetConfigType("properties")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("cannot read configuration file %s: %w", path, err)
	}

	cfg := New()
	cfg.path = path
	for _, key := range v.AllKeys() {
		if err := cfg.Set(key, toStrings(v.Get(key))...); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// toStrings flattens a decoded value into configuration values. Strings
// are split on commas and whitespace.
func toStrings(raw any) []string {
	var out []string
	switch val := raw.(type) {
	case nil:
	case string:
		out = append(out, splitValues(val)...)
	case []any:
		for _, item := range val {
			out = append(out, toStrings(item)...)
		}
	case []string:
		for _, item := range val {
			out = append(out, splitValues(item)...)
		}
	default:
		out = append(out, fmt.Sprint(val))
	}
	return out
}

func splitValues(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// Set replaces the values of key.
func (c *Config) Set(key string, vals ...string) error {
	key = strings.ToLower(key)
	if !slices.Contains(knownKeys, key) {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	count := c.count + len(vals) - len(c.values[key])
	if count > MaxConfigValues {
		return ErrTooManyVals
	}
	c.count = count
	c.values[key] = vals
	return nil
}

// Validate checks the values of typed keys.
func (c *Config) Validate() error {
	for _, key := range []string{DefaultDbaseSize, MaxDbaseSize} {
		if _, err := c.Int(key, 0); err != nil {
			return err
		}
	}
	if _, err := c.Bool(AllowUnknownParams, false); err != nil {
		return err
	}
	if _, err := c.Duration(LockTimeout, 0); err != nil {
		return err
	}
	if len(c.Values(KeyFile)) > 0 && len(c.Values(CertFile)) == 0 {
		return fmt.Errorf("%w: %s not given for https", ErrInvalidValue, CertFile)
	}
	if len(c.Values(CertFile)) > 0 && len(c.Values(KeyFile)) == 0 {
		return fmt.Errorf("%w: %s not given for https", ErrInvalidValue, KeyFile)
	}
	return nil
}

func (c *Config) Path() string { return c.path }

func (c *Config) Values(key string) []string {
	if c == nil {
		return nil
	}
	return c.values[key]
}

// First returns the first value of key, or "".
func (c *Config) First(key string) string {
	vals := c.Values(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (c *Config) Int(key string, def int64) (int64, error) {
	s := c.First(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s = %s", ErrInvalidValue, key, s)
	}
	return n, nil
}

func (c *Config) Bool(key string, def bool) (bool, error) {
	s := c.First(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%w: %s = %s", ErrInvalidValue, key, s)
	}
	return b, nil
}

func (c *Config) Duration(key string, def time.Duration) (time.Duration, error) {
	s := c.First(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s = %s", ErrInvalidValue, key, s)
	}
	return d, nil
}

// Len returns the total number of values.
func (c *Config) Len() int { return c.count }
