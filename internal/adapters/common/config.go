package common

import (
	"sort"
	"strconv"
	"strings"

	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/util"
)

// ProviderConfig is the credential bundle of one provider. It is loaded once
// at start and treated as read-only afterwards.
type ProviderConfig map[string]string

// Get returns the trimmed value for key.
func (c ProviderConfig) Get(key string) string {
	return strings.TrimSpace(c[key])
}

// GetDefault returns the value for key or def when unset.
func (c ProviderConfig) GetDefault(key, def string) string {
	if v := c.Get(key); v != "" {
		return v
	}
	return def
}

// Bool parses key as a boolean, returning def when unset or malformed.
func (c ProviderConfig) Bool(key string, def bool) bool {
	v := c.Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// URL returns the http(s) URL under key, or def when unset. A malformed
// value is a ConfigurationError for provider.
func (c ProviderConfig) URL(provider, key, def string) (string, error) {
	v := c.Get(key)
	if v == "" {
		return def, nil
	}
	u, err := util.ValidateHTTPURL(v)
	if err != nil {
		return "", errs.Configuration(provider, "%s: %v", key, err)
	}
	return u, nil
}

// Require fails with a ConfigurationError naming every missing key.
func (c ProviderConfig) Require(provider string, keys ...string) error {
	var missing []string
	for _, key := range keys {
		if c.Get(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return errs.MissingKeys(provider, missing...)
	}
	return nil
}

// Clone returns an independent copy.
func (c ProviderConfig) Clone() ProviderConfig {
	out := make(ProviderConfig, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Keys returns the configured keys in lexical order.
func (c ProviderConfig) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
