package settings

import (
	"fmt"
	"github.com/spf13/cast"
	"math"
	"sort"
	"strings"
)

// --------------------------------------------------------------------------
// Connection Descriptor
// --------------------------------------------------------------------------

// Descriptor is a parsed connection string of the form "Key=Value;Key=Value".
// Keys are matched case-insensitively, the original spelling is kept for diagnostics.
type Descriptor struct {
	values map[string]string // lower-case key -> value
	keys   map[string]string // lower-case key -> original key
}

// ParseDescriptor parses a connection string. Empty segments and segments without a '=' are
// skipped, surrounding whitespace and matching single or double quotes around values are removed.
// Later occurrences of a key overwrite earlier ones.
func ParseDescriptor(connectionString string) Descriptor {
	d := Descriptor{
		values: make(map[string]string),
		keys:   make(map[string]string),
	}
	for _, segment := range strings.Split(connectionString, ";") {
		key, value, found := strings.Cut(segment, "=")
		key = strings.TrimSpace(key)
		if !found || key == "" {
			continue
		}
		value = unquote(strings.TrimSpace(value))
		d.values[strings.ToLower(key)] = value
		d.keys[strings.ToLower(key)] = key
	}
	return d
}

// Get returns the value for a key (case-insensitive)
func (d Descriptor) Get(key string) (string, bool) {
	v, ok := d.values[strings.ToLower(key)]
	return v, ok
}

// GetOr returns the value for a key or the fallback when the key is missing or empty
func (d Descriptor) GetOr(key, fallback string) string {
	if v, ok := d.Get(key); ok && v != "" {
		return v
	}
	return fallback
}

// Keys returns the original spelling of all keys, sorted
func (d Descriptor) Keys() []string {
	keys := make([]string, 0, len(d.keys))
	for _, k := range d.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns a copy of the key-value pairs using the original key spelling
func (d Descriptor) Map() map[string]string {
	m := make(map[string]string, len(d.values))
	for lower, v := range d.values {
		m[d.keys[lower]] = v
	}
	return m
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// --------------------------------------------------------------------------
// Settings from a key-value source
// --------------------------------------------------------------------------

// fieldSetter coerces a raw string and assigns it through the validated setter
type fieldSetter func(s *ThrottleSettings, raw string) error

// fieldSetters is the closed set of recognised keys (lower-case)
var fieldSetters = map[string]fieldSetter{
	"exponentialretryinmilliseconds": intSetter((*ThrottleSettings).SetExponentialRetryInMilliseconds),
	"maximumexponentialretries": func(s *ThrottleSettings, raw string) error {
		v, err := cast.ToIntE(raw)
		if err != nil {
			return err
		}
		if v < 0 || v > math.MaxUint8 {
			return fmt.Errorf("%d out of range [0, %d]", v, math.MaxUint8)
		}
		s.SetMaximumExponentialRetries(uint8(v))
		return nil
	},
	"randomizedminthresholdinmilliseconds": intSetter((*ThrottleSettings).SetRandomizedMinThresholdInMilliseconds),
	"randomizedmaxthresholdinmilliseconds": intSetter((*ThrottleSettings).SetRandomizedMaxThresholdInMilliseconds),
	"requesttimeoutinseconds":              intSetter((*ThrottleSettings).SetRequestTimeoutInSeconds),
	"maxidletimeoutminutes":                intSetter((*ThrottleSettings).SetMaxIdleTimeoutMinutes),
	"maxrequestspertcpconnection":          intSetter((*ThrottleSettings).SetMaxRequestsPerTcpConnection),
	"opentcpconnectiontimeoutsec":          intSetter((*ThrottleSettings).SetOpenTcpConnectionTimeoutSec),
	"maxtcpconnectionsperendpoint":         intSetter((*ThrottleSettings).SetMaxTcpConnectionsPerEndpoint),
	"portmode": func(s *ThrottleSettings, raw string) error {
		mode, err := ParsePortReuseMode(raw)
		if err != nil {
			return err
		}
		s.SetPortMode(mode)
		return nil
	},
}

func intSetter(set func(*ThrottleSettings, int)) fieldSetter {
	return func(s *ThrottleSettings, raw string) error {
		v, err := cast.ToIntE(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		set(s, v)
		return nil
	}
}

// ParsePortReuseMode accepts either the numeric value or the name of a mode (case-insensitive).
// Unknown numbers are returned as-is and rejected later by the setter.
func ParsePortReuseMode(raw string) (PortReuseMode, error) {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "reuseunicastport":
		return ReuseUnicastPort, nil
	case "privateportpool":
		return PrivatePortPool, nil
	}
	v, err := cast.ToIntE(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid port reuse mode %q", raw)
	}
	return PortReuseMode(v), nil
}

// IsSettingsKey reports whether key (case-insensitive) names a ThrottleSettings field
func IsSettingsKey(key string) bool {
	_, ok := fieldSetters[strings.ToLower(key)]
	return ok
}

// FromKeyValueSource starts from the defaults and applies every recognised key of kv.
// Unknown keys are ignored. Values that can not be coerced are logged and skipped,
// the field keeps its default. No error is ever returned.
func FromKeyValueSource(kv map[string]string) ThrottleSettings {
	s := New()

	// sort the keys so overrides are applied (and logged) in a stable order
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		set, ok := fieldSetters[strings.ToLower(key)]
		if !ok {
			continue
		}
		if err := set(&s, kv[key]); err != nil {
			log.Warningf("Unable to assign %s = %s : %v", key, kv[key], err)
			continue
		}
		log.Debugf("Assigned value for %s : %s", key, kv[key])
	}

	return s
}

// FromDescriptor is FromKeyValueSource for a parsed connection string
func FromDescriptor(d Descriptor) ThrottleSettings {
	return FromKeyValueSource(d.Map())
}
