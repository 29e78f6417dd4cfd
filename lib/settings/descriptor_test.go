package settings

import (
	"reflect"
	"testing"
)

func TestParseDescriptor(t *testing.T) {
	d := ParseDescriptor(` Endpoint = http://localhost:8080 ;Transport=http;;Database="Annotations"; broken ;collection='EventsData'`)

	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{"endpoint", "http://localhost:8080", true},
		{"ENDPOINT", "http://localhost:8080", true},
		{"Transport", "http", true},
		{"database", "Annotations", true},
		{"Collection", "EventsData", true},
		{"broken", "", false},
		{"missing", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := d.Get(tt.key)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Get(%q) = (%q, %v), want (%q, %v)", tt.key, got, ok, tt.want, tt.ok)
			}
		})
	}

	if got := d.GetOr("serializer", "json"); got != "json" {
		t.Errorf("GetOr fallback = %q, want json", got)
	}

	wantKeys := []string{"Database", "Endpoint", "Transport", "collection"}
	if got := d.Keys(); !reflect.DeepEqual(got, wantKeys) {
		t.Errorf("Keys() = %v, want %v", got, wantKeys)
	}
}

func TestFromKeyValueSource(t *testing.T) {
	s := FromKeyValueSource(map[string]string{
		"maxrequestspertcpconnection":    "50",
		"MAXIMUMEXPONENTIALRETRIES":      "7",
		"ExponentialRetryInMilliseconds": "3",
		"PortMode":                       "PrivatePortPool",
		"MaxIdleTimeoutMinutes":          "5",   // rejected by the setter
		"RequestTimeoutInSeconds":        "abc", // not coercible
		"MaximumExponentialRetriesX":     "1",   // unknown key
		"Endpoint":                       "http://localhost:8080",
	})

	if got := s.MaxRequestsPerTcpConnection(); got != 50 {
		t.Errorf("MaxRequestsPerTcpConnection = %d, want 50", got)
	}
	if got := s.MaximumExponentialRetries(); got != 7 {
		t.Errorf("MaximumExponentialRetries = %d, want 7", got)
	}
	if got := s.ExponentialRetryInMilliseconds(); got != 3 {
		t.Errorf("ExponentialRetryInMilliseconds = %d, want 3", got)
	}
	if got := s.PortMode(); got != PrivatePortPool {
		t.Errorf("PortMode = %v, want PrivatePortPool", got)
	}
	if got := s.MaxIdleTimeoutMinutes(); got != 10 {
		t.Errorf("MaxIdleTimeoutMinutes = %d, want default 10", got)
	}
	if got := s.RequestTimeoutInSeconds(); got != 300 {
		t.Errorf("RequestTimeoutInSeconds = %d, want default 300", got)
	}
}

func TestFromKeyValueSourceRetriesOutOfRange(t *testing.T) {
	s := FromKeyValueSource(map[string]string{"MaximumExponentialRetries": "300"})
	if got := s.MaximumExponentialRetries(); got != 5 {
		t.Errorf("MaximumExponentialRetries = %d, want default 5", got)
	}
}

func TestFromDescriptor(t *testing.T) {
	d := ParseDescriptor("Endpoint=localhost:9000;MaxRequestsPerTcpConnection=3;MaxTcpConnectionsPerEndpoint=32;PortMode=1")
	s := FromDescriptor(d)

	if got := s.MaxRequestsPerTcpConnection(); got != 30 {
		t.Errorf("MaxRequestsPerTcpConnection = %d, want 30 (3 is rejected)", got)
	}
	if got := s.MaxTcpConnectionsPerEndpoint(); got != 32 {
		t.Errorf("MaxTcpConnectionsPerEndpoint = %d, want 32", got)
	}
	if got := s.PortMode(); got != PrivatePortPool {
		t.Errorf("PortMode = %v, want PrivatePortPool", got)
	}
}

func TestIsSettingsKey(t *testing.T) {
	if !IsSettingsKey("maxRequestsPerTcpConnection") {
		t.Error("expected maxRequestsPerTcpConnection to be recognised")
	}
	if IsSettingsKey("Endpoint") {
		t.Error("Endpoint is not a settings key")
	}
}
