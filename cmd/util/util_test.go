package util

import (
	"bytes"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strings"
	"testing"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line %q longer than %d", line, Wrap)
		}
	}
	if got := WrapString("  short   text "); got != "short text" {
		t.Errorf("got %q", got)
	}
}

// newClientCommand parses args with the client flags and binds them to a fresh viper
func newClientCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	cmd := &cobra.Command{Use: "test"}
	SetupClientFlags(cmd)
	cmd.Flags().AddFlagSet(cmd.PersistentFlags())
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := BindCommandFlags(cmd); err != nil {
		t.Fatalf("BindCommandFlags failed: %v", err)
	}
	return cmd
}

func TestConnectionString(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
		want string
	}{
		{"nothing set", nil, nil, ""},
		{"defaults are not added", []string{"--connection-string", "Endpoint=a:1;MaximumExponentialRetries=3"}, nil, "Endpoint=a:1;MaximumExponentialRetries=3"},
		{"flags override", []string{"--connection-string", "Endpoint=a:1", "--endpoints", "b:2", "--collection", "Other"}, nil, "Endpoint=a:1;Collection=Other;Endpoint=b:2"},
		{"environment counts as set", nil, map[string]string{"DAUDIT_REPORT_FAILURE_MODE": "closed"}, "ReportFailureMode=closed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cmd := newClientCommand(t, tt.args...)
			InitConfig()

			if got := ConnectionString(cmd); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSettings(t *testing.T) {
	cmd := newClientCommand(t, "--connection-string", "MaximumExponentialRetries=7;RequestTimeoutInSeconds=12")
	s := Settings(cmd)
	if s.MaximumExponentialRetries() != 7 || s.RequestTimeoutInSeconds() != 12 {
		t.Errorf("settings = %s", s.String())
	}
}

func TestPrint(t *testing.T) {
	v := struct {
		Subject string `json:"subject" yaml:"subject"`
		Count   int    `json:"count" yaml:"count"`
	}{"logged in", 2}

	tests := []struct {
		format  string
		want    string
		wantErr bool
	}{
		{"json", "{\n  \"subject\": \"logged in\",\n  \"count\": 2\n}\n", false},
		{"yaml", "subject: logged in\ncount: 2\n", false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)
			viper.Set("output", tt.format)

			var buf bytes.Buffer
			err := Print(&buf, v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Print error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
