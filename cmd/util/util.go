package util

import (
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/events"
	"github.com/ValentinKolb/dAudit/lib/settings"
	"github.com/ValentinKolb/dAudit/rpc/common"
	"github.com/ValentinKolb/dAudit/rpc/serializer"
	"github.com/ValentinKolb/dAudit/rpc/transport"
	"github.com/ValentinKolb/dAudit/rpc/transport/http"
	"github.com/ValentinKolb/dAudit/rpc/transport/tcp"
	"github.com/ValentinKolb/dAudit/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"io"
	"os"
	"sort"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads the env files and binds viper to the DAUDIT_ environment
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("daudit")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// clientFlags maps the client flags onto connection string keys
var clientFlags = map[string]string{
	"endpoints":           events.KeyEndpoint,
	"transport":           events.KeyTransport,
	"serializer":          events.KeySerializer,
	"database":            events.KeyDatabase,
	"collection":          events.KeyCollection,
	"conn-per-endpoint":   events.KeyConnectionsPerEndpoint,
	"data-dir":            events.KeyDataDir,
	"report-failure-mode": events.KeyReportFailureMode,
}

// SetupClientFlags adds the connection flags of the events client to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "connection-string"
	cmd.PersistentFlags().String(key, "", WrapString("Connection string of the form Key=Value;... (e.g. Endpoint=localhost:8080;MaximumExponentialRetries=5). The flags below override its keys"))

	key = "endpoints"
	cmd.PersistentFlags().String(key, "", WrapString("The address of the dAudit server. Multiple endpoints can be specified as a comma-separated list. Without an endpoint an in-process store is used"))

	key = "conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint"))

	key = "database"
	cmd.PersistentFlags().String(key, events.DefaultDatabase, WrapString("The database of the events collection"))

	key = "collection"
	cmd.PersistentFlags().String(key, events.DefaultCollection, WrapString("The events collection"))

	key = "data-dir"
	cmd.PersistentFlags().String(key, "", WrapString("Persist the in-process store in this directory (only without endpoints)"))

	key = "report-failure-mode"
	cmd.PersistentFlags().String(key, "open", WrapString("What the report queries do when the store fails: open (empty report) or closed (error)"))

	key = "output"
	cmd.PersistentFlags().StringP(key, "o", "json", WrapString("Output format (json, yaml)"))
}

// ConnectionString combines the connection string with the client flags. A flag overrides the
// key of the connection string only if it was set on the command line or in the environment,
// the defaults of unset flags are the ones events.New applies anyway.
func ConnectionString(cmd *cobra.Command) string {
	parts := []string{viper.GetString("connection-string")}
	for flag, key := range clientFlags {
		if value := viper.GetString(flag); value != "" && IsExplicit(cmd, flag) {
			parts = append(parts, fmt.Sprintf("%s=%s", key, value))
		}
	}
	sort.Strings(parts[1:])
	return strings.Trim(strings.Join(parts, ";"), ";")
}

// IsExplicit reports whether a flag was set on the command line or in the environment
func IsExplicit(cmd *cobra.Command, flag string) bool {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		return true
	}
	_, ok := os.LookupEnv("DAUDIT_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_")))
	return ok
}

// Settings parses the throttle settings of the combined connection string
func Settings(cmd *cobra.Command) settings.ThrottleSettings {
	return settings.FromDescriptor(settings.ParseDescriptor(ConnectionString(cmd)))
}

// Print writes v in the configured output format
func Print(w io.Writer, v any) error {
	switch format := viper.GetString("output"); format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("invalid output format %s", format)
	}
}

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "binary", "":
		return serializer.NewBinarySerializer(), nil
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetServerTransport creates the server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp", "":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixDefaultServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// InitLogging sets the level of all loggers from the log-level flag
func InitLogging() error {
	return common.InitLoggers(viper.GetString("log-level"))
}
