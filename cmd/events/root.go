package events

import (
	"fmt"
	"github.com/ValentinKolb/dAudit/cmd/util"
	"github.com/ValentinKolb/dAudit/lib/events"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"time"
)

var (
	client *events.Events

	// EventCommands represents the events command group
	EventCommands = &cobra.Command{
		Use:                "events",
		Short:              "Save and query audit events",
		PersistentPreRunE:  setupEventsClient,
		PersistentPostRunE: closeEventsClient,
	}
)

func init() {
	util.SetupClientFlags(EventCommands)

	EventCommands.AddCommand(saveCmd)
	EventCommands.AddCommand(getCmd)
	EventCommands.AddCommand(queryCmd)
	EventCommands.AddCommand(auditCmd)
	EventCommands.AddCommand(loginsCmd)
	EventCommands.AddCommand(perfTestCmd)
}

// setupEventsClient connects to the store described by the connection string and flags
func setupEventsClient(cmd *cobra.Command, _ []string) error {
	var err error
	client, err = events.New(util.ConnectionString(cmd))
	return err
}

func closeEventsClient(_ *cobra.Command, _ []string) error {
	return events.DefaultConnections.Close()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// addRangeFlags adds the --from and --to flags
func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().String("from", "", util.WrapString("Only events created at or after this time (RFC 3339 or YYYY-MM-DD)"))
	cmd.Flags().String("to", "", util.WrapString("Only events created at or before this time (RFC 3339 or YYYY-MM-DD)"))
}

// timeRange parses the --from and --to flags, unset flags are nil
func timeRange() (from, to *time.Time, err error) {
	if from, err = optionalTime("from"); err != nil {
		return nil, nil, err
	}
	if to, err = optionalTime("to"); err != nil {
		return nil, nil, err
	}
	return from, to, nil
}

func optionalTime(flag string) (*time.Time, error) {
	raw := viper.GetString(flag)
	if raw == "" {
		return nil, nil
	}
	t, err := cast.ToTimeE(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", flag, err)
	}
	t = t.UTC()
	return &t, nil
}

// optionalInt returns the value of an int flag or nil if it was not set
func optionalInt(cmd *cobra.Command, flag string) *int {
	if !util.IsExplicit(cmd, flag) {
		return nil
	}
	v := viper.GetInt(flag)
	return &v
}
