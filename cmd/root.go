package cmd

import (
	"fmt"
	"github.com/ValentinKolb/dAudit/cmd/events"
	"github.com/ValentinKolb/dAudit/cmd/serve"
	"github.com/ValentinKolb/dAudit/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "daudit",
		Short: "resilient event and audit log client",
		Long: fmt.Sprintf(`dAudit (v%s)

Records audit events in a partitioned, rate-limited document store and
answers the audit and login reports built on them. Throttled requests are
retried with exponential backoff and jitter.`, Version),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := util.BindCommandFlags(cmd); err != nil {
				return err
			}
			return util.InitLogging()
		},
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dAudit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dAudit v%s\n", Version)
		},
	}
	settingsCmd = &cobra.Command{
		Use:   "settings",
		Short: "Print the throttle settings parsed from the connection string",
		Long: `Print the throttle settings parsed from the connection string. Keys that are
missing, not coercible or out of range keep their defaults (see the log for
rejected values).`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("connection string: %q\n", util.ConnectionString(cmd))
			fmt.Print(util.Settings(cmd).String())
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	// the root hook binds the flags and sets up logging before the hooks of the command groups
	cobra.EnableTraverseRunHooks = true

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(events.EventCommands)
	RootCmd.AddCommand(settingsCmd)
	RootCmd.AddCommand(versionCmd)

	util.SetupClientFlags(settingsCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("serializer to use (binary, json, gob), defaults to binary"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "", util.WrapString("transport to use (tcp, unix, http, local), defaults to tcp for the server and to local (without endpoints) or tcp for clients"))
	key = "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
