package serve

import (
	"context"
	"errors"
	"fmt"
	cmdUtil "github.com/ValentinKolb/dAudit/cmd/util"
	"github.com/ValentinKolb/dAudit/rpc/common"
	"github.com/ValentinKolb/dAudit/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"syscall"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dAudit document store server",
		Long:    `Start the dAudit document store server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DAUDIT_<flag> (e.g. DAUDIT_QUOTA_RU=400)`,
		Args:    cobra.NoArgs,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	key := "engine"
	ServeCmd.PersistentFlags().String(key, "memory", cmdUtil.WrapString("Storage engine (memory, pebble)"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("(pebble) Directory of the database files"))

	key = "sync-writes"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("(pebble) Sync every write to disk before acknowledging it"))

	key = "quota-ru"
	ServeCmd.PersistentFlags().Float64(key, 0, cmdUtil.WrapString("Request units per second each partition may consume before requests are throttled with status 429. 0 disables the quota"))

	key = "quota-burst"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Request units a partition may consume at once, defaults to one second of quota"))

	key = "page-size"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("Page size of queries that do not set one"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds of a single request"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 8, cmdUtil.WrapString("Requests handled concurrently per connection (tcp, unix)"))

	key = "reuse-addr"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Set SO_REUSEADDR on the listening socket"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY (tcp only)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval in seconds (tcp only)"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/daudit.sock, ...)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	switch engine := common.EngineType(viper.GetString("engine")); engine {
	case common.EngineMemory, common.EnginePebble:
		serveCmdConfig.Engine = engine
	default:
		return fmt.Errorf("invalid engine %s (expected one of: memory, pebble)", engine)
	}

	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.SyncWrites = viper.GetBool("sync-writes")
	serveCmdConfig.QuotaUnitsPerSecond = viper.GetFloat64("quota-ru")
	serveCmdConfig.QuotaBurst = viper.GetInt("quota-burst")
	serveCmdConfig.PageSize = viper.GetInt("page-size")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.WorkersPerConnection = viper.GetInt("workers")
	serveCmdConfig.ReuseAddr = viper.GetBool("reuse-addr")
	serveCmdConfig.TCPNoDelay = viper.GetBool("tcp-nodelay")
	serveCmdConfig.TCPKeepAliveSec = viper.GetInt("tcp-keepalive")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.QuotaUnitsPerSecond < 0 {
		return fmt.Errorf("quota-ru must not be negative")
	}
	if serveCmdConfig.QuotaBurst <= 0 {
		serveCmdConfig.QuotaBurst = int(serveCmdConfig.QuotaUnitsPerSecond)
	}

	return nil
}

// run starts the server and closes it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan error, 1)
	go func() { done <- serv.Serve() }()

	select {
	case err := <-done:
		return errors.Join(err, serv.Close())
	case <-ctx.Done():
		server.Logger.Infof("Shutting down")
		err := serv.Close()
		return errors.Join(err, <-done)
	}
}
