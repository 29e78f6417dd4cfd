package events

import (
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/docstore"
	"github.com/ValentinKolb/dAudit/lib/docstore/engine"
	"github.com/ValentinKolb/dAudit/lib/settings"
	"github.com/ValentinKolb/dAudit/rpc/client"
	"github.com/ValentinKolb/dAudit/rpc/common"
	"github.com/ValentinKolb/dAudit/rpc/serializer"
	"github.com/ValentinKolb/dAudit/rpc/transport"
	httptransport "github.com/ValentinKolb/dAudit/rpc/transport/http"
	"github.com/ValentinKolb/dAudit/rpc/transport/tcp"
	"github.com/ValentinKolb/dAudit/rpc/transport/unix"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"io"
	"strings"
)

const (
	DefaultDatabase   = "Annotations"
	DefaultCollection = "EventsData"

	// ConnectionStringEnv is read when New is called with an empty connection string
	ConnectionStringEnv = "DAUDIT_CONNECTION_STRING"
)

// Connection string keys besides the ThrottleSettings field names
const (
	KeyEndpoint               = "Endpoint"
	KeyTransport              = "Transport"
	KeySerializer             = "Serializer"
	KeyDatabase               = "Database"
	KeyCollection             = "Collection"
	KeyConnectionsPerEndpoint = "ConnectionsPerEndpoint"
	KeyDataDir                = "DataDir"
	KeyReportFailureMode      = "ReportFailureMode"
)

// connectionString returns s, or the connection string of the environment if s is blank
func connectionString(s string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	v := viper.New()
	v.SetEnvPrefix("DAUDIT")
	_ = v.BindEnv("CONNECTION_STRING")
	return v.GetString("CONNECTION_STRING")
}

// connectionOptions are the connection related keys of a connection string
type connectionOptions struct {
	transport              string
	endpoints              []string
	serializer             string
	connectionsPerEndpoint int
	dataDir                string
	database               string
	collection             string
}

func connectionOptionsFrom(d settings.Descriptor) (connectionOptions, error) {
	o := connectionOptions{
		serializer:             strings.ToLower(d.GetOr(KeySerializer, "binary")),
		dataDir:                d.GetOr(KeyDataDir, ""),
		database:               d.GetOr(KeyDatabase, DefaultDatabase),
		collection:             d.GetOr(KeyCollection, DefaultCollection),
		connectionsPerEndpoint: 1,
	}

	for _, ep := range strings.Split(d.GetOr(KeyEndpoint, ""), ",") {
		if ep = strings.TrimSpace(ep); ep != "" {
			o.endpoints = append(o.endpoints, ep)
		}
	}

	// without an endpoint the store runs in process
	defaultTransport := "local"
	if len(o.endpoints) > 0 {
		defaultTransport = "tcp"
	}
	o.transport = strings.ToLower(d.GetOr(KeyTransport, defaultTransport))

	if raw, ok := d.Get(KeyConnectionsPerEndpoint); ok && raw != "" {
		n, err := cast.ToIntE(raw)
		if err != nil || n < 1 {
			return o, fmt.Errorf("invalid %s %q", KeyConnectionsPerEndpoint, raw)
		}
		o.connectionsPerEndpoint = n
	}

	return o, nil
}

// terminal creates the innermost handler of the pipeline
func (o connectionOptions) terminal(s settings.ThrottleSettings) (docstore.Handler, io.Closer, error) {
	if o.transport == "local" {
		store := engine.NewMemoryStore()
		if o.dataDir != "" {
			var err error
			if store, err = engine.OpenPebbleStore(o.dataDir, true); err != nil {
				return nil, nil, err
			}
		}
		log.Infof("Using in-process document store (data dir %q)", o.dataDir)
		executor := engine.NewExecutor(store)
		return executor, executor, nil
	}

	if len(o.endpoints) == 0 {
		return nil, nil, fmt.Errorf("the %s transport needs an %s", o.transport, KeyEndpoint)
	}

	var t transport.IRPCClientTransport
	switch o.transport {
	case "tcp":
		t = tcp.NewTCPClientTransport()
	case "unix":
		t = unix.NewUnixClientTransport()
	case "http":
		t = httptransport.NewHttpClientTransport()
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", o.transport)
	}

	var ser serializer.IRPCSerializer
	switch o.serializer {
	case "json":
		ser = serializer.NewJSONSerializer()
	case "gob":
		ser = serializer.NewGOBSerializer()
	case "binary":
		ser = serializer.NewBinarySerializer()
	default:
		return nil, nil, fmt.Errorf("unknown serializer %q", o.serializer)
	}

	config := common.NewClientConfig(o.endpoints, o.connectionsPerEndpoint, s)
	log.Debugf("Connecting to the document store:%s", config.String())

	h, err := client.NewRPCHandler(config, t, ser)
	if err != nil {
		return nil, nil, err
	}
	return h, h, nil
}
