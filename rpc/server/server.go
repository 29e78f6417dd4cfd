package server

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/dAudit/lib/docstore/engine"
	"github.com/ValentinKolb/dAudit/rpc/common"
	"github.com/ValentinKolb/dAudit/rpc/serializer"
	"github.com/ValentinKolb/dAudit/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server hosting a document store engine
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		adapter:    NewDocstoreServerAdapter(),
	}
}

type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	adapter    IRPCServerAdapter

	mu       sync.Mutex
	executor *engine.Executor
}

func (s *RPCServer) registerTransportHandler(executor *engine.Executor) {
	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	s.transport.RegisterHandler(func(req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		// Decode the request
		if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err))
		} else {
			ctx := context.Background()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			// Let the adapter handle the request
			respMsg = s.adapter.Handle(ctx, &msg, executor)
		}

		// Return result
		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			val, _ = s.serializer.Serialize(*common.NewErrorResponse(fmt.Sprintf("failed to serialize response: %s", err)))
		}
		return val
	})
}

// openStore opens the storage engine named in the configuration
func (s *RPCServer) openStore() (engine.Store, error) {
	switch s.config.Engine {
	case common.EngineMemory, "":
		return engine.NewMemoryStore(), nil
	case common.EnginePebble:
		if s.config.DataDir == "" {
			return nil, fmt.Errorf("the pebble engine needs a data directory")
		}
		return engine.OpenPebbleStore(s.config.DataDir, s.config.SyncWrites)
	default:
		return nil, fmt.Errorf("invalid engine type: %s", s.config.Engine)
	}
}

func (s *RPCServer) init() error {
	store, err := s.openStore()
	if err != nil {
		return fmt.Errorf("failed to open %s engine: %w", s.config.Engine, err)
	}

	var opts []engine.ExecutorOption
	if s.config.QuotaUnitsPerSecond > 0 {
		opts = append(opts, engine.WithQuota(s.config.QuotaUnitsPerSecond, s.config.QuotaBurst))
	}
	if s.config.PageSize > 0 {
		opts = append(opts, engine.WithPageSize(s.config.PageSize))
	}
	executor := engine.NewExecutor(store, opts...)

	s.mu.Lock()
	s.executor = executor
	s.mu.Unlock()

	s.registerTransportHandler(executor)

	Logger.Infof("dAudit store setup completed successfully")
	return nil
}

// Serve starts the RPC server
// This function will also initialize the engine and start the transport layer.
// It blocks until Close is called.
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport and closes the engine
func (s *RPCServer) Close() error {
	err := s.transport.Close()

	s.mu.Lock()
	executor := s.executor
	s.executor = nil
	s.mu.Unlock()

	if executor != nil {
		if cerr := executor.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
