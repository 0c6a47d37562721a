// Package preview serves fast previews of SQL queries over a
// content-addressed JSON row store.
//
// A preview request names the tables it reads as sources (a dataset commit
// plus a table key) and carries arbitrary user SQL over those aliases. The
// packages below turn it into a bounded, parameterized query:
//
//   - filter compiles restricted filter text (age > 25 AND status = 'active')
//     into SQL fragments with positional parameters
//   - sampling composes the source CTEs, either exact or sampling rows
//     before joins, and paginates the user query
//   - cache keeps recent results in an LRU with a TTL
//   - store executes the SQL and converts results to Arrow
//   - engine ties them together and falls back from sampled to exact plans
//   - flight exposes the engine over Arrow Flight
//
// This package wires them from a YAML Config and registers the Flight
// handlers on a user-provided grpc.Server:
//
//	cfg, err := preview.LoadConfig("preview.yaml", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	db, _ := sql.Open("duckdb", cfg.Database.DSN)
//	eng, cleanup, err := preview.NewEngine(cfg, db, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanup()
//
//	config := preview.ServerConfig{Engine: eng}
//	grpcServer := grpc.NewServer(preview.ServerOptions(config)...)
//	preview.NewServer(grpcServer, config)
//	lis, _ := net.Listen("tcp", cfg.Listen)
//	grpcServer.Serve(lis)
//
// # Server Lifecycle
//
// The package registers Flight service handlers on a user-provided grpc.Server
// but does NOT manage server lifecycle (start/stop/listen). This gives users
// full control over TLS configuration via grpc.Creds() and graceful shutdown
// via grpcServer.GracefulStop().
//
// # Logging
//
// All packages log through log/slog. SQL text is only logged at Debug level.
//
// # Memory Management
//
// Arrow uses manual reference counting. Records created for DoGet are
// released after streaming.
package preview
