// mcp serves read-only proctoring tools over stdio for MCP clients. It reads the same database as
// the HTTP server; with DATABASE_DRIVER=memory it sees only its own empty store.
package main

import (
	"log"

	"github.com/mark3labs/mcp-go/server"

	"ihire-proctoring/backend/internal/audit"
	"ihire-proctoring/backend/internal/config"
	"ihire-proctoring/backend/internal/proctoring/mcptools"
	"ihire-proctoring/backend/internal/proctoring/service"
	"ihire-proctoring/backend/internal/store"
)

const (
	serverName    = "ihire-proctoring"
	serverVersion = "1.0.0"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseDriver == config.DriverMemory {
		log.Println("mcp: DATABASE_DRIVER=memory; tools will not see server sessions")
	}
	st, err := store.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer st.Close()

	svc := service.New(st.Sessions, service.Options{HistoryLimit: cfg.HistoryLimit})

	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))
	mcptools.Register(s, svc, audit.NewLogger(st.Audit, nil))

	if err := server.ServeStdio(s); err != nil {
		log.Printf("mcp: %v", err)
	}
}
