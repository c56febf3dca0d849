package banner

import (
	"fmt"

	"huddle/pkg/config"
)

const banner = `
██╗  ██╗██╗   ██╗██████╗ ██████╗ ██╗     ███████╗
██║  ██║██║   ██║██╔══██╗██╔══██╗██║     ██╔════╝
███████║██║   ██║██║  ██║██║  ██║██║     █████╗
██╔══██║██║   ██║██║  ██║██║  ██║██║     ██╔══╝
██║  ██║╚██████╔╝██████╔╝██████╔╝███████╗███████╗
╚═╝  ╚═╝ ╚═════╝ ╚═════╝ ╚═════╝ ╚══════╝╚══════╝
`

// Print writes the startup banner with the effective runtime settings so
// an operator watching the console can verify what the process bound to.
func Print(cfg *config.Config, addr, dbPath, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("WS   /ws - realtime channel sync (join-channel, entity events, heartbeat)")
	fmt.Println("GET  /v1/channels - active channel summary")
	fmt.Println("GET  /v1/channels/{channel}/{entityType} - stored entities for a channel")
	fmt.Println("GET  /healthz | /metrics | /docs")

	fmt.Println("\n== Production? ================================================")
	if cfg != nil && cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured (terminate TLS at a fronting proxy)")
	}
	if cfg != nil && cfg.Channel.MaxUsers > 0 {
		fmt.Printf("- Channel cap: %d users\n", cfg.Channel.MaxUsers)
	} else {
		fmt.Println("- Channel cap: unlimited")
	}
	if cfg != nil && cfg.Audit.Enabled {
		fmt.Printf("- Audit log: %s\n", cfg.Audit.Dir)
	} else {
		fmt.Println("- Audit log: disabled")
	}
	if cfg != nil && cfg.Maintenance.Enabled {
		fmt.Printf("- Maintenance: enabled (cron=%s)\n", cfg.Maintenance.Cron)
	} else {
		fmt.Println("- Maintenance: disabled")
	}

	fmt.Println("\n== Logs: ======================================================")
}
