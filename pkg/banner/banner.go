package banner

import (
	"fmt"

	"hearth/pkg/config"
)

const banner = `
██╗  ██╗███████╗ █████╗ ██████╗ ████████╗██╗  ██╗
██║  ██║██╔════╝██╔══██╗██╔══██╗╚══██╔══╝██║  ██║
███████║█████╗  ███████║██████╔╝   ██║   ███████║
██╔══██║██╔══╝  ██╔══██║██╔══██╗   ██║   ██╔══██║
██║  ██║███████╗██║  ██║██║  ██║   ██║   ██║  ██║
╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝   ╚═╝  ╚═╝
`

// PrintWithEff prints the startup banner using an EffectiveConfigResult,
// plus a quick production checklist (keys, TLS, fast listener, reconcile).
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/reactions?post=p1' -d '{\"user_id\":\"u1\",\"kind\":\"love\"}'")
	fmt.Println("curl 'http://<host>:<port>/v1/posts/p1/comments'")
	fmt.Println("websocat 'ws://<host>:<port>/ws?user=u1&scope=fam1&topics=reactions,comments'")

	fmt.Println("\n== Production? =================================================")
	be, fe, ak := 0, 0, 0
	if eff.Config != nil {
		be = len(eff.Config.Security.APIKeys.Backend)
		fe = len(eff.Config.Security.APIKeys.Frontend)
		ak = len(eff.Config.Security.APIKeys.Admin)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}

	if eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != "" {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}

	if eff.Config != nil && eff.Config.Server.FastAddr != "" {
		fmt.Printf("- Fast mutation listener: %s\n", eff.Config.Server.FastAddr)
	} else {
		fmt.Println("- Fast mutation listener: disabled")
	}

	if eff.Config != nil && eff.Config.Reconcile.Enabled {
		cron := eff.Config.Reconcile.Cron
		if cron == "" {
			cron = "0 3 * * *"
		}
		fmt.Printf("- Reconcile: enabled (%s)\n", cron)
	} else {
		fmt.Println("- Reconcile: disabled (warmth windows will not roll on quiet days)")
	}

	if eff.Config != nil && eff.Config.Directory.SeedFile != "" {
		fmt.Printf("- Directory seed: %s\n", eff.Config.Directory.SeedFile)
	} else {
		fmt.Println("- Directory seed: not set (all access checks will deny)")
	}
	fmt.Println()
}
