package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"sigbridge/internal/config"
	"sigbridge/internal/gateway"
	"sigbridge/internal/signalapi"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your sigbridge installation",
		Long: `Verifies that sigbridge's configuration, gateway connectivity, and
attachment storage are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("sigbridge Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				failed++
				fmt.Printf("\nRun 'sigbridge init' to create a default configuration.\n")
				return nil
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return nil
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Accounts
			enabled := 0
			for _, acct := range cfg.Accounts {
				if acct.Enabled {
					enabled++
					printPass("Account: "+acct.ID, acct.PhoneNumber)
					passed++
				} else {
					printWarn("Account: "+acct.ID, "disabled")
					warned++
				}
			}
			if enabled == 0 {
				printFail("Accounts", "no accounts enabled")
				failed++
			}

			// 4. Gateway reachable
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			apiClient := signalapi.NewClient(signalapi.ClientConfig{
				APIURL: cfg.Gateway.APIURL,
				Logger: logger,
			})
			if err := apiClient.Health(ctx); err != nil {
				printFail("Gateway", fmt.Sprintf("%s: %v", cfg.Gateway.APIURL, err))
				failed++
			} else {
				printPass("Gateway", cfg.Gateway.APIURL)
				passed++
			}

			// 5. Receive URLs derive cleanly
			for _, acct := range cfg.Accounts {
				if !acct.Enabled {
					continue
				}
				printPass("Receive URL: "+acct.ID, gateway.ReceiveURL(cfg.Gateway.APIURL, acct.PhoneNumber))
				passed++
			}

			// 6. Attachments directory writable
			if err := checkWritableDir(cfg.Attachments.Dir); err != nil {
				printFail("Attachments dir", err.Error())
				failed++
			} else {
				printPass("Attachments dir", cfg.Attachments.Dir)
				passed++
			}

			// 7. Status server port
			if cfg.Web.Enabled {
				if err := checkPort(cfg.Web.Host, cfg.Web.Port); err != nil {
					printWarn("Status port", fmt.Sprintf("port %d may be in use: %v", cfg.Web.Port, err))
					warned++
				} else {
					printPass("Status port", fmt.Sprintf("%s:%d available", cfg.Web.Host, cfg.Web.Port))
					passed++
				}
			}

			// 8. NATS configured
			if cfg.Nats.Enabled {
				printPass("NATS sink", fmt.Sprintf("%s -> %s", cfg.Nats.URL, cfg.Nats.Subject))
				passed++
			}

			// 9. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running sigbridge.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nsigbridge should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! sigbridge is ready to run.\n")
			}
			return nil
		},
	}
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create: %w", err)
	}
	probe := filepath.Join(dir, ".doctor_probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	os.Remove(probe)
	return nil
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
