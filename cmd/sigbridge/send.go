package main

import (
	"context"
	"fmt"
	"time"

	"sigbridge/internal/config"
	"sigbridge/internal/signalapi"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var (
		account     string
		group       bool
		attachments []string
	)

	cmd := &cobra.Command{
		Use:   "send [recipient] [message]",
		Short: "Send a message through the gateway",
		Long:  "Sends a text message to a phone number, or to a group id with --group. Attachments are file paths the gateway can read.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			acct, err := pickAccount(cfg, account)
			if err != nil {
				return err
			}

			client := signalapi.NewClient(signalapi.ClientConfig{
				APIURL:      cfg.Gateway.APIURL,
				PhoneNumber: acct.PhoneNumber,
				Timeout:     time.Duration(cfg.Gateway.RequestTimeoutSeconds) * time.Second,
				Logger:      logger,
			})

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			return client.Send(ctx, signalapi.SendRequest{
				Recipient:   args[0],
				Message:     args[1],
				IsGroup:     group,
				Attachments: attachments,
			})
		},
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "account id to send from (default: first enabled)")
	cmd.Flags().BoolVarP(&group, "group", "g", false, "treat recipient as a group id")
	cmd.Flags().StringSliceVar(&attachments, "attach", nil, "attachment path (repeatable)")
	return cmd
}

// pickAccount resolves the sending account: the named one, or the first
// enabled account when none is named.
func pickAccount(cfg *config.Config, id string) (*config.AccountConfig, error) {
	if id != "" {
		for i := range cfg.Accounts {
			if cfg.Accounts[i].ID == id {
				return &cfg.Accounts[i], nil
			}
		}
		return nil, fmt.Errorf("unknown account: %s", id)
	}
	for i := range cfg.Accounts {
		if cfg.Accounts[i].Enabled {
			return &cfg.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("no enabled accounts configured")
}
