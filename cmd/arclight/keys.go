package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/arclight-ai/arclight/pkg/config"
	"github.com/arclight-ai/arclight/pkg/models"
	"github.com/arclight-ai/arclight/pkg/secrets"
)

func newKeysCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage sealed provider credentials",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "arclight.yaml", "path to config file")

	setCmd := &cobra.Command{
		Use:   "set <provider> <api-key>",
		Short: "Seal and store a credential",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, _ := cmd.Flags().GetString("scope")
			cfg, store, err := openKeyStore(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			sealed, err := secrets.Seal(args[1], cfg.Security.EncryptionSecret)
			if err != nil {
				return fmt.Errorf("seal credential: %w", err)
			}
			if err := store.Put(context.Background(), scope, args[0], sealed); err != nil {
				return err
			}
			fmt.Printf("stored credential for provider %s, scope %s\n", args[0], scope)
			return nil
		},
	}
	setCmd.Flags().String("scope", secrets.AppScope, "workspace scope (default: app-wide)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List stored credentials (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := openKeyStore(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.List(context.Background())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No credentials stored.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCOPE\tPROVIDER\tKEY\tUPDATED")
			for _, r := range records {
				preview := "(plaintext)"
				if secrets.LooksSealed(r.Sealed) {
					if key, err := secrets.Open(r.Sealed, cfg.Security.EncryptionSecret); err == nil {
						preview = models.MaskKey(key)
					} else {
						preview = "(undecryptable)"
					}
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					r.Scope, r.Provider, preview, r.UpdatedAt.Format("2006-01-02T15:04:05"))
			}
			return w.Flush()
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <provider>",
		Short: "Remove a stored credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, _ := cmd.Flags().GetString("scope")
			_, store, err := openKeyStore(configPath)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(context.Background(), scope, args[0]); err != nil {
				return err
			}
			fmt.Printf("removed credential for provider %s, scope %s\n", args[0], scope)
			return nil
		},
	}
	rmCmd.Flags().String("scope", secrets.AppScope, "workspace scope (default: app-wide)")

	cmd.AddCommand(setCmd, listCmd, rmCmd)
	return cmd
}

func openKeyStore(configPath string) (*config.Config, *secrets.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	store, err := secrets.NewStore(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}
