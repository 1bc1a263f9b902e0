package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hengadev/vaultkeyring"
)

func (c *cli) newListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the keys stored under the mount point",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := c.keyring.List(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(keys)
			}

			if len(keys) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No keys found.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "OWNER\tID\tTYPE\tLOADED")
			for _, k := range keys {
				keyType := k.Type
				if keyType == "" {
					keyType = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", k.Owner, k.ID, keyType, k.Materialized)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

type keyOutput struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Type  string `json:"type"`
	Data  string `json:"data"`
}

func (c *cli) newFetchCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "fetch <id> <owner>",
		Short: "Print a key's type and base64 encoded data",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := c.keyring.Fetch(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := keyOutput{
				ID:    key.ID,
				Owner: key.Owner,
				Type:  key.Type,
				Data:  base64.StdEncoding.EncodeToString(key.Data),
			}
			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", out.Type, out.Data)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func (c *cli) newStoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "store <id> <owner> <type> <base64-data>",
		Short: "Store a key, replacing any key with the same id and owner",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := base64.StdEncoding.DecodeString(args[3])
			if err != nil {
				return fmt.Errorf("key data is not valid base64: %w", err)
			}
			if err := c.keyring.Store(cmd.Context(), args[0], args[1], args[2], data); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s key %q for owner %q\n", args[2], args[0], args[1])
			return nil
		},
	}
}

func (c *cli) newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id> <owner>",
		Aliases: []string{"rm"},
		Short:   "Remove a key from Vault",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.keyring.Remove(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed key %q for owner %q\n", args[0], args[1])
			return nil
		},
	}
}

func (c *cli) newGenerateCmd() *cobra.Command {
	var (
		keyType string
		length  int
	)
	cmd := &cobra.Command{
		Use:   "generate [id] <owner>",
		Short: "Generate a random key and store it",
		Long: `Generate a random key and store it. When no id is given a random UUID is used.

AES keys are 16, 24 or 32 bytes long. SECRET keys may be 1 to 16384 bytes long.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, owner := uuid.NewString(), args[0]
			if len(args) == 2 {
				id, owner = args[0], args[1]
			}
			if err := c.keyring.Generate(cmd.Context(), id, owner, keyType, length); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d byte %s key %q for owner %q\n", length, keyType, id, owner)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyType, "type", "t", vaultkeyring.KeyTypeAES, "key type: AES or SECRET")
	cmd.Flags().IntVarP(&length, "length", "l", 32, "key length in bytes")
	return cmd
}
