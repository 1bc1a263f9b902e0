package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type resolveOutput struct {
	MountPoint string            `yaml:"mount_point"`
	Directory  string            `yaml:"directory,omitempty"`
	Version    string            `yaml:"kv_version"`
	Keys       int               `yaml:"keys"`
	Options    map[string]string `yaml:"options"`
}

func (c *cli) newResolveCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Show the resolved mount point and the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			point := c.keyring.MountPoint()
			metadata := c.keyring.Credentials().Metadata()

			switch output {
			case "yaml":
				out := resolveOutput{
					MountPoint: point.MountPointPath,
					Directory:  point.DirectoryPath,
					Version:    point.Version.String(),
					Keys:       len(c.keyring.Keys()),
					Options:    make(map[string]string, len(metadata)),
				}
				for _, m := range metadata {
					out.Options[m.Name] = m.Value
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(out); err != nil {
					return err
				}
				return enc.Close()
			case "text":
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintf(w, "Mount point:\t%s\n", point.MountPointPath)
				if point.DirectoryPath != "" {
					fmt.Fprintf(w, "Directory:\t%s\n", point.DirectoryPath)
				}
				fmt.Fprintf(w, "KV version:\t%s\n", point.Version)
				fmt.Fprintf(w, "Keys:\t%d\n", len(c.keyring.Keys()))
				for _, m := range metadata {
					fmt.Fprintf(w, "%s:\t%s\n", m.Name, m.Value)
				}
				return w.Flush()
			default:
				return fmt.Errorf("unknown output format %q, expected yaml or text", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: yaml or text")
	return cmd
}
