package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hengadev/vaultkeyring"
)

var errUnhealthy = errors.New("keyring is unhealthy")

func (c *cli) newHealthCmd() *cobra.Command {
	var (
		jsonOutput bool
		listen     string
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check Vault and the key listing, or serve health probes over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if listen != "" {
				return c.serveHealth(cmd.Context(), listen)
			}

			report := c.keyring.Health(cmd.Context())
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				names := make([]string, 0, len(report.Results))
				for name := range report.Results {
					names = append(names, name)
				}
				sort.Strings(names)

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "CHECK\tSTATUS\tDETAILS")
				for _, name := range names {
					r := report.Results[name]
					details := r.Message
					if r.Error != "" {
						details = r.Error
					}
					fmt.Fprintf(w, "%s\t%s\t%s\n", name, r.Status, details)
				}
				fmt.Fprintf(w, "overall\t%s\t\n", report.Status)
				if err := w.Flush(); err != nil {
					return err
				}
			}

			if report.Status == vaultkeyring.StatusUnhealthy {
				return errUnhealthy
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	cmd.Flags().StringVar(&listen, "listen", "", "serve /health, /health/live and /health/ready on this address instead")
	return cmd
}

func (c *cli) serveHealth(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           c.keyring.HealthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		c.logger.Info("Serving health probes on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
