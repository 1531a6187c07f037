package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/ukydev/fleet-fuel/internal/auth"
	"github.com/ukydev/fleet-fuel/internal/config"
	"github.com/ukydev/fleet-fuel/internal/fuel"
	"github.com/ukydev/fleet-fuel/internal/models"
)

const defaultAPI = "http://localhost:8080/api"

// client talks to the fuel API as an administrator.
type client struct {
	api   string
	token string
	http  *http.Client
}

func newRootCmd() *cobra.Command {
	c := &client{http: &http.Client{Timeout: 30 * time.Second}}

	rootCmd := &cobra.Command{
		Use:           "fuelctl",
		Short:         "Administer the fleet fuel service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	api := os.Getenv("FUEL_API_URL")
	if api == "" {
		api = defaultAPI
	}
	rootCmd.PersistentFlags().StringVar(&c.api, "api", api, "base URL of the fuel API")
	rootCmd.PersistentFlags().StringVar(&c.token, "token", os.Getenv("FUEL_API_TOKEN"), "bearer token; minted from JWT_SECRET when empty")

	var (
		role string
		user string
	)
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API token for a role",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := mintToken(user, models.Role(role))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "role carried by the token")
	tokenCmd.Flags().StringVar(&user, "user", "fuelctl", "username carried by the token")

	seedCmd := &cobra.Command{
		Use:   "seed [file]",
		Short: "Apply routes, truck batches and stations from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := config.LoadSeed(args[0])
			if err != nil {
				return err
			}
			var report fuel.ConfigReport
			if err := c.do(http.MethodPut, "/config", set, &report); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "routes: %d, truck batches: %d, stations: %d, notifications resolved: %d\n",
				report.Routes, report.Batches, report.Stations, report.Resolved)
			return nil
		},
	}

	var truck string
	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List held return DOs and unlinked LPOs and yard dispenses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/pending"
			if truck != "" {
				path += "?truck=" + url.QueryEscape(truck)
			}
			var p fuel.Pending
			if err := c.do(http.MethodGet, path, nil, &p); err != nil {
				return err
			}
			printPending(cmd.OutOrStdout(), p)
			return nil
		},
	}
	pendingCmd.Flags().StringVar(&truck, "truck", "", "only this truck")

	retryCmd := &cobra.Command{
		Use:   "retry",
		Short: "Retry linking every pending item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var report fuel.RetryReport
			if err := c.do(http.MethodPost, "/pending/retry", nil, &report); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trucks: %d, orphans linked: %d, LPOs linked: %d, yard dispenses linked: %d\n",
				report.Trucks, report.Orphans, report.LPOs, report.YardDispenses)
			return nil
		},
	}

	rootCmd.AddCommand(tokenCmd, seedCmd, pendingCmd, retryCmd)
	return rootCmd
}

func mintToken(user string, role models.Role) (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", err
	}
	svc, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		return "", err
	}
	return svc.GenerateToken(user, user, role)
}

func (c *client) do(method, path string, in, out interface{}) error {
	if c.token == "" {
		token, err := mintToken("fuelctl", models.RoleAdmin)
		if err != nil {
			return fmt.Errorf("failed to mint admin token: %w", err)
		}
		c.token = token
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, strings.TrimSuffix(c.api, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func printPending(w io.Writer, p fuel.Pending) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tID\tTRUCK\tREFERENCE\tDETAIL")
	for _, o := range p.Orphans {
		fmt.Fprintf(tw, "orphan\t%s\t%s\tDO %s\t%s\n", o.ID.Hex(), o.TruckNumber, o.Order.DONumber, o.Reason)
	}
	for _, l := range p.LPOs {
		fmt.Fprintf(tw, "lpo\t%s\t%s\t%s\t%s %gL\n", l.ID.Hex(), l.TruckNumber, l.LPONumber, l.Station, l.Liters)
	}
	for _, d := range p.YardDispenses {
		fmt.Fprintf(tw, "yard\t%s\t%s\t%s\t%gL\n", d.ID.Hex(), d.TruckNumber, d.Yard, d.Liters)
	}
	tw.Flush()
	fmt.Fprintf(w, "%d orphans, %d LPOs, %d yard dispenses pending\n", len(p.Orphans), len(p.LPOs), len(p.YardDispenses))
}
