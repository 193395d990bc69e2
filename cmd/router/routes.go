package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"virtual-router/internal/config"
	"virtual-router/internal/route"
)

type routeView struct {
	Prefix  string `json:"prefix" yaml:"prefix"`
	NextHop string `json:"next_hop" yaml:"next_hop"`
}

type tableView struct {
	Addresses []string    `yaml:"addresses"`
	Routes    []routeView `yaml:"routes"`
}

func routeViews(t *route.Table) []routeView {
	entries := t.Entries()
	views := make([]routeView, len(entries))
	for i, e := range entries {
		views[i] = routeView{Prefix: e.Prefix.String(), NextHop: e.NextHop.String()}
	}
	return views
}

func newRoutesCmd(v *viper.Viper) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "routes <number>",
		Short: "Print the routing table of a router",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid router number: %w", err)
			}
			settings, err := loadSettings(cmd, v)
			if err != nil {
				return err
			}
			rc, err := config.LoadRouter(settings.ConfigDir, n)
			if err != nil {
				return err
			}
			table, dups := rc.Table(settings.Port)
			for _, d := range dups {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", d)
			}
			return printTable(cmd.OutOrStdout(), table, asYAML)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print as YAML")
	return cmd
}

func printTable(w io.Writer, t *route.Table, asYAML bool) error {
	if asYAML {
		view := tableView{Routes: routeViews(t)}
		for _, a := range t.SelfAddrs() {
			view.Addresses = append(view.Addresses, a.String())
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(view); err != nil {
			return err
		}
		return enc.Close()
	}

	for _, a := range t.SelfAddrs() {
		fmt.Fprintf(w, "local %s\n", a)
	}
	for _, r := range routeViews(t) {
		fmt.Fprintf(w, "%18s -> %s\n", r.Prefix, r.NextHop)
	}
	return nil
}
