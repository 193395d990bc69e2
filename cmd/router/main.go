package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"virtual-router/internal/capture"
	"virtual-router/internal/config"
	"virtual-router/internal/logging"
	"virtual-router/internal/metrics"
	"virtual-router/internal/route"
	"virtual-router/internal/router"
	"virtual-router/internal/transport"
)

func main() {
	if err := newRootCmd(os.Stdin).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "router [number]",
		Short: "Run a virtual network router",
		Long: `
Run router <number>, configured by <config-dir>/router-<number>.txt.
The number is prompted for when omitted.

Examples:
  router 1
  router 1 --listen 127.0.0.1:1618 --log-level debug
  router 2 --capture router-2.pcap --metrics-listen 127.0.0.1:9618
`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var n int
			var err error
			if len(args) == 1 {
				n, err = strconv.Atoi(args[0])
			} else {
				n, err = promptNumber(stdin, cmd.OutOrStdout())
			}
			if err != nil {
				return fmt.Errorf("invalid router number: %w", err)
			}

			settings, err := loadSettings(cmd, v)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-listen") {
				settings.Metrics.Enabled = true
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, settings, n, cmd.OutOrStdout())
		},
	}

	fs := cmd.PersistentFlags()
	cobra.CheckErr(config.BindFlags(fs, v))
	cmd.Flags().String("capture", "", "write every received and sent datagram to this pcap file")
	cmd.Flags().String("metrics-listen", "", "serve metrics and status on this TCP address")
	cobra.CheckErr(v.BindPFlag("capture.file", cmd.Flags().Lookup("capture")))
	cobra.CheckErr(v.BindPFlag("metrics.listen", cmd.Flags().Lookup("metrics-listen")))

	cmd.AddCommand(newRoutesCmd(v))
	return cmd
}

func loadSettings(cmd *cobra.Command, v *viper.Viper) (*config.Settings, error) {
	path, err := cmd.Flags().GetString(config.SettingsFlag)
	if err != nil {
		return nil, err
	}
	return config.Load(v, path)
}

// promptNumber asks for the router number on stdin.
func promptNumber(in io.Reader, out io.Writer) (int, error) {
	fmt.Fprint(out, "Please input router number: ")
	var n int
	if _, err := fmt.Fscan(bufio.NewReader(in), &n); err != nil {
		return 0, err
	}
	fmt.Fprintln(out)
	return n, nil
}

func run(ctx context.Context, settings *config.Settings, n int, out io.Writer) error {
	logger := logging.New(settings.Log)
	defer logger.Close()
	lg := logger.Component(fmt.Sprintf("router-%d", n))

	rc, err := config.LoadRouter(settings.ConfigDir, n)
	if err != nil {
		lg.WithError(err).Error("cannot load router configuration")
		return err
	}
	config.LogIgnored(lg, config.RouterPath(settings.ConfigDir, n), rc.Ignored)

	table, dups := rc.Table(settings.Port)
	for _, d := range dups {
		lg.WithError(d).Warn("duplicate prefix ignored")
	}
	var routes router.Routes = table
	if settings.RouteCacheSize > 0 {
		routes = route.NewCache(table, settings.RouteCacheSize)
	}

	conn, err := transport.ListenUDP(settings.ListenAddr())
	if err != nil {
		if errors.Is(err, transport.ErrAddrInUse) {
			lg.WithField("listen", settings.ListenAddr()).Error("port in use, choose another with --listen")
		} else {
			lg.WithError(err).Error("cannot open socket")
		}
		return err
	}

	m := metrics.New()
	opts := []router.Option{
		router.WithLogger(lg),
		router.WithMetrics(m),
		router.WithDefaultTTL(settings.DefaultTTL),
	}

	if settings.Capture.File != "" {
		w, err := capture.Create(settings.Capture.File)
		if err != nil {
			conn.Close()
			return err
		}
		defer w.Close()
		opts = append(opts, router.WithCapture(w))
		lg.WithField("file", settings.Capture.File).Info("capturing packets")
	}

	if settings.Metrics.Enabled {
		srv := metrics.NewServer(settings.Metrics.Listen, settings.Metrics.Path, m, logger.Component("metrics"))
		srv.HandleJSON("/routes", func() any { return routeViews(table) })
		if err := srv.Start(); err != nil {
			conn.Close()
			return err
		}
		defer srv.Stop(context.Background())
	}

	r := router.New(conn, routes, opts...)
	r.Banner(out)

	lg.WithFields(log.Fields{"routes": table.Len(), "instance": logger.Instance()}).Debug("serving")
	return r.Run(ctx)
}
