package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"unicode"

	"github.com/peterh/liner"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"virtual-router/internal/config"
	"virtual-router/internal/host"
	"virtual-router/internal/logging"
	"virtual-router/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "host <number>",
		Short: "Run an interactive virtual network host",
		Long: `
Run host <number>, configured by <config-dir>/host-<number>.txt, and open a
shell for sending messages. Received messages and ICMP errors are printed
as they arrive.

Shell commands:
  send <address> <text>   send text to a virtual address
  help                    show commands
  quit                    leave
`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			node, err := openNode(cmd, v, args[0])
			if err != nil {
				return err
			}
			defer node.close()
			return node.shell(ctx, cmd.OutOrStdout())
		},
	}
	cobra.CheckErr(config.BindFlags(cmd.PersistentFlags(), v))
	cmd.AddCommand(newSendCmd(v))
	return cmd
}

func newSendCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "send <number> <address> <text>...",
		Short: "Send one message from a host and exit",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := openNode(cmd, v, args[0])
			if err != nil {
				return err
			}
			defer node.close()
			_, err = node.exec("send "+strings.Join(args[1:], " "), cmd.OutOrStdout())
			return err
		},
	}
}

type node struct {
	endpoint *host.Endpoint
	conn     transport.Conn
	logger   *logging.Logger
	name     string
}

func openNode(cmd *cobra.Command, v *viper.Viper, arg string) (*node, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return nil, fmt.Errorf("invalid host number: %w", err)
	}
	path, err := cmd.Flags().GetString(config.SettingsFlag)
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(v, path)
	if err != nil {
		return nil, err
	}

	logger := logging.New(settings.Log)
	name := fmt.Sprintf("host-%d", n)
	lg := logger.Component(name)

	hc, err := config.LoadHost(settings.ConfigDir, n)
	if err != nil {
		lg.WithError(err).Error("cannot load host configuration")
		logger.Close()
		return nil, err
	}
	config.LogIgnored(lg, config.HostPath(settings.ConfigDir, n), hc.Ignored)

	conn, err := transport.ListenUDP(settings.ListenAddr())
	if err != nil {
		if errors.Is(err, transport.ErrAddrInUse) {
			lg.WithField("listen", settings.ListenAddr()).Error("port in use, choose another with --listen")
		} else {
			lg.WithError(err).Error("cannot open socket")
		}
		logger.Close()
		return nil, err
	}

	gateway := config.WithDefaultPort(hc.Gateway, settings.Port)
	lg.WithFields(log.Fields{
		"address": hc.Address.String(),
		"gateway": gateway.String(),
		"listen":  conn.LocalAddr().String(),
	}).Info("host started")

	e := host.New(conn, host.Config{Address: hc.Address, Gateway: gateway},
		host.WithLogger(lg),
		host.WithTTL(settings.DefaultTTL),
	)
	return &node{endpoint: e, conn: conn, logger: logger, name: name}, nil
}

func (n *node) close() {
	n.conn.Close()
	n.logger.Close()
}

const usage = "commands: send <address> <text>, help, quit"

// exec runs one shell line. It reports whether the shell should exit.
func (n *node) exec(input string, out io.Writer) (bool, error) {
	command, rest := nextField(input)
	switch command {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(out, usage)
		return false, nil
	case "send":
		addr, text := nextField(rest)
		if addr == "" || text == "" {
			return false, errors.New("usage: send <address> <text>")
		}
		dst, err := netip.ParseAddr(addr)
		if err != nil {
			return false, err
		}
		return false, n.endpoint.Send(dst, []byte(strings.TrimRightFunc(text, unicode.IsSpace)))
	}
	return false, fmt.Errorf("unknown command %q, try help", command)
}

// nextField splits off the first word of s. The rest keeps its inner
// spacing.
func nextField(s string) (field, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

func (n *node) shell(ctx context.Context, out io.Writer) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	history := historyPath()
	if f, err := os.Open(history); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	go n.endpoint.Listen(ctx, func(m host.Message) {
		fmt.Fprintf(out, "\n<< %s\n", m)
	})

	fmt.Fprintf(out, "%s (%s). Type 'help' for commands.\n", n.name, n.endpoint.Address())
	prompt := n.name + "> "
	for ctx.Err() == nil {
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted {
				fmt.Fprintln(out, "Use 'quit' to leave")
				continue
			}
			break
		}
		if strings.TrimSpace(input) == "" {
			continue
		}
		line.AppendHistory(input)

		quit, err := n.exec(input, out)
		if err != nil {
			fmt.Fprintln(out, err)
		}
		if quit {
			break
		}
	}

	if f, err := os.Create(history); err == nil {
		line.WriteHistory(f)
		f.Close()
	}
	return nil
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vnet_host_history"
	}
	return filepath.Join(home, ".vnet_host_history")
}
