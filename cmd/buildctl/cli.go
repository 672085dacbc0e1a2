package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"text/tabwriter"

	api "github.com/nixpig/buildworker/api/v1"
	"github.com/nixpig/buildworker/internal/tlsconfig"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TODO: Inject version at build time.
const version = "0.0.1"

type config struct {
	serverHostname string
	serverPort     string
	caCertPath     string
	certPath       string
	keyPath        string
}

type cli struct {
	client api.BuildServiceClient
	conn   *grpc.ClientConn
}

func newCLI() *cli {
	return &cli{}
}

func (c *cli) rootCmd() *cobra.Command {
	cfg := &config{}

	command := &cobra.Command{
		Use:          "buildctl",
		Short:        "CLI for running game builds on a build server",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			creds, err := tlsconfig.Credentials(&tlsconfig.Config{
				CertPath:   cfg.certPath,
				KeyPath:    cfg.keyPath,
				CACertPath: cfg.caCertPath,
				ServerName: cfg.serverHostname,
			})
			if err != nil {
				return err
			}

			c.conn, err = grpc.NewClient(
				net.JoinHostPort(
					cfg.serverHostname,
					cfg.serverPort,
				),
				grpc.WithTransportCredentials(creds),
			)
			if err != nil {
				return err
			}

			c.client = api.NewBuildServiceClient(c.conn)

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.conn == nil {
				return nil
			}

			// Connection needs to remain open for duration of any child commands.
			return c.conn.Close()
		},
	}

	command.AddCommand(
		c.runCmd(),
		c.stopCmd(),
		c.statusCmd(),
		c.listCmd(),
		c.streamCmd(),
		execCmd(),
	)

	command.CompletionOptions.HiddenDefaultCmd = true

	command.PersistentFlags().StringVar(
		&cfg.serverHostname,
		"server-hostname",
		"localhost",
		"Server hostname",
	)

	command.PersistentFlags().StringVar(
		&cfg.serverPort,
		"server-port",
		"8443",
		"Server port",
	)

	command.PersistentFlags().StringVar(
		&cfg.certPath,
		"cert-path",
		"certs/client-operator.crt",
		"Path to client TLS certificate",
	)

	command.PersistentFlags().StringVar(
		&cfg.keyPath,
		"key-path",
		"certs/client-operator.key",
		"Path to client TLS private key",
	)

	command.PersistentFlags().StringVar(
		&cfg.caCertPath,
		"ca-cert-path",
		"certs/ca.crt",
		"Path to CA certificate for mTLS",
	)

	return command
}

func (c *cli) runCmd() *cobra.Command {
	var verb string

	command := &cobra.Command{
		Use:     "run [flags] TARGET",
		Short:   "Run a build of a preset target",
		Example: "  buildctl run windows\n  buildctl run windows --verb Clean",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.client.RunBuild(
				cmd.Context(),
				&api.RunBuildRequest{Target: args[0], Verb: verb},
			)
			if err != nil {
				return mapError(err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), b.ID)

			return nil
		},
	}

	command.Flags().StringVar(&verb, "verb", "", "Override the target's verb")

	return command
}

func (c *cli) statusCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "status [flags] BUILD_ID",
		Short:   "Query status of build",
		Example: "  buildctl status 9302033c-f8f7-4b6e-9363-a7aa201cce1b",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := c.client.QueryBuild(
				cmd.Context(),
				&api.BuildRef{ID: args[0]},
			)
			if err != nil {
				return mapError(err)
			}

			printBuilds(cmd.OutOrStdout(), []*api.BuildStatus{b})

			return nil
		},
	}

	return command
}

func (c *cli) listCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "list",
		Short:   "List builds run by the server",
		Example: "  buildctl list",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			builds, err := c.client.ListBuilds(cmd.Context())
			if err != nil {
				return mapError(err)
			}

			printBuilds(cmd.OutOrStdout(), builds)

			return nil
		},
	}

	return command
}

func (c *cli) stopCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "stop [flags] BUILD_ID",
		Short:   "Stop a running build",
		Example: "  buildctl stop 9302033c-f8f7-4b6e-9363-a7aa201cce1b",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.StopBuild(
				cmd.Context(),
				&api.BuildRef{ID: args[0]},
			); err != nil {
				return mapError(err)
			}

			return nil
		},
	}

	return command
}

func (c *cli) streamCmd() *cobra.Command {
	command := &cobra.Command{
		Use:     "stream [flags] BUILD_ID",
		Short:   "Stream build output",
		Example: "  buildctl stream 9302033c-f8f7-4b6e-9363-a7aa201cce1b",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stream, err := c.client.StreamBuildOutput(
				cmd.Context(),
				&api.BuildRef{ID: args[0]},
			)
			if err != nil {
				return mapError(err)
			}

			for {
				chunk, err := stream.Recv()
				if err != nil {
					if errors.Is(err, io.EOF) {
						break
					}

					if status.Code(err) == codes.Canceled {
						break
					}

					return mapError(err)
				}

				cmd.OutOrStdout().Write(chunk)
			}

			return nil
		},
	}

	return command
}

// printBuilds writes builds as a table.
func printBuilds(w io.Writer, builds []*api.BuildStatus) {
	// TODO: Only output headers if TTY, or add a --no-headers flag.
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "ID\tTARGET\tVERB\tPLATFORM\tSTATE\tSTATUS\tEXIT CODE\tERRORS\tWARNINGS\t\n")

	for _, b := range builds {
		errs, warnings := "-", "-"
		if b.Summary != nil {
			errs = fmt.Sprint(len(b.Summary.Errors))
			warnings = fmt.Sprint(len(b.Summary.Warnings))
		}

		display := b.Display
		if display == "" {
			display = "-"
		}

		fmt.Fprintf(
			tw,
			"%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\t\n",
			b.ID,
			b.Target,
			b.Verb,
			b.Platform,
			b.State,
			display,
			b.ExitCode,
			errs,
			warnings,
		)
	}

	tw.Flush()
}

// mapError translates gRPC errors to human-readable messages.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return errors.New("not found")
	case codes.PermissionDenied:
		return errors.New("permission denied")
	case codes.Unauthenticated:
		return errors.New("not authenticated")
	case codes.InvalidArgument, codes.FailedPrecondition:
		return fmt.Errorf("%s", st.Message())
	case codes.Unavailable:
		return errors.New("server unavailable")
	default:
		return fmt.Errorf("%s", st.Message())
	}
}
