package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/jsonls/internal/app"
	"github.com/dshills/jsonls/internal/config"
	"github.com/dshills/jsonls/internal/jsonrpc"
)

// newRootCmd builds the command tree. The streams are parameters so the
// commands can be run in tests.
func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "jsonls",
		Short:         "A language server for JSON with JSON Schema support",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetVersionTemplate(fmt.Sprintf("jsonls {{.Version}} (commit %s, built %s)\n", commit, date))
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML or YAML configuration file")

	root.AddCommand(
		newServeCmd(&configPath),
		newValidateCmd(&configPath),
		newFormatCmd(&configPath),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	var (
		stdio           bool
		logLevel        string
		trace           string
		charset         string
		contentEncoding string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the language server on stdin and stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("trace") {
				cfg.Trace = trace
			}
			if cmd.Flags().Changed("charset") {
				cfg.Transport.Charset = charset
			}
			if cmd.Flags().Changed("content-encoding") {
				cfg.Transport.ContentEncoding = contentEncoding
			}

			logger := app.NewLogger(app.LoggerConfig{
				Level:  app.ParseLogLevel(cfg.LogLevel),
				Output: cmd.ErrOrStderr(),
				Prefix: "jsonls",
			})
			application, err := app.New(app.Options{
				Config:  cfg,
				Logger:  logger,
				In:      cmd.InOrStdin(),
				Out:     cmd.OutOrStdout(),
				Version: version,
			})
			if err != nil {
				return err
			}

			code, err := application.Run(cmd.Context())
			if err != nil {
				return err
			}
			if code != exitOK {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}

	// stdio is the only transport; the flag is accepted because clients
	// pass it.
	cmd.Flags().BoolVar(&stdio, "stdio", true, "communicate over stdin and stdout")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&trace, "trace", jsonrpc.TraceOff.String(), "message trace level (off, messages, compact, verbose)")
	cmd.Flags().StringVar(&charset, "charset", jsonrpc.DefaultCharset, "charset of message bodies")
	cmd.Flags().StringVar(&contentEncoding, "content-encoding", "", "compress outgoing messages (gzip, deflate)")
	return cmd
}
