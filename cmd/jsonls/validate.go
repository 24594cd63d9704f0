package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/jsonls/internal/app"
	"github.com/dshills/jsonls/internal/config"
	"github.com/dshills/jsonls/internal/jsonlang"
	"github.com/dshills/jsonls/internal/jsonschema"
	"github.com/dshills/jsonls/internal/protocol"
	"github.com/dshills/jsonls/internal/textdoc"
)

func newValidateCmd(configPath *string) *cobra.Command {
	var schema string

	cmd := &cobra.Command{
		Use:   "validate FILE...",
		Short: "Validate JSON files and print the problems found",
		Long: `Validate parses each file and checks it against the schema associated
with it by the configuration, its $schema property or --schema.
The exit status is 2 when problems were found.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := app.NewLogger(app.LoggerConfig{
				Level:  app.ParseLogLevel(cfg.LogLevel),
				Output: cmd.ErrOrStderr(),
				Prefix: "jsonls",
			})

			schemas := newSchemaService(cfg, logger)
			lang := jsonlang.NewLanguageService(schemas)
			out := cmd.OutOrStdout()

			problems := 0
			for _, path := range args {
				abs, err := filepath.Abs(path)
				if err != nil {
					return err
				}
				data, err := os.ReadFile(abs)
				if err != nil {
					return err
				}
				if schema != "" {
					uri, err := schemaURI(schema)
					if err != nil {
						return err
					}
					schemas.RegisterExternalSchema(jsonschema.SchemaConfiguration{
						URI:       uri,
						FileMatch: []string{filepath.ToSlash(abs)},
					})
				}

				languageID := protocol.DetectLanguageID(abs)
				td := textdoc.New(protocol.FilePathToURI(abs), languageID, 1, string(data))
				diagnostics, err := lang.DoValidation(cmd.Context(), td, lang.ParseDocument(td), cfg.Validation.Settings(languageID), nil)
				if err != nil {
					return fmt.Errorf("validate %s: %w", path, err)
				}
				for _, d := range diagnostics {
					fmt.Fprintf(out, "%s:%d:%d: %s: %s\n", path,
						d.Range.Start.Line+1, d.Range.Start.Character+1,
						d.Severity, d.Message)
					if d.Severity != protocol.DiagnosticSeverityHint {
						problems++
					}
				}
			}

			if problems > 0 {
				return &exitCodeError{code: exitProblems}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&schema, "schema", "s", "", "schema URI or file to validate against")
	return cmd
}

// newSchemaService creates a schema service with the configured
// associations. Only file and, when allowed, http schemas can be loaded.
func newSchemaService(cfg *config.Config, logger *app.Logger) *jsonschema.Service {
	schemas := jsonschema.NewService(
		app.NewFetcher(cfg.Schema, nil, nil),
		jsonschema.WithLogger(logger.WithComponent("schema")),
		jsonschema.WithLoadTimeout(cfg.Schema.LoadTimeout.Duration),
	)
	schemas.SetSchemaContributions(jsonschema.BuiltinContributions())
	for _, a := range cfg.Schemas {
		schemas.RegisterExternalSchema(jsonschema.SchemaConfiguration{
			URI:       a.SchemaURI(),
			FileMatch: a.FileMatch,
		})
	}
	return schemas
}

// schemaURI turns a --schema argument into a URI. Anything without a
// scheme is a local path.
func schemaURI(s string) (string, error) {
	if strings.Contains(s, "://") {
		return s, nil
	}
	abs, err := filepath.Abs(s)
	if err != nil {
		return "", err
	}
	return string(protocol.FilePathToURI(abs)), nil
}
