package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/jsonls/internal/config"
	"github.com/dshills/jsonls/internal/jsonc"
)

func newFormatCmd(configPath *string) *cobra.Command {
	var (
		write   bool
		tabSize int
		useTabs bool
	)

	cmd := &cobra.Command{
		Use:   "format FILE",
		Short: "Format a JSON file",
		Long: `Format prints the formatted file, or rewrites it in place with --write.
Indentation defaults come from the configuration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			opts := cfg.Format.Options()
			if cmd.Flags().Changed("tab-size") {
				opts.TabSize = tabSize
			}
			if cmd.Flags().Changed("use-tabs") {
				opts.InsertSpaces = !useTabs
			}
			if opts.TabSize <= 0 {
				return fmt.Errorf("invalid tab size %d", opts.TabSize)
			}

			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}

			text := string(data)
			formatted, err := jsonc.ApplyEdits(text, jsonc.Format(text, nil, opts))
			if err != nil {
				return fmt.Errorf("format %s: %w", path, err)
			}

			if !write {
				_, err := fmt.Fprint(cmd.OutOrStdout(), formatted)
				return err
			}
			if formatted == text {
				return nil
			}
			return os.WriteFile(path, []byte(formatted), info.Mode().Perm())
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the result to the file instead of stdout")
	cmd.Flags().IntVar(&tabSize, "tab-size", 4, "spaces per indentation level")
	cmd.Flags().BoolVar(&useTabs, "use-tabs", false, "indent with tabs")
	return cmd
}
