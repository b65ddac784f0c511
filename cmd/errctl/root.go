package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"faultline-go/internal/config"
	"faultline-go/internal/constants"
	"faultline-go/internal/errorstore"
	log "github.com/sirupsen/logrus"
)

type globalOptions struct {
	configPath string
	dbPath     string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "errctl",
		Short:         "Inspect and maintain the faultline error archive",
		Version:       constants.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(*cobra.Command, []string) {
			log.SetLevel(log.WarnLevel)
			if opts.verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Override the archive database path")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newListCmd(opts),
		newShowCmd(opts),
		newStatsCmd(opts),
		newResolveCmd(opts, true),
		newResolveCmd(opts, false),
		newDeleteCmd(opts),
		newCleanupCmd(opts),
		newExportCmd(opts),
		newConfigCmd(opts),
		newStateCmd(opts),
	)
	return root
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if path == "" {
		path = config.DiscoverPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.dbPath != "" {
		cfg.Archive.Path = o.dbPath
	}
	return cfg, nil
}

// withArchive opens the archive for the duration of fn.
func (o *globalOptions) withArchive(ctx context.Context, fn func(*errorstore.Store, *config.Config) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	archive, err := errorstore.Open(ctx, errorstore.Options{
		Path:          cfg.Archive.Path,
		RetentionDays: cfg.Archive.RetentionDays,
	})
	if err != nil {
		return fmt.Errorf("open archive %s: %w", cfg.Archive.Path, err)
	}
	defer func() { _ = archive.Close() }()
	return fn(archive, cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
