package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"faultline-go/internal/config"
	"faultline-go/internal/constants"
	store "faultline-go/internal/storage"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return config.Export(cmd.OutOrStdout(), cfg, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml, json or toml")
	return cmd
}

// stateDump is the portable form of the persisted UI state keys.
type stateDump struct {
	Version    string                     `json:"version"`
	ExportedAt time.Time                  `json:"exportedAt"`
	Backend    string                     `json:"backend"`
	Keys       map[string]json.RawMessage `json:"keys"`
}

func newStateCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Dump or restore persisted UI state in the storage backend",
	}

	var prefix, output string
	dump := &cobra.Command{
		Use:   "dump",
		Short: "Write every stored key as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd.Context(), opts, func(b store.Backend, label string) error {
				d, err := dumpState(cmd.Context(), b, prefix)
				if err != nil {
					return err
				}
				d.Backend = label
				w := cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}
				return printJSON(w, d)
			})
		},
	}
	dump.Flags().StringVar(&prefix, "prefix", "", "Only keys with this prefix")
	dump.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")

	var input string
	restore := &cobra.Command{
		Use:   "restore",
		Short: "Load keys from a state dump",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var d stateDump
			if err := json.NewDecoder(r).Decode(&d); err != nil {
				return fmt.Errorf("decode state dump: %w", err)
			}
			return withBackend(cmd.Context(), opts, func(b store.Backend, _ string) error {
				n, err := restoreState(cmd.Context(), b, d)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %d keys\n", n)
				return nil
			})
		},
	}
	restore.Flags().StringVarP(&input, "input", "i", "", "Read from file instead of stdin")

	cmd.AddCommand(dump, restore)
	return cmd
}

func withBackend(ctx context.Context, opts *globalOptions, fn func(store.Backend, string) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	b, err := store.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() { _ = b.Close() }()
	return fn(b, store.DetectBackendLabel(cfg.Storage.Backend, b))
}

func dumpState(ctx context.Context, b store.Backend, prefix string) (stateDump, error) {
	keys, err := b.List(ctx, prefix)
	if err != nil {
		return stateDump{}, err
	}
	d := stateDump{
		Version:    constants.Version,
		ExportedAt: time.Now().UTC(),
		Keys:       make(map[string]json.RawMessage, len(keys)),
	}
	for _, k := range keys {
		raw, err := b.Get(ctx, k)
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return stateDump{}, fmt.Errorf("read %s: %w", k, err)
		}
		if !json.Valid(raw) {
			return stateDump{}, fmt.Errorf("key %s does not hold JSON", k)
		}
		d.Keys[k] = raw
	}
	return d, nil
}

func restoreState(ctx context.Context, b store.Backend, d stateDump) (int, error) {
	n := 0
	for k, raw := range d.Keys {
		if err := b.Set(ctx, k, raw); err != nil {
			return n, fmt.Errorf("write %s: %w", k, err)
		}
		n++
	}
	return n, nil
}
