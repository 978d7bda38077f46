package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ent0n29/callkit/internal/analysis"
	"github.com/ent0n29/callkit/internal/config"
	"github.com/ent0n29/callkit/internal/reconcile"
)

// reconcileInput is the document read by `callkit reconcile`. Extracted
// holds raw custom analysis data, attempt keys included.
type reconcileInput struct {
	Declared  map[string]string `json:"declared"`
	Extracted map[string]any    `json:"extracted"`
}

type reconcileOutput struct {
	Fields  reconcile.Validation `json:"fields"`
	Summary reconcile.Counts     `json:"summary"`
}

func newReconcileCmd() *cobra.Command {
	var (
		input       string
		brandID     string
		maxAttempts int
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare declared fields against extracted analysis data offline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader = cmd.InOrStdin()
			if input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("open input: %w", err)
				}
				defer f.Close()
				r = f
			}
			var doc reconcileInput
			if err := json.NewDecoder(r).Decode(&doc); err != nil {
				return fmt.Errorf("decode input: %w", err)
			}

			rec := reconcile.Reconciler{MaxAttempts: maxAttempts}
			if brandID != "" {
				brand, err := findBrand(cmd, brandID)
				if err != nil {
					return err
				}
				rec = brand.Reconciler()
				if cmd.Flags().Changed("max-attempts") {
					rec.MaxAttempts = maxAttempts
				}
			}

			v := rec.Reconcile(doc.Declared, analysis.ExtractFields(doc.Extracted))
			if err := writeJSON(cmd.OutOrStdout(), reconcileOutput{Fields: v, Summary: v.Summary()}); err != nil {
				return err
			}
			if !v.AllValid() {
				return errNotAllValid
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON document with declared and extracted fields (- for stdin)")
	cmd.Flags().StringVar(&brandID, "brand", "", "Use this brand's field kinds and attempt bound")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "Consider at most this many attempts per field (0 = all)")
	return cmd
}

var errNotAllValid = errors.New("not every field reconciled as valid")

func findBrand(cmd *cobra.Command, id string) (config.Brand, error) {
	brands, err := loadBrands(cmd)
	if err != nil {
		return config.Brand{}, err
	}
	for _, b := range brands {
		if b.ID == id {
			return b, nil
		}
	}
	return config.Brand{}, fmt.Errorf("unknown brand %q", id)
}

func loadBrands(cmd *cobra.Command) ([]config.Brand, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return config.LoadBrands(cfg.BrandsFile, cfg.PlatformAPIKey)
}
