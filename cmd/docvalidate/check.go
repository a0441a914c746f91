package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/service"
	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/storage"
)

func newCheckCmd(a *app) *cobra.Command {
	var (
		category string
		userID   string
		backend  string
		strict   bool
		parallel int
		metadata map[string]string
	)

	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Validate documents and print the results as JSON",
		Long:  "Validates each FILE. One file prints a verdict object, several print an array in argument order.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			switch backend {
			case "":
			case string(domain.ProviderNone):
				cfg.Validation.BackendEnabled = false
			default:
				cfg.Validation.BackendEnabled = true
				cfg.Validation.BackendProvider = backend
			}
			if cmd.Flags().Changed("strict") {
				cfg.Validation.StrictMode = strict
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			expected := domain.ParseCategory(category)
			if category != "" && expected == domain.CategoryUnknown && category != string(domain.CategoryUnknown) {
				return fmt.Errorf("unknown category %q", category)
			}

			p := service.NewPipeline(&cfg, nil, a.log)
			svc := service.NewDocumentService(p, &storage.LocalResolver{}, a.log)

			verdicts := make([]*service.Verdict, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(max(parallel, 1))
			for i, file := range args {
				g.Go(func() error {
					verdict, err := svc.Validate(ctx, service.Request{
						FileReference:    file,
						ExpectedCategory: expected,
						UserID:           userID,
						Metadata:         metadata,
					})
					if err != nil {
						return fmt.Errorf("%s: %w", file, err)
					}
					verdicts[i] = verdict
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			var out any = verdicts
			if len(verdicts) == 1 {
				out = verdicts[0]
			}
			if err := enc.Encode(out); err != nil {
				return err
			}
			for _, v := range verdicts {
				if !v.Result.IsValid {
					return errDocumentInvalid
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&category, "category", "c", "", "expected document category (e.g. driving_license, kbis, rib)")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user the document belongs to")
	cmd.Flags().StringVarP(&backend, "backend", "b", "", "override the backend: none, vision_llm, cloud_ocr or cloud_text_extraction")
	cmd.Flags().BoolVar(&strict, "strict", false, "flag results below the minimum confidence")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 4, "files validated at the same time")
	cmd.Flags().StringToStringVarP(&metadata, "meta", "m", nil, "metadata passed to the backend prompt (key=value)")
	return cmd
}
