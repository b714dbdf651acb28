package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/proptour/proptour-cli/internal/config"
	"github.com/proptour/proptour-cli/internal/constants"
	"github.com/proptour/proptour-cli/internal/download"
	"github.com/proptour/proptour-cli/internal/intake"
	"github.com/proptour/proptour-cli/internal/models"
	"github.com/proptour/proptour-cli/internal/registry"
	"github.com/proptour/proptour-cli/internal/session"
	"github.com/proptour/proptour-cli/internal/uploader"
	"github.com/proptour/proptour-cli/internal/watcher"
)

// newCreateCmd creates the 'create' command.
func newCreateCmd() *cobra.Command {
	var (
		prompts      []string
		globalPrompt string
		perItem      bool
		weight       float64
		duration     int
		single       bool
		multi        bool
		output       string
		noWatch      bool
		andDownload  bool
	)

	cmd := &cobra.Command{
		Use:   "create [images...]",
		Short: "Upload property images and generate tour videos",
		Long: `Upload one or more property images as a single generation batch.

Images are content-sniffed: only JPG, PNG, WebP and GIF files are
accepted. The whole pick is rejected if it exceeds the image limit.

Prompts:
  By default every image uses the shared global prompt. With --per-item,
  give each image its own prompt via repeated --prompt flags, either in
  image order or as name=prompt pairs:

    proptour create kitchen.jpg pool.jpg \
      --per-item \
      --prompt "Bright modern kitchen" \
      --prompt "Sunset over the infinity pool"

After submission the command watches the batch until the backend
finishes, unless --no-watch is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext()

			a, err := newApp()
			if err != nil {
				return err
			}

			settings := a.cfg.Settings()
			if cmd.Flags().Changed("global-prompt") {
				settings.GlobalPrompt = globalPrompt
				settings.PromptMode = models.PromptUniform
			}
			if perItem {
				settings.PromptMode = models.PromptPerItem
			}
			if cmd.Flags().Changed("weight") {
				if weight < constants.MinWeight || weight > constants.MaxWeight {
					return config.ErrInvalidWeight
				}
				settings.Weight = weight
			}
			if cmd.Flags().Changed("duration") {
				if duration < constants.MinDurationSeconds || duration > constants.MaxDurationSeconds {
					return config.ErrInvalidDuration
				}
				settings.DurationSeconds = duration
			}
			if single {
				settings.Context = models.ContextSingle
			}
			if multi {
				settings.Context = models.ContextMulti
			}
			if cmd.Flags().Changed("output") {
				settings.OutputName = output
			}

			reg := registry.New(settings, a.logger)
			defer reg.ReleaseAll()

			previewDir, err := config.DefaultPreviewDir()
			if err != nil {
				return err
			}
			previews, err := intake.NewDirStore(previewDir)
			if err != nil {
				return err
			}

			files, err := intake.New(previews, a.logger).Accept(args, reg.Len(), settings.EffectiveMaxFiles())
			if err != nil {
				return err
			}
			if err := reg.Add(files); err != nil {
				for _, f := range files {
					_ = f.Preview.Release()
				}
				return err
			}

			if err := applyPrompts(reg, files, prompts); err != nil {
				return err
			}

			a.startBridge(ctx)
			reg.OnEmptied(func() {
				a.watch.Stop()
				if err := a.store.Purge(); err != nil {
					a.logger.Warn().Err(err).Msg("Failed to purge session")
				}
			})

			a.watch.BeginSubmit()
			batchID, err := uploader.New(a.api, a.logger).Submit(ctx, reg)
			if err != nil {
				a.watch.AbortSubmit()
				return err
			}

			fmt.Printf("Batch %s submitted (%d images)\n", batchID, reg.Len())

			// Persist immediately so a crash before the first poll still
			// leaves a resumable session.
			if err := a.store.Save(&session.Record{BatchID: batchID}); err != nil {
				a.logger.Warn().Err(err).Msg("Failed to persist session")
			}

			if noWatch {
				fmt.Println("Run 'proptour watch' to track progress.")
				return nil
			}

			snap := a.watchUntilDone(ctx, func() {
				a.watch.Watch(ctx, batchID)
			})
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if snap.Phase == watcher.PhaseFailed {
				return fmt.Errorf("batch %s did not complete (%s)", batchID, snap.Reason)
			}

			if andDownload && snap.Phase == watcher.PhaseCompleted {
				gw := download.NewGateway(a.api, a.logger, true)
				path, err := gw.Download(ctx, batchID, settings.OutputName)
				if err != nil {
					a.notifier.DownloadFailed(batchID)
					return err
				}
				a.notifier.DownloadComplete(path)
				fmt.Printf("Saved %s\n", path)
			}

			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&prompts, "prompt", "p", nil, "Per-image prompt, in image order or as name=prompt")
	cmd.Flags().StringVar(&globalPrompt, "global-prompt", "", "Shared prompt applied to every image")
	cmd.Flags().BoolVar(&perItem, "per-item", false, "Use per-image prompts instead of the shared one")
	cmd.Flags().Float64Var(&weight, "weight", 0, "Generation strength (0-1)")
	cmd.Flags().IntVar(&duration, "duration", 0, "Clip duration in seconds (1-60)")
	cmd.Flags().BoolVar(&single, "single", false, "Single-image context (one image max)")
	cmd.Flags().BoolVar(&multi, "multi", false, "Multi-image context")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Archive name for the downloaded videos")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Submit and exit without tracking progress")
	cmd.Flags().BoolVar(&andDownload, "download", false, "Download the archive once the batch completes")

	return cmd
}

// applyPrompts assigns per-image prompts. When every entry carries a
// name=prompt pair the names are matched against the picked filenames;
// otherwise the prompts apply positionally.
func applyPrompts(reg *registry.Registry, files []*models.TrackedFile, prompts []string) error {
	if len(prompts) == 0 {
		return nil
	}

	named := true
	for _, p := range prompts {
		if !strings.Contains(p, "=") {
			named = false
			break
		}
	}

	if named {
		byName := make(map[string]string, len(files))
		for _, f := range files {
			byName[f.Name] = f.ID
		}
		for _, p := range prompts {
			name, text, _ := strings.Cut(p, "=")
			id, ok := byName[name]
			if !ok {
				return fmt.Errorf("no image named %q in this batch", name)
			}
			reg.UpdateDescription(id, text)
		}
		return nil
	}

	if len(prompts) > len(files) {
		return fmt.Errorf("%d prompts given for %d images", len(prompts), len(files))
	}
	for i, p := range prompts {
		reg.UpdateDescription(files[i].ID, p)
	}
	return nil
}
