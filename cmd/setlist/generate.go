package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ewilliams-labs/setlist/internal/adapters/rest"
	"github.com/ewilliams-labs/setlist/internal/core/domain"
	"github.com/ewilliams-labs/setlist/internal/core/pipeline"
)

type generateOptions struct {
	user      string
	model     string
	length    int
	mode      string
	timeFrame string
	commit    bool
	title     string
}

func generateCmd(configPath *string) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a playlist from listening history and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.generate(ctx, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "Plex account whose history is read")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Generation model (default from configuration)")
	cmd.Flags().IntVarP(&opts.length, "length", "n", 0, "Number of tracks")
	cmd.Flags().StringVar(&opts.mode, "mode", "", "Analysis mode: tracks or artists")
	cmd.Flags().StringVar(&opts.timeFrame, "time-frame", "", "History window: all, day, week, month, quarter or year")
	cmd.Flags().BoolVar(&opts.commit, "commit", false, "Create the playlist on the Plex server")
	cmd.Flags().StringVar(&opts.title, "title", "", "Playlist title used with --commit")

	return cmd
}

func (a *app) generate(ctx context.Context, out io.Writer, opts generateOptions) error {
	p, err := a.newPipeline(uuid.NewString(), rest.SessionOptions{
		UserID:         opts.user,
		PlaylistLength: opts.length,
		Mode:           opts.mode,
		TimeFrame:      opts.timeFrame,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	model := opts.model
	if model == "" {
		model = a.llm.DefaultModelID()
	}
	if err := p.SelectModel(model); err != nil {
		return err
	}

	stages := []func(context.Context) pipeline.StageReport{
		p.LoadData,
		p.RunAnalysis,
		p.RunAvailabilityCheck,
		p.RunGeneration,
	}
	for _, run := range stages {
		rep := run(ctx)
		if rep.Warning != "" {
			fmt.Fprintf(out, "warning (%s): %s\n", rep.Stage, rep.Warning)
		}
		if rep.Err != nil {
			return fmt.Errorf("%s: %s", rep.Stage, domain.UserMessage(rep.Err))
		}
	}

	st := p.State()
	printDraft(out, st.Draft)
	if !opts.commit {
		return nil
	}

	// The history worker only runs for the lifetime of the commit.
	poolCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.pool.Serve(poolCtx) }()

	result, rep := p.Commit(ctx, opts.title)
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if rep.Err != nil {
		return fmt.Errorf("commit: %s", domain.UserMessage(rep.Err))
	}
	if rep.Warning != "" {
		fmt.Fprintf(out, "warning (commit): %s\n", rep.Warning)
	}
	fmt.Fprintf(out, "\nCreated playlist %s with %d tracks\n", result.PlaylistID, result.TrackCount)
	return nil
}

func printDraft(out io.Writer, draft domain.PlaylistDraft) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tARTIST\tTITLE\tSTATUS")
	for i, e := range draft.Entries {
		status := string(e.Status)
		if status == "" {
			status = "unchecked"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, e.Artist, e.Title, status)
	}
	_ = tw.Flush()
}
