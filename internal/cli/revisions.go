package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/rxfn/internal/ir"
	"github.com/roach88/rxfn/internal/store"
)

// RevisionsOptions holds flags for the revisions command.
type RevisionsOptions struct {
	*RootOptions
	Show  string // revision id whose snapshots are printed
	Prune int    // keep only the newest N revisions of the app
}

// RevisionsResult holds the revisions listed by the command.
type RevisionsResult struct {
	Revisions []ir.Revision `json:"revisions"`
	Pruned    int64         `json:"pruned,omitempty"`
}

// NewRevisionsCommand creates the revisions command.
func NewRevisionsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RevisionsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "revisions [app]",
		Short: "List persisted revisions",
		Long: `List the revisions stored in the database, oldest first, optionally
for one application.

Examples:
  rxfn revisions --db state.db
  rxfn revisions stocks --db state.db --show 0190a3c2-...
  rxfn revisions stocks --db state.db --prune 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := ""
			if len(args) == 1 {
				app = args[0]
			}
			return listRevisions(opts, app, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Show, "show", "", "print the snapshots of this revision")
	cmd.Flags().IntVar(&opts.Prune, "prune", 0, "keep only the newest N revisions of the app")

	return cmd
}

func listRevisions(opts *RevisionsOptions, app string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Prune < 0 {
		return NewExitError(ExitCommandError, "--prune must not be negative")
	}
	if opts.Prune > 0 && app == "" {
		return NewExitError(ExitCommandError, "--prune needs an app")
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.Show != "" {
		return showRevision(ctx, formatter, st, opts.Show)
	}

	var result RevisionsResult
	if opts.Prune > 0 {
		result.Pruned, err = st.PruneRevisions(ctx, app, opts.Prune)
		if err != nil {
			return WrapExitError(ExitCommandError, "prune failed", err)
		}
		opts.Logger.Info().Str("app", app).Int64("deleted", result.Pruned).Msg("revisions pruned")
	}

	result.Revisions, err = st.ListRevisions(ctx, app)
	if err != nil {
		return WrapExitError(ExitCommandError, "list failed", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if len(result.Revisions) == 0 {
		fmt.Fprintln(w, "No revisions.")
		return nil
	}
	fmt.Fprintf(w, "%-6s %-38s %-16s %s\n", "SEQ", "ID", "APP", "APP HASH")
	for _, rev := range result.Revisions {
		fmt.Fprintf(w, "%-6d %-38s %-16s %s\n", rev.Seq, rev.ID, rev.App, shortHash(rev.AppHash))
	}
	if result.Pruned > 0 {
		fmt.Fprintf(w, "Pruned %d revision(s)\n", result.Pruned)
	}
	return nil
}

func showRevision(ctx context.Context, formatter *OutputFormatter, st *store.Store, id string) error {
	rev, err := st.ReadRevision(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRevisionNotFound) {
			_ = formatter.Error(errorCode(err), err.Error(), nil)
			return WrapExitError(ExitFailure, "revision not found", err)
		}
		return WrapExitError(ExitCommandError, "read failed", err)
	}

	if formatter.IsJSON() {
		return formatter.Success(rev)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "Revision %s (app %s, seq %d, ir %s)\n", rev.ID, rev.App, rev.Seq, rev.IRVersion)
	for _, snap := range rev.Snapshots {
		state, err := ir.MarshalCanonical(snap.State)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s %s %s\n", snap.InstanceKey, snap.Function, state)
	}
	return nil
}

func shortHash(h string) string {
	if len(h) > 19 {
		return h[:19]
	}
	return h
}
