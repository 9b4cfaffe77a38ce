package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-api-dashboard/aimodels"
	"github.com/jrsteele09/go-api-dashboard/hooks"
	"github.com/jrsteele09/go-api-dashboard/identity"
	"github.com/jrsteele09/go-api-dashboard/internal/config"
	apperrors "github.com/jrsteele09/go-api-dashboard/internal/errors"
	"github.com/jrsteele09/go-api-dashboard/internal/utils"
	"github.com/jrsteele09/go-api-dashboard/projects"
	"github.com/jrsteele09/go-api-dashboard/testruns"
)

// cli carries what the root command resolves before a subcommand runs.
type cli struct {
	options []appOption
	config  config.Config
}

type appFunc func(ctx context.Context, a *app, out io.Writer, args []string) error

// bind builds the app for the duration of one command run.
func (c *cli) bind(cmd *cobra.Command, fn appFunc) *cobra.Command {
	cmd.Annotations = map[string]string{requiresApp: "true"}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), c.config, c.options...)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(cmd.Context(), a, cmd.OutOrStdout(), args)
	}
	return cmd
}

// displayMessage prefers the user-facing message and falls back to the error text.
func displayMessage(err error) string {
	var d apperrors.Displayable
	if errors.As(err, &d) {
		return apperrors.DisplayMessage(err)
	}
	return err.Error()
}

func newTable(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
}

func (c *cli) newSignInCmd() *cobra.Command {
	var email, password string
	cmd := c.bind(&cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password",
		Args:  cobra.NoArgs,
	}, func(ctx context.Context, a *app, out io.Writer, _ []string) error {
		s, err := a.manager.SignIn(ctx, email, password)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%sSigned in%s as %s\n", Green, ResetColor, s.Email)
		return nil
	})
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", os.Getenv("DASHBOARD_PASSWORD"), "account password")
	return cmd
}

func (c *cli) newSignUpCmd() *cobra.Command {
	var req identity.SignUpRequest
	cmd := c.bind(&cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
	}, func(ctx context.Context, a *app, out io.Writer, _ []string) error {
		s, err := a.manager.SignUp(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%sAccount created%s for %s\n", Green, ResetColor, s.Email)
		return nil
	})
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Password, "password", os.Getenv("DASHBOARD_PASSWORD"), "account password")
	cmd.Flags().StringVar(&req.DisplayName, "name", "", "display name")
	return cmd
}

func (c *cli) newSignOutCmd() *cobra.Command {
	return c.bind(&cobra.Command{
		Use:   "signout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
	}, func(ctx context.Context, a *app, out io.Writer, _ []string) error {
		if err := a.manager.SignOut(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Signed out")
		return nil
	})
}

func (c *cli) newWhoAmICmd() *cobra.Command {
	return c.bind(&cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		Args:  cobra.NoArgs,
	}, func(ctx context.Context, a *app, out io.Writer, _ []string) error {
		s, ok := a.manager.Session()
		if !ok {
			fmt.Fprintln(out, "Not signed in")
			return nil
		}
		me := a.hooks.CurrentUser()
		defer me.Close()
		unread := a.hooks.UnreadCount()
		defer unread.Close()

		fmt.Fprintf(out, "%s (%s)\n", s.Email, s.PrincipalID)
		fmt.Fprintf(out, "  session issued %s, last login %s\n", s.IssuedAt.Format("2006-01-02 15:04"), s.LastLoginAt.Format("2006-01-02 15:04"))
		if u, err := me.Get(ctx); err == nil {
			fmt.Fprintf(out, "  backend user %s, %s account\n", utils.FirstNonEmpty(u.DisplayName, s.DisplayName, u.Email), utils.FirstNonEmpty(u.AccountType, string(projects.AccountIndividual)))
		} else {
			fmt.Fprintf(out, "  %sbackend user unavailable:%s %s\n", Yellow, ResetColor, displayMessage(err))
		}
		if n, err := unread.Get(ctx); err == nil {
			fmt.Fprintf(out, "  %d unread notifications\n", n)
		}
		return nil
	})
}

func (c *cli) newProjectsCmd() *cobra.Command {
	var params projects.ListParams
	cmd := c.bind(&cobra.Command{
		Use:   "projects",
		Short: "List projects",
		Args:  cobra.NoArgs,
	}, func(ctx context.Context, a *app, out io.Writer, _ []string) error {
		q := a.hooks.Projects(params)
		defer q.Close()
		result, err := q.Get(ctx)
		if err != nil {
			return err
		}

		w := newTable(out)
		fmt.Fprintln(w, "ID\tNAME\tTYPE\tENDPOINTS\tTESTS\tSTATUS")
		for _, p := range result.Results {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", p.ID, p.Name, p.Type, p.EndpointsCount, p.TestsCount, p.Status)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s%d of %d projects%s\n", Gray, len(result.Results), result.Count, ResetColor)
		return nil
	})
	cmd.Flags().IntVar(&params.Page, "page", 0, "page number")
	cmd.Flags().StringVar(&params.Search, "search", "", "filter by name")
	return cmd
}

func (c *cli) newProjectCmd() *cobra.Command {
	return c.bind(&cobra.Command{
		Use:   "project <id>",
		Short: "Show one project",
		Args:  cobra.ExactArgs(1),
	}, func(ctx context.Context, a *app, out io.Writer, args []string) error {
		q := a.hooks.Project(args[0])
		defer q.Close()
		p, err := q.Get(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s(%s)%s\n", p.Name, Gray, p.ID, ResetColor)
		if p.Description != "" {
			fmt.Fprintln(out, p.Description)
		}
		fmt.Fprintf(out, "  type %s, %s account, status %s\n", p.Type, p.AccountType, p.Status)
		if p.OpenAPIURL != "" {
			fmt.Fprintf(out, "  spec %s\n", p.OpenAPIURL)
		}
		fmt.Fprintf(out, "  %d endpoints, %d tests\n", p.EndpointsCount, p.TestsCount)
		return nil
	})
}

func (c *cli) newEndpointsCmd() *cobra.Command {
	return c.bind(&cobra.Command{
		Use:   "endpoints <id>",
		Short: "List the endpoints of a project",
		Args:  cobra.ExactArgs(1),
	}, func(ctx context.Context, a *app, out io.Writer, args []string) error {
		q := a.hooks.Endpoints(args[0])
		defer q.Close()
		endpoints, err := q.Get(ctx)
		if err != nil {
			return err
		}
		w := newTable(out)
		for _, e := range endpoints {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", colourMethod(e.Method), e.Path, e.Tag, e.Summary)
		}
		return w.Flush()
	})
}

func (c *cli) newSpecCmd() *cobra.Command {
	return c.bind(&cobra.Command{
		Use:   "spec <openapi-url>",
		Short: "Show the operations of an OpenAPI document",
		Args:  cobra.ExactArgs(1),
	}, func(ctx context.Context, a *app, out io.Writer, args []string) error {
		q := a.hooks.SpecDocument(args[0])
		defer q.Close()
		doc, err := q.Get(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s (OpenAPI %s)\n", doc.Info.Title, doc.Info.Version, doc.Version())
		for _, s := range doc.Servers {
			fmt.Fprintf(out, "  server %s\n", s.URL)
		}
		w := newTable(out)
		for _, op := range doc.Operations() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", colourMethod(op.Method), op.Path, op.Summary)
		}
		return w.Flush()
	})
}

func (c *cli) newCreateProjectCmd() *cobra.Command {
	var (
		req         projects.CreateRequest
		accountType string
		specFile    string
	)
	cmd := c.bind(&cobra.Command{
		Use:   "create-project",
		Short: "Create a project from an OpenAPI URL or file",
		Args:  cobra.NoArgs,
	}, func(ctx context.Context, a *app, out io.Writer, _ []string) error {
		req.AccountType = projects.AccountType(accountType)
		if specFile != "" {
			f, err := os.Open(specFile)
			if err != nil {
				return errors.Wrap(err, "opening OpenAPI file")
			}
			defer f.Close()
			req.Type = projects.TypeFile
			req.File = &projects.File{Name: filepath.Base(specFile), Content: f}
		}

		p, err := a.hooks.CreateProject.Do(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%sCreated%s project %s (%s)\n", Green, ResetColor, p.Name, p.ID)
		return nil
	})
	flags := cmd.Flags()
	flags.StringVar(&req.Name, "name", "", "project name")
	flags.StringVar(&req.Description, "description", "", "project description")
	flags.StringVar(&req.OpenAPIURL, "url", "", "OpenAPI document URL")
	flags.StringVar(&specFile, "file", "", "OpenAPI document file")
	flags.StringVar(&accountType, "account-type", "", "individual or organization")
	cmd.MarkFlagsMutuallyExclusive("url", "file")
	return cmd
}

func (c *cli) newDeleteProjectCmd() *cobra.Command {
	return c.bind(&cobra.Command{
		Use:   "delete-project <id>",
		Short: "Delete a project",
		Args:  cobra.ExactArgs(1),
	}, func(ctx context.Context, a *app, out io.Writer, args []string) error {
		if _, err := a.hooks.DeleteProject.Do(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted project %s\n", args[0])
		return nil
	})
}

func (c *cli) newRunTestsCmd() *cobra.Command {
	var (
		cfg         testruns.RunConfig
		endpointIDs []string
	)
	cmd := c.bind(&cobra.Command{
		Use:   "run-tests <id>",
		Short: "Run the generated tests of a project",
		Args:  cobra.ExactArgs(1),
	}, func(ctx context.Context, a *app, out io.Writer, args []string) error {
		cfg.EndpointIDs = endpointIDs
		if cfg.ModelID == "" {
			models := a.hooks.AIModels()
			defer models.Close()
			if list, err := models.Get(ctx); err == nil {
				if m, ok := aimodels.Default(list); ok {
					cfg.ModelID = m.ID
				}
			}
		}

		run, err := a.hooks.RunTests.Do(ctx, hooks.TestRunRequest{ProjectID: args[0], Config: cfg})
		if err != nil {
			return err
		}
		printRun(out, run)
		return nil
	})
	flags := cmd.Flags()
	flags.StringSliceVar(&endpointIDs, "endpoints", nil, "endpoint ids, all when empty")
	flags.StringVar(&cfg.ModelID, "model", "", "AI model id, the default model when empty")
	flags.StringVar(&cfg.BaseURL, "base-url", "", "override the API base URL")
	flags.IntVar(&cfg.TimeoutSeconds, "timeout", 0, "per request timeout in seconds")
	return cmd
}

func (c *cli) newRunsCmd() *cobra.Command {
	var runID string
	cmd := c.bind(&cobra.Command{
		Use:   "runs <id>",
		Short: "List the test runs of a project",
		Args:  cobra.ExactArgs(1),
	}, func(ctx context.Context, a *app, out io.Writer, args []string) error {
		if runID != "" {
			q := a.hooks.TestRun(args[0], runID)
			defer q.Close()
			run, err := q.Get(ctx)
			if err != nil {
				return err
			}
			printRun(out, run)
			return nil
		}

		q := a.hooks.TestRuns(args[0])
		defer q.Close()
		runs, err := q.Get(ctx)
		if err != nil {
			return err
		}
		w := newTable(out)
		fmt.Fprintln(w, "ID\tCREATED\tTOTAL\tPASSED\tFAILED\tRATE")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.1f%%\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Total, r.Passed, r.Failed, r.Rate())
		}
		return w.Flush()
	})
	cmd.Flags().StringVar(&runID, "run", "", "show one run in detail")
	return cmd
}

func printRun(out io.Writer, run *testruns.TestRun) {
	fmt.Fprintf(out, "Run %s: %d/%d passed (%.1f%%) in %.1fs\n", run.ID, run.Passed, run.Total, run.Rate(), run.DurationSeconds)
	w := newTable(out)
	for _, r := range run.Results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.0fms\t%s\t%s\n", colourMethod(r.Method), r.Path, r.StatusCode, r.ResponseTimeMs, colourStatus(r.Status), r.Error)
	}
	_ = w.Flush()
}

func (c *cli) newPerformanceCmd() *cobra.Command {
	var window string
	cmd := c.bind(&cobra.Command{
		Use:   "performance <id>",
		Short: "Summarise test performance over a window",
		Args:  cobra.ExactArgs(1),
	}, func(ctx context.Context, a *app, out io.Writer, args []string) error {
		q := a.hooks.Performance(args[0], testruns.Range(window))
		defer q.Close()
		perf, err := q.Get(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d runs over %s, %.1f%% success, avg %.0fms, p95 %.0fms\n",
			perf.TotalRuns, perf.Range, perf.SuccessRate, perf.AvgResponseTimeMs, perf.P95ResponseTimeMs)
		return nil
	})
	cmd.Flags().StringVar(&window, "range", string(testruns.Range7d), "reporting window: 24h, 7d, 30d or 90d")
	return cmd
}

func (c *cli) newModelsCmd() *cobra.Command {
	return c.bind(&cobra.Command{
		Use:   "models",
		Short: "List the available AI models",
		Args:  cobra.NoArgs,
	}, func(ctx context.Context, a *app, out io.Writer, _ []string) error {
		q := a.hooks.AIModels()
		defer q.Close()
		models, err := q.Get(ctx)
		if err != nil {
			return err
		}
		w := newTable(out)
		for _, m := range models {
			marker := ""
			if m.IsDefault {
				marker = Green + "default" + ResetColor
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Provider, marker)
		}
		return w.Flush()
	})
}

// newWatchCmd keeps the unread counter mounted and prints every change until interrupted.
func (c *cli) newWatchCmd() *cobra.Command {
	return c.bind(&cobra.Command{
		Use:   "watch",
		Short: "Print the unread notification count as it changes",
		Args:  cobra.NoArgs,
	}, func(ctx context.Context, a *app, out io.Writer, _ []string) error {
		if _, ok := a.manager.Session(); !ok {
			return errors.Wrap(apperrors.ErrNotAuthenticated, "sign in first")
		}
		q := a.hooks.UnreadCount()
		defer q.Close()

		go func() {
			last := -1
			for r := range q.Updates() {
				if r.Err != nil {
					a.ui.NotifyError(r.Err)
					continue
				}
				if r.HasData && r.Data != last {
					last = r.Data
					fmt.Fprintf(out, "%s unread notifications\n", Cyan+fmt.Sprint(r.Data)+ResetColor)
				}
			}
		}()
		waitForStopSignal(ctx)
		return nil
	})
}
