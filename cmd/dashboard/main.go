package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/go-api-dashboard/internal/config"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", Red, displayMessage(err), ResetColor)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, options ...appOption) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(options...)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// requiresApp marks commands that talk to the backend or the identity provider.
const requiresApp = "requires-app"

func newRootCmd(options ...appOption) *cobra.Command {
	c := &cli{options: options}
	root := &cobra.Command{
		Use:           "dashboard",
		Short:         "Manage API test projects, runs and models from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			conf := config.New()
			log.Logger = newLogger(conf, cmd.ErrOrStderr())
			if cmd.Annotations[requiresApp] == "" {
				return nil
			}
			c.config = conf
			return config.Validate(conf)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			displayAppname(cmd.OutOrStdout(), config.New().GetAppName())
			return cmd.Help()
		},
	}

	root.AddCommand(
		c.newSignInCmd(),
		c.newSignUpCmd(),
		c.newSignOutCmd(),
		c.newWhoAmICmd(),
		c.newProjectsCmd(),
		c.newProjectCmd(),
		c.newEndpointsCmd(),
		c.newSpecCmd(),
		c.newCreateProjectCmd(),
		c.newDeleteProjectCmd(),
		c.newRunTestsCmd(),
		c.newRunsCmd(),
		c.newPerformanceCmd(),
		c.newModelsCmd(),
		c.newWatchCmd(),
	)
	return root
}

// newLogger writes human readable output in DEV and JSON lines everywhere else.
func newLogger(c config.EnvConfig, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || c.GetLogLevel() == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	if c.GetEnv() == "DEV" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// waitForStopSignal blocks until ctx is cancelled by SIGINT or SIGTERM.
func waitForStopSignal(ctx context.Context) {
	<-ctx.Done()
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	figure.Write(w, myFigure)
	fmt.Fprintln(w)
}
