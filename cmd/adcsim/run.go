package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/SalahAli20/ADCAI/internal/events"
	"github.com/SalahAli20/ADCAI/internal/exam"
)

func newRunCmd(f *rootFlags) *cobra.Command {
	var criteria, scenario string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation in the terminal",
		Long: "Run one simulation in the terminal. Speak to the patient when\n" +
			"\"Listening...\" appears. Press Ctrl+C to end the interview early;\n" +
			"the assessment is still produced. Press Ctrl+C again to abort.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSession(cmd.Context(), f, criteria, scenario)
		},
	}
	cmd.Flags().StringVar(&criteria, "criteria", exam.DefaultCriteria, "ADC assessment criteria")
	cmd.Flags().StringVar(&scenario, "scenario", exam.DefaultScenario, "patient scenario")
	return cmd
}

func runSession(parent context.Context, f *rootFlags, criteria, scenario string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// After the first signal the default handler is restored, so a second
	// Ctrl+C kills the process.
	context.AfterFunc(ctx, stop)

	rt, err := setup(ctx, f)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := rt.shutdownContext(ctx)
		defer cancel()
		rt.close(sctx)
	}()

	id := uuid.NewString()

	// The renderer outlives the interrupt so the assessment is still shown.
	rctx, cancelRender := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRender()
	evs, err := rt.app.Bus().Subscribe(rctx, id)
	if err != nil {
		return err
	}
	rendered := make(chan error, 1)
	go func() { rendered <- events.Render(rctx, os.Stdout, evs) }()

	res, runErr := rt.app.RunSession(ctx, id, criteria, scenario)
	if res == nil && runErr != nil && !errors.Is(runErr, exam.ErrNoCriteria) {
		// The session was never built, so no done event will arrive.
		cancelRender()
	}
	renderErr := <-rendered

	switch {
	case errors.Is(runErr, exam.ErrNoCriteria):
		// Already shown by the renderer.
		return fmt.Errorf("no criteria given")
	case runErr != nil:
		return runErr
	}
	if res != nil && res.Interrupted {
		fmt.Fprintln(os.Stdout, "Interview ended early.")
	}
	return renderErr
}
