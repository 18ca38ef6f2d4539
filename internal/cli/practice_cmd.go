package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/practice"
	"github.com/spf13/cobra"
)

const practiceHelp = `Type your reply and press Enter.
  /history  show the conversation so far
  /end      finish and show feedback
  /quit     leave without feedback`

func newPracticeCmd() *cobra.Command {
	var (
		req       practice.StartRequest
		storeFlag string
	)

	cmd := &cobra.Command{
		Use:   "practice",
		Short: "Run a practice conversation in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if storeFlag != "" {
				cfg.Store.Driver = storeFlag
			}
			// Keep the conversation readable unless asked otherwise.
			if logLevel == "" {
				cfg.Logging.Level = "warn"
			}
			logFile, err := configureLogging(cfg.Logging, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if logFile != nil {
				defer logFile.Close()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				a.Close(shutdownCtx)
			}()

			return runPractice(ctx, a.practice, req, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&req.UserName, "name", "", "learner name")
	cmd.Flags().StringVar(&req.Difficulty, "difficulty", "", "easy, medium or hard")
	cmd.Flags().IntVar(&req.DurationSeconds, "duration", 0, "session length in seconds")
	cmd.Flags().StringVar(&req.Prompt, "scenario", "", "describe your own scenario instead of a random one")
	cmd.Flags().StringVar(&storeFlag, "store", "memory", "session store for this run (memory, sqlite, postgres; empty uses config)")

	return cmd
}

// runPractice drives one session from lines read on in until /end, /quit,
// EOF or the session time limit.
func runPractice(ctx context.Context, svc *practice.Service, req practice.StartRequest, in io.Reader, out io.Writer) error {
	sess, err := svc.StartSession(ctx, req)
	if err != nil {
		return err
	}

	sc := sess.Scenario
	fmt.Fprintf(out, "Scenario: %s (%s)\n", sc.Category, sc.Level)
	fmt.Fprintf(out, "  %s\n", sc.Description)
	fmt.Fprintf(out, "  Your partner: %s\n", sc.Role)
	for _, o := range sc.Objectives {
		fmt.Fprintf(out, "  Goal: %s\n", o)
	}
	if len(sc.VocabularyFocus) > 0 {
		fmt.Fprintf(out, "  Try to use: %s\n", strings.Join(sc.VocabularyFocus, ", "))
	}
	fmt.Fprintf(out, "  Time limit: %s\n\n%s\n\n", time.Duration(sess.DurationSeconds)*time.Second, practiceHelp)

	scanner := bufio.NewScanner(in)
loop:
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			fmt.Fprintln(out, "Bye.")
			return nil
		case "/end":
			break loop
		case "/history":
			turns, err := svc.History(ctx, sess.ID)
			if err != nil {
				return err
			}
			printHistory(out, turns)
			continue
		}

		turn, err := svc.SubmitTurn(ctx, sess.ID, line)
		switch {
		case errors.Is(err, domain.ErrSessionExpired):
			fmt.Fprintln(out, "Time is up.")
			break loop
		case errors.Is(err, domain.ErrGeneration):
			fmt.Fprintf(out, "! %v (try again)\n", err)
			continue
		case err != nil:
			return err
		}

		fmt.Fprintf(out, "%s: %s\n", sc.Role, turn.AIResponse)
		for i, s := range turn.Suggestions {
			fmt.Fprintf(out, "   %d. %s\n", i+1, s.Text)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fb, err := svc.EndSessionFeedback(ctx, sess.ID)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	printFeedback(out, fb)
	return nil
}

func printHistory(out io.Writer, turns []domain.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(out, "(no turns yet)")
		return
	}
	for _, t := range turns {
		fmt.Fprintf(out, "%d. You: %s\n   AI:  %s\n", t.Number, t.UserInput, t.AIResponse)
	}
}

// printFeedback renders a score report.
func printFeedback(out io.Writer, fb *domain.Feedback) {
	m := fb.Metrics
	fmt.Fprintf(out, "Overall:     %.2f (%s)\n", m.Overall, m.Level)
	fmt.Fprintf(out, "Naturalness: %.2f\n", m.Naturalness)
	fmt.Fprintf(out, "Clarity:     %.2f\n", m.Clarity)
	fmt.Fprintf(out, "Vocabulary:  %.2f\n", m.Vocabulary)
	fmt.Fprintf(out, "Pace:        %.2f\n", m.Pace)
	fmt.Fprintf(out, "Relevance:   %.2f\n", fb.Relevance)
	fmt.Fprintf(out, "Coherent:    %v\n", fb.Coherent)
	for _, msg := range fb.Messages {
		fmt.Fprintf(out, "  - %s\n", msg)
	}
	for _, s := range fb.Suggestions {
		fmt.Fprintf(out, "  * %s\n", s)
	}
}
