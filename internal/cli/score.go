package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/soyeahso/parley/internal/domain"
	"github.com/soyeahso/parley/internal/scoring"
	"github.com/spf13/cobra"
)

func newScoreCmd() *cobra.Command {
	var (
		level  string
		vocab  []string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "score <session.json|->",
		Short: "Score a saved session transcript",
		Long: `Score reads a session as returned by GET /sessions/{id} (or "-" for stdin)
and prints the feedback report. The scenario's level and vocabulary are used
unless overridden by flags.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := readSession(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			lvl := sess.Scenario.Level.Or(sess.Level)
			if level != "" {
				lvl = domain.Level(level)
				if !lvl.Valid() {
					return fmt.Errorf("unknown level %q", level)
				}
			}
			target := sess.Scenario.VocabularyFocus
			if cmd.Flags().Changed("vocab") {
				target = vocab
			}

			fb := scoring.Score(sess.Turns, target, lvl)
			fb.GeneratedAt = time.Now().UTC()

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(fb)
			}
			fmt.Fprintf(out, "Session %s: %d turn(s)\n\n", sess.ID, len(sess.Turns))
			printFeedback(out, &fb)
			return nil
		},
	}

	cmd.Flags().StringVar(&level, "level", "", "level to label the result (A2, B1, B2)")
	cmd.Flags().StringSliceVar(&vocab, "vocab", nil, "target vocabulary (comma separated)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print feedback as JSON")

	return cmd
}

// readSession decodes a session record from a file, or from stdin when path
// is "-".
func readSession(path string, stdin io.Reader) (*domain.Session, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var sess domain.Session
	if err := json.NewDecoder(r).Decode(&sess); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", path, err)
	}
	return &sess, nil
}
