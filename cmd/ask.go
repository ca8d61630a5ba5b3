package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bz888/modeler/internal/logger"
	"github.com/bz888/modeler/internal/session"
	"github.com/bz888/modeler/internal/supervisor"
	"github.com/spf13/cobra"
)

var (
	askSave string
	askLoad string
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Stream one answer to stdout",
	Long: `Send a single prompt and stream the answer to stdout. The prompt is read
from stdin when no argument is given. Ctrl-C stops the answer and keeps what
has arrived.`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askSave, "save", "", "Save the conversation under this key afterwards")
	askCmd.Flags().StringVar(&askLoad, "load", "", "Continue the conversation saved under this key")
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logger.InitLogger(logger.Config{
		Dev:     cfg.Dev,
		LogPath: cfg.Log.Path,
		Level:   cfg.Log.Level,
		Console: cmd.ErrOrStderr(),
	}); err != nil {
		return err
	}
	defer logger.Close()

	prompt := strings.Join(args, " ")
	if strings.TrimSpace(prompt) == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		prompt = string(data)
	}

	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if askLoad != "" {
		if err := a.sup.Load(ctx, askLoad); err != nil {
			return err
		}
	}

	sent, err := ask(ctx, a.sup, prompt, cmd.OutOrStdout())
	if !sent {
		return err
	}

	if askSave != "" {
		// Save even after Ctrl-C; the partial answer is part of the transcript.
		if err := a.sup.Save(context.WithoutCancel(ctx), askSave); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "saved as %s\n", askSave)
	}
	return err
}

// ask sends prompt and copies deltas to out until the terminal update. sent
// reports whether the prompt made it into the transcript. A cancelled answer
// is not an error.
func ask(ctx context.Context, sup *supervisor.Supervisor, prompt string, out io.Writer) (sent bool, err error) {
	turnID, err := sup.Send(ctx, prompt)
	if err != nil {
		return false, err
	}

	for up := range sup.Updates() {
		if up.TurnID != turnID {
			continue
		}
		switch up.Kind {
		case supervisor.UpdateDelta:
			fmt.Fprint(out, up.Text)
		case supervisor.UpdateTerminal:
			fmt.Fprintln(out)
			sup.Wait()
			if up.Outcome == session.OutcomeFailed {
				return true, up.Err
			}
			return true, nil
		}
	}
	return true, nil
}
