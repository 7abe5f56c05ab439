package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tokenladder/internal/integrations/llm"
	"tokenladder/internal/prompts"
	"tokenladder/internal/runner"
)

type runOptions struct {
	all       bool
	inputPath string
	asJSON    bool
}

type runJSON struct {
	Prompt        string `json:"prompt"`
	CorrelationID string `json:"correlation_id"`
	Outcome       string `json:"outcome"`
	Attempts      int    `json:"attempts"`
	Baseline      int    `json:"baseline_tokens"`
	FinalBudget   int    `json:"final_tokens"`
	Finish        string `json:"finish_reason,omitempty"`
	Output        string `json:"output,omitempty"`
	Error         string `json:"error,omitempty"`
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <prompt>...",
		Short: "Run catalog prompts through the token escalation ladder",
		Long: `Run one or more prompts from the catalog. Each run starts from the
prompt's learned baseline and escalates the token budget on truncation.
A run that needed escalation raises the stored baseline for next time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrompts(cmd, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.all, "all", false, "run every prompt in the catalog")
	cmd.Flags().StringVar(&opts.inputPath, "input", "", "file with input text for the prompt template (- for stdin)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print results as JSON")
	return cmd
}

func runPrompts(cmd *cobra.Command, args []string, opts runOptions) error {
	if opts.all == (len(args) > 0) {
		return fmt.Errorf("name at least one prompt or pass --all, not both")
	}
	input, err := readInput(cmd.InOrStdin(), opts.inputPath)
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.Close()

	catalog, err := prompts.LoadCatalog(e.cfg.PromptsPath)
	if err != nil {
		return err
	}
	if err := catalog.CheckCap(e.cfg.EscalationTokenCap); err != nil {
		return err
	}
	names := args
	if opts.all {
		names = catalog.Names()
	}

	client, err := llm.NewClient(e.cfg)
	if err != nil {
		return err
	}
	ctrl, err := runner.NewController(e.cfg, e.store)
	if err != nil {
		return err
	}
	var alerts runner.Alerter
	if n := e.notifier(); n != nil {
		alerts = n
	}
	r := runner.New(e.cfg, client, ctrl, e.store, catalog, alerts)

	results, runErr := r.RunAll(cmd.Context(), names, input)
	// Baseline writes are detached from the runs; join them before the
	// database closes.
	r.Wait()

	if err := printResults(cmd.OutOrStdout(), results, opts.asJSON); err != nil {
		return err
	}
	return runErr
}

func readInput(stdin io.Reader, path string) (string, error) {
	switch path {
	case "":
		return "", nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return string(data), nil
	}
}

func printResults(w io.Writer, results []runner.Result, asJSON bool) error {
	if asJSON {
		out := make([]runJSON, 0, len(results))
		for _, res := range results {
			item := runJSON{
				Prompt:        res.Run.PromptName,
				CorrelationID: res.Run.CorrelationID,
				Outcome:       string(res.Run.Outcome),
				Attempts:      res.Run.Attempts,
				Baseline:      res.Run.BaselineTokens,
				FinalBudget:   res.Run.FinalTokens,
				Finish:        string(res.Run.Finish),
				Output:        res.Output,
			}
			if res.Err != nil {
				item.Error = res.Err.Error()
			}
			out = append(out, item)
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		outcome := string(res.Run.Outcome)
		if outcome == "" {
			outcome = "not run"
		}
		fmt.Fprintf(w, "== %s (%s, attempts=%d, budget %d->%d) ==\n",
			res.Run.PromptName, outcome, res.Run.Attempts, res.Run.BaselineTokens, res.Run.FinalTokens)
		if res.Err != nil {
			fmt.Fprintf(w, "error: %v\n", res.Err)
			continue
		}
		fmt.Fprintln(w, strings.TrimRight(res.Output, "\n"))
	}
	return nil
}
