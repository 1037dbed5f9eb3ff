package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tfllm/tfllm"
	"github.com/tfllm/tfllm/client"
	"github.com/tfllm/tfllm/engine"
	"github.com/tfllm/tfllm/model"
	"github.com/tfllm/tfllm/retrieve"
	"github.com/tfllm/tfllm/shell"
)

// terminalLogLines is how much scraped terminal output accompanies a fix
// request when a script(1) transcript is available.
const terminalLogLines = 30

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a question about command-line tools",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			cfg, err := tfllm.LoadConfig()
			if err != nil {
				return err
			}

			resp := answer(cmd.Context(), cfg, tfllm.Request{
				Action: tfllm.ActionAsk,
				Query:  query,
			})
			if !resp.Success {
				return fmt.Errorf("%s", resp.Error)
			}
			fmt.Println(resp.Result)
			return nil
		},
	}
}

func newFixCmd() *cobra.Command {
	var execute bool
	cmd := &cobra.Command{
		Use:   "fix [command...]",
		Short: "Suggest a fix for a failed command",
		Long: `Suggest a corrected command line for a failed command. With no
arguments the failing command is taken from the shell integration
environment (see "tfllm init").`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep := failureReport(args)
			if rep.Command == "" {
				return fmt.Errorf("no command to fix: pass one as arguments or install the shell integration with \"tfllm init\"")
			}
			return runFix(cmd.Context(), rep, execute)
		},
	}
	cmd.Flags().BoolVarP(&execute, "execute", "e", false, "offer to run the suggested command")
	return cmd
}

// fix-internal is the entry point the shell alias calls. It behaves like
// fix -e but reads its report exclusively from the alias environment.
func newFixInternalCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "fix-internal",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rep := failureReport(nil)
			if rep.Command == "" {
				return fmt.Errorf("nothing to fix: no previous command recorded")
			}
			return runFix(cmd.Context(), rep, true)
		},
	}
}

func runFix(ctx context.Context, rep engine.Report, execute bool) error {
	cfg, err := tfllm.LoadConfig()
	if err != nil {
		return err
	}

	resp := answer(ctx, cfg, tfllm.Request{
		Action:   tfllm.ActionFix,
		Command:  rep.Command,
		ExitCode: rep.ExitCode,
		Stdout:   rep.Stdout,
		Stderr:   rep.Stderr,
	})
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	if resp.Result == "" {
		fmt.Println("No fix suggested.")
		return nil
	}

	fmt.Println(resp.Result)
	if execute && confirm(resp.Result) {
		return runSuggestion(resp.Result)
	}
	return nil
}

// failureReport assembles a fix request from explicit arguments or, when
// absent, from the shell integration environment and terminal transcript.
func failureReport(args []string) engine.Report {
	rep := engine.Report{ExitCode: 1}
	if len(args) > 0 {
		rep.Command = strings.Join(args, " ")
	} else {
		rep.Command = os.Getenv("__TFLLM_LAST_CMD")
	}
	if code, err := strconv.Atoi(os.Getenv("__TFLLM_EXIT_CODE")); err == nil {
		rep.ExitCode = code
	}
	rep.Stderr = shell.ReadTerminalLog(terminalLogLines)
	return rep
}

// answer tries the daemon first and falls back to a direct in-process
// engine when no daemon is reachable or the daemon's answer is a failure.
func answer(ctx context.Context, cfg *tfllm.Config, req tfllm.Request) *tfllm.Response {
	if resp, ok := daemonAnswer(client.New(cfg), req); ok {
		return resp
	}
	return direct(ctx, cfg, req)
}

// daemonAnswer attempts the request against a running daemon. The second
// return is false when no daemon is reachable or its reply is unusable, in
// which case the caller runs the request locally instead.
func daemonAnswer(c *client.Client, req tfllm.Request) (*tfllm.Response, bool) {
	if !c.IsServerRunning() {
		slog.Debug("no daemon running, using direct engine")
		return nil, false
	}
	resp := c.Send(req)
	if !resp.Success {
		slog.Debug("daemon request failed, using direct engine", "error", resp.Error)
		return nil, false
	}
	return resp, true
}

// direct loads the model into this process for a single request. Slow, but
// it keeps ask and fix usable when the daemon is down.
func direct(ctx context.Context, cfg *tfllm.Config, req tfllm.Request) *tfllm.Response {
	modelPath, err := model.Ensure(ctx, tfllm.ResolveQuant(cfg))
	if err != nil {
		return &tfllm.Response{Success: false, Error: "ensure model: " + err.Error()}
	}
	handle, err := model.Load(ctx, model.Options{
		ModelPath:    modelPath,
		ServerBinary: tfllm.ResolveServerBinary(cfg),
		ContextSize:  cfg.Model.ContextSize,
		LoadTimeout:  cfg.LoadTimeout(),
	})
	if err != nil {
		return &tfllm.Response{Success: false, Error: "load model: " + err.Error()}
	}
	defer handle.Close()

	retriever := retrieve.New(retrieve.ManSource{}, cfg.RetrievalTTL(), cfg.Retrieval.Dimensions)
	defer retriever.Close()
	eng := engine.New(handle, retriever)
	eng.AskTopK = cfg.Retrieval.TopK

	var result string
	switch req.Action {
	case tfllm.ActionAsk:
		result, err = eng.Ask(ctx, req.Query)
	case tfllm.ActionFix:
		result, err = eng.Fix(ctx, engine.Report{
			Command:  req.Command,
			ExitCode: req.ExitCode,
			Stdout:   req.Stdout,
			Stderr:   req.Stderr,
		})
	default:
		return &tfllm.Response{Success: false, Error: "unknown action: " + req.Action}
	}
	if err != nil {
		return &tfllm.Response{Success: false, Error: err.Error()}
	}
	return &tfllm.Response{Success: true, Result: result}
}

func confirm(suggestion string) bool {
	fmt.Printf("Run %q? [y/N] ", suggestion)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func runSuggestion(suggestion string) error {
	cmd := exec.Command("sh", "-c", suggestion)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
