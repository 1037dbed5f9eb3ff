package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tfllm/tfllm"
	"github.com/tfllm/tfllm/engine"
	"github.com/tfllm/tfllm/lifecycle"
	"github.com/tfllm/tfllm/model"
	"github.com/tfllm/tfllm/retrieve"
)

// Run loads the model and serves requests until SIGINT or SIGTERM. It
// refuses to start when a live daemon already owns the record file.
func Run(ctx context.Context, cfg *tfllm.Config) error {
	recordPath := tfllm.RecordPath()
	if rec, err := lifecycle.ReadRecord(recordPath); err == nil && lifecycle.IsProcessAlive(rec.PID) {
		return fmt.Errorf("daemon already running (pid %d)", rec.PID)
	}

	modelPath, err := model.Ensure(ctx, tfllm.ResolveQuant(cfg))
	if err != nil {
		return fmt.Errorf("ensure model: %w", err)
	}

	handle, err := model.Load(ctx, model.Options{
		ModelPath:    modelPath,
		ServerBinary: tfllm.ResolveServerBinary(cfg),
		ContextSize:  cfg.Model.ContextSize,
		LoadTimeout:  cfg.LoadTimeout(),
	})
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer handle.Close()

	retriever := retrieve.New(retrieve.ManSource{}, cfg.RetrievalTTL(), cfg.Retrieval.Dimensions)
	defer retriever.Close()

	eng := engine.New(handle, retriever)
	eng.AskTopK = cfg.Retrieval.TopK

	srv, err := NewServer(tfllm.SocketPath(), eng)
	if err != nil {
		return err
	}
	defer srv.Close()

	if err := lifecycle.WriteRecord(recordPath, lifecycle.Record{
		PID:    os.Getpid(),
		Socket: srv.SocketPath(),
	}); err != nil {
		return fmt.Errorf("write daemon record: %w", err)
	}
	defer lifecycle.RemoveRecord(recordPath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		srv.Close()
	}()

	slog.Info("daemon ready", "socket", srv.SocketPath(), "pid", os.Getpid())
	return srv.Serve(ctx)
}
