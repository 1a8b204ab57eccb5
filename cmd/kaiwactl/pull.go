package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/ashita-ai/kaiwa/internal/integrity"
	"github.com/ashita-ai/kaiwa/internal/model"
	"github.com/ashita-ai/kaiwa/sdk/go/kaiwa"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// runPull downloads a prompt version from a running server in the format
// the other commands read.
func runPull(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("pull", stderr)
	server := fs.String("server", envOr("KAIWA_SERVER", "http://localhost:8080"), "kaiwa server URL")
	apiKey := fs.String("api-key", os.Getenv("KAIWA_API_KEY"), "API key, empty when the server has auth disabled")
	outPath := fs.String("o", "", "write to this file instead of stdout")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(pos) < 1 || len(pos) > 2 {
		fmt.Fprintln(stderr, "usage: kaiwactl pull [-server url] [-api-key key] [-o file] <name> [ref]")
		return errUsage
	}
	ref := "latest"
	if len(pos) == 2 {
		ref = pos[1]
	}

	client, err := kaiwa.NewClient(kaiwa.Config{
		BaseURL: *server,
		APIKey:  *apiKey,
		Role:    string(model.AccessViewer),
		Timeout: *timeout,
	})
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pv, err := client.GetPromptVersion(ctx, pos[0], ref)
	if err != nil {
		if kaiwa.IsNotFound(err) {
			return fmt.Errorf("prompt %q has no version %q", pos[0], ref)
		}
		return err
	}

	var local model.PromptVersion
	if err := json.Unmarshal(pv.Raw, &local); err != nil {
		return fmt.Errorf("decode prompt version: %w", err)
	}
	if local.ContentHash != "" && !integrity.VerifyContentHash(local.ContentHash, local) {
		fmt.Fprintf(stderr, "kaiwactl: warning: %s@%s: content_hash does not match the prompt content\n", pos[0], ref)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, pv.Raw, "", "  "); err != nil {
		return fmt.Errorf("format prompt version: %w", err)
	}
	buf.WriteByte('\n')

	if *outPath == "" {
		_, err := stdout.Write(buf.Bytes())
		return err
	}
	if err := os.WriteFile(*outPath, buf.Bytes(), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(stderr, "wrote %s version %s to %s\n", pos[0], local.ID, *outPath)
	return nil
}
