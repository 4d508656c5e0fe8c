package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fastygo/rolegate/internal/config"
	"github.com/fastygo/rolegate/pkg/logger"
)

func main() {
	var (
		logLevel = envOr("LOG_LEVEL", "warn")
		out      = envOr("ROLECTL_OUT", "text")
	)

	root := &cobra.Command{
		Use:           "rolectl",
		Short:         "Operator tooling for the role gate: credentials, resolution and migrations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level (env LOG_LEVEL)")
	root.PersistentFlags().StringVar(&out, "out", out, "Output format: json|text")

	newLogger := func() *zap.Logger {
		l, err := logger.New(logger.Config{Level: logLevel, Encoding: "console", Service: "rolectl"})
		if err != nil {
			return zap.NewNop()
		}
		return l
	}
	loadConfig := func() (*config.Config, error) {
		return config.Load()
	}
	printer := &printer{format: &out}

	root.AddCommand(
		newDeriveCmd(printer),
		newResolveCmd(printer, loadConfig, newLogger),
		newMigrateCmd(loadConfig, newLogger),
	)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type printer struct {
	format *string
}

// print writes v as indented JSON, or through text when the format is text.
func (p *printer) print(v any, text func() string) {
	if *p.format == "json" || text == nil {
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(b))
		return
	}
	fmt.Println(text())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
