package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/genglossary/genglossary/internal/httpapi"
	"github.com/genglossary/genglossary/internal/logbus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Run the embedded HTTP server in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		reg, err := openRegistry(ctx)
		if err != nil {
			return err
		}
		defer reg.Close()

		log := slog.New(slog.NewTextHandler(os.Stderr, nil))
		server := httpapi.New(reg, log)

		if sink, closeSink, err := newJSONLSink(); err != nil {
			log.Warn("pipeline.jsonl sink disabled", "error", err)
		} else {
			defer closeSink()
			server.SetLogSink(sink)
		}

		log.Info("serving", "addr", serveAddr)
		return http.ListenAndServe(serveAddr, server.Handler())
	},
}

// newJSONLSink opens ~/.genglossary/logs/pipeline.jsonl, rotated by
// lumberjack (spec §6 "receives one JSONL line per Log Bus event across
// all projects, for offline debugging independent of the SSE stream").
func newJSONLSink() (func(project string, event logbus.Event), func() error, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil, err
	}
	path := filepath.Join(home, ".genglossary", "logs", "pipeline.jsonl")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, err
	}

	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
	}

	type line struct {
		Project string `json:"project"`
		logbus.Event
	}

	sink := func(project string, event logbus.Event) {
		data, err := json.Marshal(line{Project: project, Event: event})
		if err != nil {
			return
		}
		data = append(data, '\n')
		_, _ = lj.Write(data)
	}
	return sink, lj.Close, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:7777", "address to bind the HTTP server to")
	rootCmd.AddCommand(serveCmd)
}
