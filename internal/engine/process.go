package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// Event kind discriminators used on the wire between the external
// archiver process and this daemon.
const (
	kindStreamInfo       = "stream_info"
	kindFragment         = "fragment"
	kindFormatSelection  = "format_selection"
	kindStreamMux        = "stream_mux"
	kindStreamMuxProg    = "stream_mux_progress"
	kindStreamUnavail    = "stream_unavailable"
	kindJobFinished      = "job_finished"
	kindFailedOutputMove = "job_failed_output_move"
	kindFreeText         = "text"
)

// eventEnvelope is one line of the engine's NDJSON event stream.
type eventEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// DecodeEvent decodes a single envelope line into an Event. Unknown
// kinds return (nil, nil) so the stream reader can skip them; new
// engine versions may emit kinds this build does not know.
func DecodeEvent(line []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	unmarshal := func(v any) error {
		if len(env.Payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Payload, v); err != nil {
			return fmt.Errorf("decode %s payload: %w", env.Kind, err)
		}
		return nil
	}

	switch env.Kind {
	case kindStreamInfo:
		var ev StreamInfo
		return ev, unmarshal(&ev)
	case kindFragment:
		var ev Fragment
		return ev, unmarshal(&ev)
	case kindFormatSelection:
		var ev FormatSelection
		return ev, unmarshal(&ev)
	case kindStreamMux:
		return StreamMux{}, nil
	case kindStreamMuxProg:
		var ev StreamMuxProgress
		return ev, unmarshal(&ev)
	case kindStreamUnavail:
		return StreamUnavailable{}, nil
	case kindJobFinished:
		var ev DownloadJobFinished
		return ev, unmarshal(&ev)
	case kindFailedOutputMove:
		return DownloadJobFailedOutputMove{}, nil
	case kindFreeText:
		var ev FreeText
		return ev, unmarshal(&ev)
	default:
		return nil, nil
	}
}

// ProcessDownloader runs the external archiver as a subprocess and
// translates its NDJSON stdout into the event union. It carries no
// media logic of its own; the archiver command owns downloading and
// muxing.
type ProcessDownloader struct {
	command string
	params  Params
}

// NewProcessDownloader builds a downloader that shells out to command.
func NewProcessDownloader(command string, params Params) *ProcessDownloader {
	return &ProcessDownloader{command: command, params: params}
}

// Params returns the merged engine parameters.
func (d *ProcessDownloader) Params() Params { return d.params }

// Run executes the archiver and forwards its events to sink until the
// process exits. Cancelling ctx kills the process; Run then returns
// ctx's error so callers can distinguish cancellation from failure.
func (d *ProcessDownloader) Run(ctx context.Context, sink EventSink) error {
	cmd := exec.CommandContext(ctx, d.command, d.args()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("engine stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("engine start: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, decodeErr := DecodeEvent(line)
		if decodeErr != nil {
			// Forward undecodable lines verbatim so they land in the
			// job's message log instead of vanishing.
			sink.HandleEvent(ctx, FreeText{Text: string(line)})
			continue
		}
		if ev != nil {
			sink.HandleEvent(ctx, ev)
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		return fmt.Errorf("engine exited: %w", waitErr)
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return fmt.Errorf("engine stream: %w", scanErr)
	}
	return nil
}

func (d *ProcessDownloader) args() []string {
	p := d.params
	args := []string{"--json-progress", p.URL}
	if p.FFmpegPath != "" {
		args = append(args, "--ffmpeg-path", p.FFmpegPath)
	}
	if p.POToken != "" {
		args = append(args, "--po-token", p.POToken)
	}
	if p.StagingDirectory != "" {
		args = append(args, "--staging-directory", p.StagingDirectory)
	}
	if p.OutputDirectory != "" {
		args = append(args, "--output-directory", p.OutputDirectory)
	}
	if p.OutputTemplate != "" {
		args = append(args, "--output-template", p.OutputTemplate)
	}
	if p.CookieFile != "" {
		args = append(args, "--cookies", p.CookieFile)
	}
	if p.MaxVideoResolution > 0 {
		args = append(args, "--max-resolution", strconv.Itoa(p.MaxVideoResolution))
	}
	if p.WriteDescription {
		args = append(args, "--write-description")
	}
	if p.WriteThumbnail {
		args = append(args, "--write-thumbnail")
	}
	return args
}
