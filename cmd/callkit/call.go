package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ent0n29/callkit/internal/app"
	"github.com/ent0n29/callkit/internal/audio"
	"github.com/ent0n29/callkit/internal/logging"
	"github.com/ent0n29/callkit/internal/realtime"
	"github.com/ent0n29/callkit/internal/session"
)

type callOptions struct {
	brand   string
	fields  map[string]string
	mock    bool
	record  string
	input   string
	timeout time.Duration
	verify  bool
}

func newCallCmd() *cobra.Command {
	var opts callOptions
	cmd := &cobra.Command{
		Use:   "call",
		Short: "Register a web call, join it and optionally verify it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCall(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.brand, "brand", "", "Brand id to call as")
	cmd.Flags().StringToStringVarP(&opts.fields, "field", "f", nil, "Declared field, repeatable (name=value)")
	cmd.Flags().BoolVar(&opts.mock, "mock", false, "Use an in-process SDK that ends the call after a short exchange")
	cmd.Flags().StringVar(&opts.record, "record", "", "Write agent audio to this WAV file")
	cmd.Flags().StringVar(&opts.input, "input", "", "Raw PCM16LE file streamed as microphone audio")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Minute, "Stop the call after this long")
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "Poll analysis and reconcile fields once the call ends")
	_ = cmd.MarkFlagRequired("brand")
	return cmd
}

func runCall(cmd *cobra.Command, opts callOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logging.NewLogger("call")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = built.Cleanup() }()

	reg, err := built.Flow.Register(ctx, opts.brand, opts.fields)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "registered call %s (sample rate %d)\n", reg.Handle.CallID, reg.Handle.SampleRate)

	var (
		sdk session.SDK
		rt  *realtime.Client
	)
	if opts.mock {
		mock := session.NewMockSDK()
		mock.AutoEndAfter = 2 * time.Second
		sdk = mock
	} else {
		rt = built.NewRealtimeSDK()
		sdk = rt
	}
	client := built.NewSessionClient(sdk, session.GrantedMicrophone)
	defer client.Close()

	recorder := audio.NewRecorder(reg.Handle.SampleRate)
	out := cmd.OutOrStdout()
	printed := 0
	client.Subscribe(session.Listener{
		OnStarted: func() {
			fmt.Fprintln(out, "call connected")
			if rt != nil && opts.input != "" {
				go streamInput(ctx, rt, opts.input, reg.Handle.SampleRate, log.WithField("call_id", reg.Handle.CallID))
			}
		},
		OnUpdate: func(u session.Update) {
			if len(u.AgentAudio) > 0 {
				recorder.Append(u.AgentAudio)
			}
			for ; printed < len(u.Transcript); printed++ {
				e := u.Transcript[printed]
				fmt.Fprintf(out, "%s: %s\n", e.Role, e.Content)
			}
		},
		OnEnded: func(code int, reason string) {
			fmt.Fprintf(out, "call ended (%d %s)\n", code, reason)
		},
		OnError: func(err error) {
			fmt.Fprintf(out, "call failed: %v\n", err)
		},
	})

	runCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	snap, runErr := built.Flow.RunSession(runCtx, client, reg.Handle)

	if opts.record != "" && recorder.DurationMS() > 0 {
		if err := recorder.WriteFile(opts.record); err != nil {
			log.WithError(err).Warn("could not write recording")
		} else {
			fmt.Fprintf(out, "saved %dms of agent audio to %s\n", recorder.DurationMS(), opts.record)
		}
	}
	if runErr != nil {
		return runErr
	}
	if !opts.verify || snap.State != session.StateEnded {
		return nil
	}

	v, err := built.Flow.Verify(ctx, reg.Handle.CallID)
	if err != nil {
		return err
	}
	return writeJSON(out, v)
}

// streamInput paces a raw PCM16 file onto the socket in 20ms frames.
func streamInput(ctx context.Context, rt *realtime.Client, path string, sampleRate int, log *logrus.Entry) {
	f, err := os.Open(path)
	if err != nil {
		log.WithError(err).Warn("open input")
		return
	}
	defer f.Close()

	if sampleRate <= 0 {
		sampleRate = 16000
	}
	frame := make([]byte, sampleRate*2/50)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		n, err := io.ReadFull(f, frame)
		if n > 0 {
			if sendErr := rt.SendAudio(ctx, frame[:n]); sendErr != nil {
				log.WithError(sendErr).Warn("send audio")
				return
			}
		}
		if err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
