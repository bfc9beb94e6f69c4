package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"
	"golang.org/x/sync/errgroup"

	"github.com/0xlemi/tunekeys/internal/action"
	"github.com/0xlemi/tunekeys/internal/audio"
	"github.com/0xlemi/tunekeys/internal/config"
	"github.com/0xlemi/tunekeys/internal/dispatch"
	"github.com/0xlemi/tunekeys/internal/engine"
	"github.com/0xlemi/tunekeys/internal/trigger"
	"github.com/0xlemi/tunekeys/internal/ui"
)

const (
	// Audio settings
	framesPerBuffer = 512
	simulateRate    = 48000

	// Pending events for async dispatch
	dispatchQueueSize = 8

	// Log file used while the terminal view owns the screen
	logFile = "tunekeys.log"
)

var logger *slog.Logger

// initLogger configures the global slog logger
func initLogger(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	logger = slog.New(h)
	slog.SetDefault(logger)
}

type options struct {
	configPath string
	debug      bool
	ui         bool
	dryRun     bool
	simulate   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "tunekeys",
		Short:         "Play a note, press a key",
		Long:          "tunekeys listens to a monophonic instrument and runs the action bound to each sustained, in-tune note.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	stdoutTTY := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "config.toml", "configuration file")
	pf.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	f := root.Flags()
	f.BoolVar(&opts.ui, "ui", stdoutTTY, "show the terminal view")
	f.BoolVar(&opts.dryRun, "dry-run", false, "log key actions instead of sending them")
	f.StringVar(&opts.simulate, "simulate", "", "play a tone script instead of capturing, e.g. \"A4:1s,rest:300ms,E4:1s\"")

	root.PersistentPreRun = func(*cobra.Command, []string) {
		initLogger(os.Stderr, opts.debug)
	}

	root.AddCommand(newDevicesCmd(), newConfigCmd(opts))
	return root
}

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio input devices",
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := audio.ListInputDevices()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, d := range devices {
				mark := " "
				if d.IsDefault {
					mark = "*"
				}
				fmt.Fprintf(out, "%s %-40s %-12s %d ch  %.0f Hz\n", mark, d.Name, d.HostAPI, d.MaxInputChannels, d.DefaultSampleRate)
			}
			return nil
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.LoadOrDefault(opts.configPath, logger).Write(cmd.OutOrStdout())
		},
	}
}

func run(parent context.Context, opts *options) error {
	if opts.ui {
		f, err := tea.LogToFile(logFile, "")
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		initLogger(f, opts.debug)
	}

	cfg := config.LoadOrDefault(opts.configPath, logger)

	src, name, err := openSource(opts, cfg)
	if err != nil {
		return err
	}

	ecfg, err := cfg.EngineConfig(src.SampleRate())
	if err != nil {
		logger.Warn("invalid analysis settings, using defaults", "sample_rate", src.SampleRate(), "err", err)
		if ecfg, err = config.Default().EngineConfig(src.SampleRate()); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	builder := newBuilder(opts)
	defer builder.Close()
	defer midi.CloseDriver()

	actions, err := builder.Build(cfg.NoteMap)
	if err != nil {
		logger.Warn("some note bindings were skipped", "err", err)
	}
	if len(actions) == 0 {
		logger.Warn("no note bindings configured")
	}

	var bindings []ui.Binding
	for _, note := range actions.Notes() {
		a, _ := actions.Resolve(note)
		bindings = append(bindings, ui.Binding{Note: note, Action: a.String()})
		logger.Info("binding", "note", note, "action", a.String())
	}

	var dispatcher dispatch.Dispatcher = dispatch.Sync{Logger: logger}
	if cfg.AsyncDispatch {
		dispatcher = dispatch.NewAsync(dispatchQueueSize, logger)
	}
	defer dispatcher.Close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var program *tea.Program
	var engineOpts []engine.Option
	if opts.ui {
		model := ui.NewModel(name, cfg.ToleranceCents, bindings)
		program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		engineOpts = append(engineOpts, engine.WithObserver(ui.NewObserver(program)))
	} else {
		engineOpts = append(engineOpts, engine.WithObserver(logObserver{}))
	}

	eng, err := engine.New(ecfg, actions, dispatcher, logger, engineOpts...)
	if err != nil {
		return err
	}

	// One second of audio absorbs scheduling hiccups
	queue := audio.NewQueue(src.SampleRate())
	if err := src.Start(queue); err != nil {
		return fmt.Errorf("start %s: %w", name, err)
	}
	logger.Info("listening", "source", name, "sample_rate", src.SampleRate(), "window", ecfg.WindowSize, "hop", ecfg.HopSize)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer stop()
		err := eng.Run(gctx, queue)
		if program != nil {
			program.Quit()
		}
		switch {
		case gctx.Err() != nil:
			return nil
		case errors.Is(err, audio.ErrStreamEnded) && opts.simulate != "":
			logger.Info("simulation finished", "frames", eng.Frames())
			return nil
		case errors.Is(err, audio.ErrStreamEnded):
			return fmt.Errorf("%s: %w", name, err)
		}
		return err
	})

	if program != nil {
		g.Go(func() error {
			defer stop()
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("terminal view: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		if err := src.Stop(); err != nil && !errors.Is(err, audio.ErrNotCapturing) {
			return fmt.Errorf("stop %s: %w", name, err)
		}
		return nil
	})

	return g.Wait()
}

func openSource(opts *options, cfg *config.Config) (audio.Source, string, error) {
	if opts.simulate != "" {
		segments, err := audio.ParseScript(opts.simulate)
		if err != nil {
			return nil, "", fmt.Errorf("simulate: %w", err)
		}
		return audio.NewToneSource(segments, simulateRate), "simulation", nil
	}

	capturer, err := audio.NewPortAudioCapturer(framesPerBuffer, 0)
	if err != nil {
		return nil, "", fmt.Errorf("audio input unavailable: %w", err)
	}
	capturer.SetAmplification(float32(cfg.InputGain))
	return capturer, "microphone", nil
}

// newBuilder wires the action backends. Without a working key injector
// the keys bindings are skipped and every other kind still works.
func newBuilder(opts *options) *action.Builder {
	b := &action.Builder{
		OpenMIDI:   action.OpenMIDIOut,
		OpenSerial: action.OpenSerialPort,
	}

	if opts.dryRun {
		b.Injector = action.LogInjector{Logger: logger}
		return b
	}

	inj, err := action.NewKeybdInjector()
	if err != nil {
		logger.Warn("key injection unavailable, keys bindings disabled", "err", err)
		return b
	}
	b.Injector = inj
	return b
}

// logObserver reports trigger outcomes on stdout when there is no
// terminal view
type logObserver struct{}

func (logObserver) OnFrame(engine.Frame) {}

func (logObserver) OnTrigger(ev trigger.Event, err error) {
	if err != nil {
		fmt.Printf("%s  %-4s  %s  failed: %v\n", ev.At.Format("15:04:05.000"), ev.Note.ID(), ev.Action, err)
		return
	}
	fmt.Printf("%s  %-4s  %s\n", ev.At.Format("15:04:05.000"), ev.Note.ID(), ev.Action)
}
