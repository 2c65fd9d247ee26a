package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/looploom/looploom/internal/api"
	"github.com/looploom/looploom/internal/engine"
	"github.com/looploom/looploom/internal/export"
	"github.com/looploom/looploom/internal/grid"
	"github.com/looploom/looploom/internal/midiin"
	"github.com/looploom/looploom/internal/render"
	"github.com/looploom/looploom/internal/storage"
	"github.com/looploom/looploom/internal/tui"
)

var (
	Version = "dev"

	config struct {
		host    string
		port    int
		apiPort int
		project string
		debug   string
		midi    string
		bounce  string
	}
)

var rootCmd = &cobra.Command{
	Use:   "looploom",
	Short: "A terminal loop sequencer",
	Long: `looploom is a terminal loop sequencer: play notes over MIDI or the
step grid, record them into loop layers, and play many independently
looping, croppable layers in sync against one transport clock. Sound is
rendered by an external synth process spoken to over OSC.`,
	Version: Version,
	Run:     runLooploom,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&config.host, "host", "127.0.0.1",
		"OSC host of the sound renderer")
	rootCmd.PersistentFlags().IntVar(&config.port, "port", 57120,
		"OSC port of the sound renderer")
	rootCmd.PersistentFlags().IntVar(&config.apiPort, "api-port", 0,
		"HTTP control API port (0 disables)")
	rootCmd.PersistentFlags().StringVarP(&config.project, "project", "p", "save",
		"Project directory for saved state")
	rootCmd.PersistentFlags().StringVarP(&config.debug, "log", "l", "",
		"Write debug logs to specified file (empty disables)")
	rootCmd.PersistentFlags().StringVarP(&config.midi, "midi", "m", "",
		"MIDI input device to listen on (substring match)")
	rootCmd.PersistentFlags().StringVarP(&config.bounce, "bounce", "b", "",
		"Bounce one ensemble cycle to the given wav path and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runLooploom(cmd *cobra.Command, args []string) {
	if config.debug != "" {
		f, err := tea.LogToFile(config.debug, "debug")
		if err != nil {
			log.Printf("Fatal: %v", err)
			os.Exit(1)
		}
		defer f.Close()
		log.SetOutput(f)
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	} else {
		log.SetOutput(io.Discard)
	}
	log.Printf("looploom %s, OSC renderer at %s:%d", Version, config.host, config.port)

	renderer := render.NewOSCRenderer(config.host, config.port)
	eng := engine.New(renderer)

	pattern := grid.NewPattern(
		"kick", "snare", "hatclosed", "hatopen",
		"C4", "D4", "E4", "G4", "A4", "C5",
	)

	store := storage.New(config.project)
	if st, err := store.Load(); err == nil {
		log.Printf("loaded saved state from %s", config.project)
		if st.BPM > 0 {
			eng.SetTempo(st.BPM)
		}
		for _, l := range st.Layers {
			eng.AddLayer(l)
		}
		if st.Grid != nil {
			pattern = st.Grid
		}
	} else {
		log.Printf("no saved state in %s: %v", config.project, err)
	}
	snapshot := func() *storage.State {
		return &storage.State{
			BPM:    eng.Clock.BPM(),
			Layers: eng.Layers.Layers(),
			Grid:   pattern,
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	if config.bounce != "" {
		if err := export.Bounce(ctx, eng, renderer, config.bounce); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("bounced to %s\n", config.bounce)
		return
	}

	if config.apiPort > 0 {
		go func() {
			if err := api.NewServer(eng).ListenAndServe(config.apiPort); err != nil {
				log.Printf("api server: %v", err)
			}
		}()
	}

	if config.midi != "" {
		stop, err := midiin.Listen(config.midi, eng.NoteInput)
		if err != nil {
			log.Printf("midi input: %v", err)
		} else {
			defer stop()
		}
	} else if devices := midiin.Devices(); len(devices) > 0 {
		log.Printf("MIDI devices available (use --midi to connect): %v", devices)
	}

	setupCleanupOnExit(cancel)

	model := tui.NewModel(eng, pattern)
	model.OnEdit = func() { store.AutoSave(snapshot) }
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Printf("Error: %v", err)
	}

	eng.Stop()
	if err := store.Save(snapshot()); err != nil {
		log.Printf("final save failed: %v", err)
	}
}

func setupCleanupOnExit(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-c
		cancel()
		os.Exit(0)
	}()
}
