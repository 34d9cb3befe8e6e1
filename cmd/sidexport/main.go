package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/QEStudios/SIDExporter/export"
	"github.com/QEStudios/SIDExporter/parser/furnace"
	"github.com/QEStudios/SIDExporter/parser/script"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"
	"github.com/sqweek/dialog"
)

var logger *log.Logger

// load is replaced in tests.
var load = loadComposition

func main() {
	logger = log.New(os.Stdout, "", log.Ldate|log.Ltime)

	err := run(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if errors.Is(err, dialog.ErrCancelled) {
		logger.Printf("User cancelled the file dialog")
		os.Exit(1)
	}
	if err != nil {
		logger.Fatal(err)
	}
}

// run does the whole export. Errors are returned rather than fatal so that
// the composition is always closed.
func run(args []string) error {
	// Get the current working directory.
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current working directory: %w", err)
	}

	var (
		startSong int
		exportAll bool
		skip      []int
		useCIA    bool
		pal       bool
		output    string
		dump      bool
	)
	flags := pflag.NewFlagSet("sidexport", pflag.ContinueOnError)
	flags.IntVarP(&startSong, "start", "s", 1, "starting subsong (1-based)")
	flags.BoolVarP(&exportAll, "all", "a", false, "export every subsong instead of only the starting one")
	flags.IntSliceVar(&skip, "skip", nil, "subsongs (1-based) to leave out when exporting all")
	flags.BoolVar(&useCIA, "cia", false, "ask the player host for CIA timing instead of vertical blank")
	flags.BoolVar(&pal, "pal", true, "render at PAL timing (--pal=false for NTSC)")
	flags.StringVarP(&output, "output", "o", "", "output file (defaults to the input path with a .sid extension)")
	flags.BoolVar(&dump, "dump", false, "dump the export result")
	if err := flags.Parse(args); err != nil {
		return err
	}

	// Get the path of the composition.
	path, err := choosePath(cwd, flags.Args())
	if err != nil {
		if errors.Is(err, dialog.ErrCancelled) {
			return err
		}
		return fmt.Errorf("failed to determine file path: %w", err)
	}

	composition, songPAL, closeFn, err := load(path)
	if err != nil {
		return fmt.Errorf("load error: %w", err)
	}
	defer closeFn()

	// Only override the song's own clock when asked to.
	if !flags.Changed("pal") {
		pal = songPAL
	}
	if pal {
		logger.Printf("Rendering at PAL timing")
	} else {
		logger.Printf("Rendering at NTSC timing")
	}

	cfg := export.DefaultConfig()
	cfg.StartSong = startSong
	cfg.ExportAll = exportAll
	cfg.UseCIA = useCIA
	cfg.PAL = pal
	cfg.Resize(composition.SubsongCount())
	for _, s := range skip {
		if s < 1 || s > len(cfg.Selected) {
			logger.Printf("ignoring --skip %d: the composition has %d subsongs", s, len(cfg.Selected))
			continue
		}
		cfg.Selected[s-1] = false
	}
	if len(skip) > 0 && !exportAll {
		logger.Printf("--skip only applies together with --all")
	}

	if output == "" {
		// Write to a .sid file in the same directory as the source file.
		ext := filepath.Ext(path)
		output = strings.TrimSuffix(path, ext) + ".sid"
	}

	exporter := export.New(logger)
	logger.Printf("Exporting with %s", exporter.Name())
	result, err := exporter.Export(composition, output, cfg)
	if err != nil {
		return fmt.Errorf("export error (%s): %w", exporter.State(), err)
	}

	for _, line := range exporter.SelfTestLog() {
		logger.Println(line)
	}

	if dump {
		spew.Dump(result)
	}
	return nil
}

// loadComposition opens the composition at path, picking the loader by extension.
// It also returns the composition's own video standard, and a function that
// releases whatever the loader holds on to.
func loadComposition(path string) (export.Composition, bool, func(), error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		s, err := script.Load(path, logger)
		if err != nil {
			return nil, false, nil, err
		}
		return s, s.PAL, s.Close, nil

	default:
		file, err := os.Open(path)
		if err != nil {
			return nil, false, nil, fmt.Errorf("error opening file: %w", err)
		}
		defer file.Close()

		p := furnace.NewParser(file, logger)
		song, err := p.Parse()
		if err != nil {
			return nil, false, nil, fmt.Errorf("parse error: %w", err)
		}

		fmt.Println(song)
		return song, song.PAL, func() {}, nil
	}
}

// choosePath returns the file path either from the command-line args
// or from an interactive file dialog.
func choosePath(cwd string, args []string) (string, error) {
	// If an argument was passed to the program, use it.
	if len(args) > 0 {
		path := args[0]
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("cannot get absolute path: %w", err)
		}
		if err := validatePath(absPath); err != nil {
			return "", fmt.Errorf("passed argument is not a valid path: %w", err)
		}
		return absPath, nil
	}

	// Otherwise open the file dialog.
	path, err := dialog.
		File().
		Title("Open composition").
		Filter("Furnace text exports (*.txt)", "txt").
		Filter("Lua compositions (*.lua)", "lua").
		SetStartDir(cwd).
		Load()
	if err != nil {
		// Propagate the error. Caller will check for dialog.ErrCancelled.
		return "", err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot get absolute path: %w", err)
	}

	// Check for empty path just in case.
	if absPath == "" {
		return "", dialog.ErrCancelled
	}
	if err := validatePath(absPath); err != nil {
		return "", fmt.Errorf("dialog selection invalid: %w", err)
	}
	return absPath, nil
}

// validatePath performs simple checks to verify if a file exists or not.
func validatePath(p string) error {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".txt", ".lua":
	default:
		return fmt.Errorf("file must have a .txt or .lua extension")
	}
	if _, err := os.Stat(p); err != nil {
		return fmt.Errorf("cannot stat file: %w", err)
	}
	return nil
}
