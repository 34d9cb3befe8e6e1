package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/QEStudios/SIDExporter/sid"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"
	"github.com/sqweek/dialog"
	"golang.org/x/term"
)

const tableIndent = 2

var logger *log.Logger

func main() {
	logger = log.New(os.Stderr, "", log.Ldate|log.Ltime)

	cwd, err := os.Getwd()
	if err != nil {
		logger.Fatalf("failed to get current working directory: %v", err)
	}

	var (
		subsong int
		frames  int
		dump    bool
	)
	pflag.IntVarP(&subsong, "subsong", "s", 0, "only show this subsong (1-based, 0 for all)")
	pflag.IntVarP(&frames, "frames", "n", 16, "number of frames to show per subsong (0 for all)")
	pflag.BoolVar(&dump, "dump", false, "dump the parsed file")
	pflag.Parse()

	path, err := choosePath(cwd, pflag.Args())
	if err != nil {
		if errors.Is(err, dialog.ErrCancelled) {
			logger.Printf("User cancelled the file dialog")
			os.Exit(1)
		}
		logger.Fatalf("failed to determine file path: %v", err)
	}

	file, err := sid.ReadFile(path)
	if err != nil {
		logger.Fatalf("error reading %s: %v", path, err)
	}

	if dump {
		spew.Dump(file)
		return
	}

	fmt.Print(file.Header.String())
	fmt.Printf("- Player: %d bytes\n", len(file.Player))

	if subsong < 0 || subsong > len(file.Songs) {
		logger.Fatalf("subsong %d does not exist; file contains %d subsongs", subsong, len(file.Songs))
	}

	width := columnWidth()
	for i, writes := range file.Songs {
		if subsong != 0 && i != subsong-1 {
			continue
		}
		fmt.Printf("\nSubsong %d: offset $%04X (file position 0x%04X), %d writes\n", i+1, file.Offsets[i], file.Starts[i], len(writes))
		printFrames(writes, frames, width)
	}
}

// printFrames prints every frame that has writes, up to limit frames (0 for no limit).
func printFrames(writes sid.WriteLog, limit int, width int) {
	shown := 0
	all := writes.Frames()
	for f, frame := range all {
		if len(frame) == 0 {
			continue
		}
		if limit > 0 && shown == limit {
			fmt.Printf("  ... (stopped at frame %d of %d)\n", f, len(all))
			return
		}
		fmt.Printf("  Frame %d:\n", f)
		fmt.Print(sid.FormatWritesByVoice(frame, nil, tableIndent, width))
		shown++
	}
}

// columnWidth spreads the table over the terminal when there is one.
func columnWidth() int {
	const minWidth = 14
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return minWidth
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return minWidth
	}
	// Four columns of "| " + cell + " " and a closing "|".
	return max(minWidth, (w-tableIndent-1)/(sid.Voices+1)-3)
}

// choosePath returns the file path either from the command-line args
// or from an interactive file dialog.
func choosePath(cwd string, args []string) (string, error) {
	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return "", fmt.Errorf("cannot get absolute path: %w", err)
		}
		if err := validatePath(absPath); err != nil {
			return "", fmt.Errorf("passed argument is not a valid path: %w", err)
		}
		return absPath, nil
	}

	path, err := dialog.
		File().
		Title("Open SID file").
		Filter("SID files (*.sid)", "sid").
		SetStartDir(cwd).
		Load()
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", dialog.ErrCancelled
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("cannot get absolute path: %w", err)
	}
	if err := validatePath(absPath); err != nil {
		return "", fmt.Errorf("dialog selection invalid: %w", err)
	}
	return absPath, nil
}

func validatePath(p string) error {
	if strings.ToLower(filepath.Ext(p)) != ".sid" {
		return fmt.Errorf("file must have .sid extension")
	}
	if _, err := os.Stat(p); err != nil {
		return fmt.Errorf("cannot stat file: %w", err)
	}
	return nil
}
