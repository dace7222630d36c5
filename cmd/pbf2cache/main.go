// pbf2cache packs a tree of PBF tiles into a vector slab: same header
// and index layout as raster slabs, tile payloads stored verbatim.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rok4/pyramid/internal/cli"
	"github.com/rok4/pyramid/internal/logging"
	"github.com/rok4/pyramid/internal/slab"
)

func main() {
	os.Exit(cli.Exit(newCommand().Execute()))
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "pbf2cache <output>",
		Short:        "pack PBF tiles into a vector slab",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup("INFO", "")
		},
		RunE: run,
	}

	pf := cmd.PersistentFlags()
	pf.StringP("root", "r", "", "directory holding the PBF tiles as <root>/<col>/<row>.pbf")
	pf.StringP("tiles", "t", "", "slab tiling, as WIDTHxHEIGHT tiles")
	pf.String("ultile", "", "tile indices of the upper-left tile, as COL,ROW")
	cli.BackendFlags(cmd)
	return cmd
}

func parsePair(s, what string) (int, int, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == 'x' || r == ',' })
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %s must be two integers", cli.ErrUsage, what)
	}
	a, err1 := strconv.Atoi(parts[0])
	b, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, fmt.Errorf("%w: invalid %s %q", cli.ErrUsage, what, s)
	}
	return a, b, nil
}

func run(cmd *cobra.Command, args []string) error {
	output := args[0]

	root, _ := cmd.Flags().GetString("root")
	if root == "" {
		return fmt.Errorf("%w: -r <root directory> is required", cli.ErrUsage)
	}
	tiles, _ := cmd.Flags().GetString("tiles")
	tilesPerW, tilesPerH, err := parsePair(tiles, "slab tiling")
	if err != nil {
		return err
	}
	if tilesPerW < 1 || tilesPerH < 1 {
		return fmt.Errorf("%w: slab tiling must be at least 1x1", cli.ErrUsage)
	}
	ul, _ := cmd.Flags().GetString("ultile")
	ulCol, ulRow, err := parsePair(ul, "upper-left tile")
	if err != nil {
		return err
	}

	ctx, err := cli.ResolveContext(cmd)
	if err != nil {
		return err
	}

	// Load the tile payloads concurrently; absent tiles are recorded as
	// empty slots, not errors.
	payloads := make([][]byte, tilesPerW*tilesPerH)
	var g errgroup.Group
	g.SetLimit(16)
	for row := 0; row < tilesPerH; row++ {
		for col := 0; col < tilesPerW; col++ {
			idx := row*tilesPerW + col
			path := filepath.Join(root, strconv.Itoa(ulCol+col), strconv.Itoa(ulRow+row)+".pbf")
			g.Go(func() error {
				data, err := os.ReadFile(path)
				if err != nil {
					if errors.Is(err, fs.ErrNotExist) {
						slog.Debug("missing PBF tile", "path", path)
						return nil
					}
					return fmt.Errorf("reading %s: %w", path, err)
				}
				payloads[idx] = data
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	writer := slab.NewVectorWriter(ctx, output, tilesPerW, tilesPerH)
	if err := writer.WriteHeader(); err != nil {
		return err
	}
	for idx, payload := range payloads {
		if err := writer.WritePBFTile(idx, payload); err != nil {
			return err
		}
	}
	return writer.Finalize()
}
