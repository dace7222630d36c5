// cache2work decodes a slab back into an untiled work TIFF.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rok4/pyramid/internal/cli"
	"github.com/rok4/pyramid/internal/logging"
	"github.com/rok4/pyramid/internal/raster"
	"github.com/rok4/pyramid/internal/slab"
	"github.com/rok4/pyramid/internal/worktiff"
)

func main() {
	os.Exit(cli.Exit(newCommand().Execute()))
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cache2work <input> <output.tif>",
		Short:        "decode a slab into an untiled work TIFF",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "INFO"
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				level = "DEBUG"
			}
			logging.Setup(level, "")
		},
		RunE: run,
	}

	pf := cmd.PersistentFlags()
	pf.StringP("compression", "c", "raw", "work file compression (none|raw|lzw|pkb|zip)")
	pf.BoolP("debug", "d", false, "debug logging")
	cli.BackendFlags(cmd)
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	input, output := args[0], args[1]

	codec, _ := cmd.Flags().GetString("compression")
	compression, err := slab.ParseCompression(codec)
	if err != nil {
		return fmt.Errorf("%w: %v", cli.ErrUsage, err)
	}

	ctx, err := cli.ResolveContext(cmd)
	if err != nil {
		return err
	}

	reader, err := slab.NewReader(ctx, input)
	if err != nil {
		return err
	}

	var kind raster.SampleKind
	switch {
	case reader.Format.SampleFormat == slab.SampleFloat:
		kind = raster.SampleF32
	case reader.Format.BitsPerSample == 16:
		kind = raster.SampleU16
	default:
		kind = raster.SampleU8
	}

	img := raster.NewMemoryImage(reader.Width, reader.Height, reader.Format.Channels, kind,
		raster.BBox{Xmax: float64(reader.Width), Ymax: float64(reader.Height)})

	// Tile payloads are fetched in slab order, then decoded in
	// parallel: decompression dominates, I/O does not.
	pixelSize := reader.Format.PixelSize()
	lineSize := reader.Width * pixelSize
	tileLineSize := reader.TileWidth * pixelSize
	rawTileSize := reader.RawTileSize()

	var g errgroup.Group
	g.SetLimit(8)

	for ty := 0; ty < reader.TilesDown(); ty++ {
		for tx := 0; tx < reader.TilesAcross(); tx++ {
			idx := ty*reader.TilesAcross() + tx
			encoded, err := reader.EncodedTile(idx)
			if err != nil {
				return err
			}
			ty, tx := ty, tx
			g.Go(func() error {
				raw, err := slab.DecodeTile(reader.Format, encoded, rawTileSize)
				if err != nil {
					return fmt.Errorf("decoding tile %d,%d: %w", tx, ty, err)
				}
				for l := 0; l < reader.TileHeight; l++ {
					dst := (ty*reader.TileHeight+l)*lineSize + tx*tileLineSize
					copy(img.Raw()[dst:dst+tileLineSize], raw[l*tileLineSize:])
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return worktiff.Write(output, &worktiff.File{Format: reader.Format, Image: img}, compression)
}
