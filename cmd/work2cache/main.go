// work2cache encodes a work TIFF into a slab: tiled payloads behind the
// fixed header and index, on any storage backend.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rok4/pyramid/internal/cli"
	"github.com/rok4/pyramid/internal/logging"
	"github.com/rok4/pyramid/internal/slab"
	"github.com/rok4/pyramid/internal/worktiff"
)

func main() {
	os.Exit(cli.Exit(newCommand().Execute()))
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "work2cache <input.tif> <output>",
		Short:         "encode a work TIFF into a slab",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: false,
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
	pf.StringP("compression", "c", "none", "tile compression (none|lzw|jpg|png|zip|pkb)")
	pf.StringP("tile", "t", "", "tile pixel dimensions, as WIDTHxHEIGHT")
	pf.StringP("sampleformat", "a", "", "sample format override (uint|float)")
	pf.IntP("bitspersample", "b", 0, "bits per sample override (8|32)")
	pf.IntP("samplesperpixel", "s", 0, "samples per pixel override (1|2|3|4)")
	pf.Bool("crop", false, "whiten JPEG blocks containing a white pixel")
	pf.BoolP("debug", "d", false, "debug logging")
	cli.BackendFlags(cmd)
	return cmd
}

func parseTileDims(s string) (int, int, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == 'x' || r == ',' })
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: tile dimensions must be WIDTHxHEIGHT", cli.ErrUsage)
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("%w: invalid tile dimensions %q", cli.ErrUsage, s)
	}
	return w, h, nil
}

func run(cmd *cobra.Command, args []string) error {
	input, output := args[0], args[1]

	tileSpec, _ := cmd.Flags().GetString("tile")
	if tileSpec == "" {
		return fmt.Errorf("%w: -t WIDTHxHEIGHT is required", cli.ErrUsage)
	}
	tileW, tileH, err := parseTileDims(tileSpec)
	if err != nil {
		return err
	}

	codec, _ := cmd.Flags().GetString("compression")
	compression, err := slab.ParseCompression(codec)
	if err != nil {
		return fmt.Errorf("%w: %v", cli.ErrUsage, err)
	}

	work, err := worktiff.Read(input)
	if err != nil {
		return err
	}

	format := work.Format
	format.Compression = compression
	if sf, _ := cmd.Flags().GetString("sampleformat"); sf != "" {
		switch sf {
		case "uint":
			format.SampleFormat = slab.SampleUInt
		case "float":
			format.SampleFormat = slab.SampleFloat
		default:
			return fmt.Errorf("%w: unknown sample format %q", cli.ErrUsage, sf)
		}
	}
	if b, _ := cmd.Flags().GetInt("bitspersample"); b != 0 {
		format.BitsPerSample = b
	}
	if s, _ := cmd.Flags().GetInt("samplesperpixel"); s != 0 {
		format.Channels = s
	}
	if format.Channels != work.Format.Channels || format.BitsPerSample != work.Format.BitsPerSample {
		return fmt.Errorf("%w: sample overrides do not match the input image (%s)", cli.ErrUsage, work.Format)
	}

	img := work.Image
	if img.Width()%tileW != 0 || img.Height()%tileH != 0 {
		return fmt.Errorf("image dimensions %dx%d are not multiples of the tile dimensions %dx%d",
			img.Width(), img.Height(), tileW, tileH)
	}

	ctx, err := cli.ResolveContext(cmd)
	if err != nil {
		return err
	}

	header := slab.Header{
		Width:      img.Width(),
		Height:     img.Height(),
		TileWidth:  tileW,
		TileHeight: tileH,
		Format:     format,
	}
	writer, err := slab.NewWriter(ctx, output, header)
	if err != nil {
		return err
	}

	crop, _ := cmd.Flags().GetBool("crop")
	return writer.WriteImage(img, crop)
}
