// slabinfo inspects a slab: header fields, tile index, and optional
// extraction of decoded tiles to PNG or WebP for eyeballing.
package main

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/webp"
	"github.com/spf13/cobra"

	"github.com/rok4/pyramid/internal/cli"
	"github.com/rok4/pyramid/internal/logging"
	"github.com/rok4/pyramid/internal/slab"
)

func main() {
	os.Exit(cli.Exit(newCommand().Execute()))
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "slabinfo <slab>",
		Short:        "print a slab's header and tile index",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup("WARN", "")
		},
		RunE: run,
	}

	pf := cmd.PersistentFlags()
	pf.String("tile", "", "extract one decoded tile, as COL,ROW")
	pf.StringP("out", "o", "", "output image for --tile (.png or .webp)")
	cli.BackendFlags(cmd)
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	ctx, err := cli.ResolveContext(cmd)
	if err != nil {
		return err
	}

	reader, err := slab.NewReader(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("slab:        %s\n", reader.Name)
	if reader.OriginalName != reader.Name {
		fmt.Printf("symlink of:  %s\n", reader.OriginalName)
	}
	fmt.Printf("dimensions:  %dx%d pixels, %dx%d tiles of %dx%d\n",
		reader.Width, reader.Height, reader.TilesAcross(), reader.TilesDown(),
		reader.TileWidth, reader.TileHeight)
	fmt.Printf("format:      %s, photometric %s\n", reader.Format, reader.Format.Photometric)

	tileSpec, _ := cmd.Flags().GetString("tile")
	if tileSpec == "" {
		return nil
	}

	var col, row int
	if _, err := fmt.Sscanf(tileSpec, "%d,%d", &col, &row); err != nil {
		return fmt.Errorf("%w: --tile must be COL,ROW", cli.ErrUsage)
	}
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return fmt.Errorf("%w: --tile needs --out", cli.ErrUsage)
	}

	raw, err := reader.RawTile(row*reader.TilesAcross() + col)
	if err != nil {
		return err
	}
	img, err := tileToImage(reader, raw)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(out)) {
	case ".png":
		return png.Encode(f, img)
	case ".webp":
		return webp.Encode(f, img, webp.Options{Quality: 90})
	}
	return fmt.Errorf("%w: --out must end in .png or .webp", cli.ErrUsage)
}

// tileToImage converts raw 8-bit tile samples into a displayable image.
func tileToImage(r *slab.Reader, raw []byte) (image.Image, error) {
	if r.Format.SampleFormat != slab.SampleUInt || r.Format.BitsPerSample != 8 {
		return nil, fmt.Errorf("tile extraction only handles 8-bit integer slabs, this one is %s", r.Format)
	}

	w, h := r.TileWidth, r.TileHeight
	switch r.Format.Channels {
	case 1:
		img := image.NewGray(image.Rect(0, 0, w, h))
		copy(img.Pix, raw)
		return img, nil
	case 3:
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := 0; i < w*h; i++ {
			img.Pix[i*4] = raw[i*3]
			img.Pix[i*4+1] = raw[i*3+1]
			img.Pix[i*4+2] = raw[i*3+2]
			img.Pix[i*4+3] = 255
		}
		return img, nil
	case 4:
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		copy(img.Pix, raw)
		return img, nil
	}
	return nil, fmt.Errorf("tile extraction does not handle %d channels", r.Format.Channels)
}
