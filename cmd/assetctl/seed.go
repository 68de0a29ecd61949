package main

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"math/rand"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"commerce/internal/domain/asset"
	"commerce/internal/tenant"
)

var (
	seedChannel int64
	seedActor   int64
	seedImages  int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Upload generated demo assets into a channel",
	Long: `Upload generated demo assets into a channel as one batch.

Examples:
  assetctl seed --channel 1
  assetctl seed --channel 3 --images 12`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().Int64Var(&seedChannel, "channel", 0, "Channel id (required)")
	seedCmd.Flags().Int64Var(&seedActor, "actor", 1, "User id recorded as creator")
	seedCmd.Flags().IntVar(&seedImages, "images", 6, "Number of generated images")
	_ = seedCmd.MarkFlagRequired("channel")
	rootCmd.AddCommand(seedCmd)
}

var seedProducts = []string{"Oak Chair", "Desk Lamp", "Linen Sofa", "Wool Rug", "Glass Vase", "Wall Shelf", "Side Table", "Floor Mirror"}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedImages < 1 || seedImages > 50 {
		return fmt.Errorf("--images must be between 1 and 50")
	}
	_, svc, log, err := setup()
	if err != nil {
		return err
	}

	files, err := seedFiles(seedImages)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cmdTimeout)
	defer cancel()
	out, err := svc.UploadMany(ctx, tenant.Scope{ChannelID: seedChannel, ActorID: seedActor}, files)
	if err != nil {
		return fmt.Errorf("seed upload: %w", err)
	}
	log.WithField("channel_id", seedChannel).WithField("count", len(out)).Info("demo assets seeded")
	for _, f := range out {
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n", f.ID, f.Type, f.Name)
	}
	return nil
}

func seedFiles(images int) ([]*asset.File, error) {
	files := make([]*asset.File, 0, images+1)
	for i := 0; i < images; i++ {
		name := seedProducts[i%len(seedProducts)]
		bg := color.NRGBA{R: uint8(rand.Intn(256)), G: uint8(rand.Intn(256)), B: uint8(rand.Intn(256)), A: 255}
		img := imaging.New(1200, 900, bg)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("encode demo image: %w", err)
		}
		files = append(files, &asset.File{
			Buffer:   buf.Bytes(),
			Filename: fmt.Sprintf("%s %d.png", name, i+1),
		})
	}
	files = append(files, &asset.File{
		Buffer:   []byte("Demo catalog seeded by assetctl.\n"),
		Filename: "README.txt",
	})
	return files, nil
}
