// Command nufs is the CLI entry point: format a fresh image, check one
// for consistency, or mount one through FUSE. Grounded on
// dargueta-disko/cmd/main.go's urfave/cli/v2 App-with-Commands shape,
// broadened here from that file's single stubbed "format" command into
// the three subcommands this module actually needs.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"
	"github.com/urfave/cli/v2"

	"github.com/mlhaufe/nufs/fsck"
	"github.com/mlhaufe/nufs/hostfs"
	"github.com/mlhaufe/nufs/image"
	"github.com/mlhaufe/nufs/storage"
)

func main() {
	app := &cli.App{
		Name:  "nufs",
		Usage: "a small block-addressed file system, mountable over FUSE",
		Commands: []*cli.Command{
			formatCommand(),
			fsckCommand(),
			mountCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("nufs: %s", err)
	}
}

func formatCommand() *cli.Command {
	return &cli.Command{
		Name:      "format",
		Usage:     "create a fresh image file",
		ArgsUsage: "IMAGE-PATH",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "preset",
				Usage: "named geometry preset (tiny, small, default, large)",
				Value: "default",
			},
			&cli.IntFlag{
				Name:  "blocks",
				Usage: "exact block count; overrides --preset when set",
			},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("format requires an IMAGE-PATH argument")
			}

			blocks := c.Int("blocks")
			if blocks == 0 {
				preset, err := lookupGeometryPreset(c.String("preset"))
				if err != nil {
					return err
				}
				blocks = preset.Blocks
			}

			img, err := image.Open(path, blocks)
			if err != nil {
				return err
			}
			defer img.Close()

			if err := img.InitLayout(); err != nil {
				return err
			}

			s := storage.New(img)
			if err := s.Init(); err != nil {
				return err
			}

			log.Printf("nufs: formatted %s with %d blocks", path, img.TotalBlocks)
			return nil
		},
	}
}

// requireExistingImage fails fast rather than letting image.Open
// silently create a fresh, undersized image for a subcommand that only
// makes sense against an already-formatted one.
func requireExistingImage(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s: %w (run 'nufs format' first)", path, err)
	}
	return nil
}

func fsckCommand() *cli.Command {
	return &cli.Command{
		Name:      "fsck",
		Usage:     "check an image's internal consistency",
		ArgsUsage: "IMAGE-PATH",
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return fmt.Errorf("fsck requires an IMAGE-PATH argument")
			}
			if err := requireExistingImage(path); err != nil {
				return err
			}

			img, err := image.Open(path, image.MinBlocks)
			if err != nil {
				return err
			}
			defer img.Close()

			if err := fsck.Check(img); err != nil {
				return err
			}
			log.Printf("nufs: %s is consistent", path)
			return nil
		},
	}
}

func mountCommand() *cli.Command {
	return &cli.Command{
		Name:      "mount",
		Usage:     "mount an image at a directory through FUSE",
		ArgsUsage: "MOUNTPOINT [FUSE-OPTION...] IMAGE-PATH",
		Action: func(c *cli.Context) error {
			args := c.Args()
			if args.Len() < 2 {
				return fmt.Errorf("mount requires MOUNTPOINT and IMAGE-PATH arguments")
			}
			// Any arguments between MOUNTPOINT and IMAGE-PATH are accepted,
			// in any number, but are not passed to the FUSE mount.
			mountpoint := args.Get(0)
			imagePath := args.Get(args.Len() - 1)
			if err := requireExistingImage(imagePath); err != nil {
				return err
			}

			img, err := image.Open(imagePath, image.MinBlocks)
			if err != nil {
				return err
			}
			defer img.Close()

			s := storage.New(img)
			if err := s.Init(); err != nil {
				return err
			}

			nfs := pathfs.NewPathNodeFs(hostfs.New(s), nil)
			server, _, err := nodefs.MountRoot(mountpoint, nfs.Root(), nil)
			if err != nil {
				return fmt.Errorf("mounting %s at %s: %w", imagePath, mountpoint, err)
			}

			log.Printf("nufs: mounted %s at %s", imagePath, mountpoint)
			server.Serve()
			return nil
		},
	}
}
