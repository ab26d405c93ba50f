package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"voxelflight/internal/config"
	"voxelflight/internal/logging"
	"voxelflight/internal/player"
	"voxelflight/internal/server"
	"voxelflight/internal/terrain"
	"voxelflight/internal/world"
)

type cli struct {
	Config string `help:"Configuration file." short:"c" default:"voxelflight.yml" type:"path"`
	Debug  bool   `help:"Whether to enable debug logging."`

	Serve struct{} `cmd:"" default:"1" help:"Generate the world and serve it over HTTP and WebSocket."`

	Defaults struct{} `cmd:"" name:"config" help:"Write the default configuration to standard output."`

	Generate struct {
		Seed    int64  `help:"Seed for the terrain, overriding the configuration. Zero keeps the configured seed."`
		Dump    bool   `help:"Print every block placement as it happens."`
		Preview string `help:"Write a top-down PNG of the terrain to this file." type:"path"`
	} `cmd:"" help:"Generate the terrain without serving it and print a summary."`
}

func writeError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", err)
	os.Exit(1)
}

func main() {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		writeError(err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var c cli
	parser, err := kong.New(&c,
		kong.Name("voxelflight"),
		kong.Description("a flying camera over a generated voxel world"),
		kong.UsageOnError(),
		kong.Writers(stdout, os.Stderr),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	switch kctx.Command() {
	case "serve":
		return serveCommand(ctx, c.Config, c.Debug)
	case "config":
		data, err := config.Default().Marshal()
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	case "generate":
		return generateCommand(c.Config, c.Generate.Seed, c.Generate.Dump, c.Generate.Preview, stdout)
	}
	return fmt.Errorf("unknown command %q", kctx.Command())
}

// loadConfig reads path, writing the defaults there first when the file does
// not exist yet.
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("load config: %w", err)
	}
	if err := config.WriteDefault(path); err != nil {
		return nil, false, err
	}
	cfg, err = config.Load(path)
	if err != nil {
		return nil, false, fmt.Errorf("load config: %w", err)
	}
	return cfg, true, nil
}

func serveCommand(ctx context.Context, path string, debug bool) error {
	cfg, created, err := loadConfig(path)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger, closeLog, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	if created {
		logger.Info("no configuration found, default configuration written", zap.String("path", path))
	}
	logger.Debug("debug logging enabled")

	w, err := buildWorld(cfg, effectiveSeed(cfg.World.Seed), nil, logger)
	if err != nil {
		return err
	}

	s := server.New(cfg, w, logger)
	if err := s.Run(ctx); err != nil {
		return fmt.Errorf("server exited: %w", err)
	}
	return nil
}

func generateCommand(path string, seed int64, dump bool, preview string, stdout io.Writer) error {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return err
	}
	if seed == 0 {
		seed = cfg.World.Seed
	}
	seed = effectiveSeed(seed)

	var sink terrain.Sink
	if dump {
		sink = terrain.SinkFunc(func(coord world.Coord, block world.BlockType) {
			fmt.Fprintf(stdout, "place %d %d %d %s\n", coord.X, coord.Y, coord.Z, block)
		})
	}

	w, err := buildWorld(cfg, seed, sink, zap.NewNop())
	if err != nil {
		return err
	}

	blocks := w.Blocks()
	counts := blocks.Counts()
	fmt.Fprintf(stdout, "seed: %d\n", seed)
	fmt.Fprintf(stdout, "blocks: %d\n", blocks.Len())
	for _, block := range world.BlockTypes() {
		fmt.Fprintf(stdout, "  %s: %d\n", block, counts[block])
	}
	fmt.Fprintf(stdout, "fingerprint: %016x\n", blocks.Fingerprint())

	if preview != "" {
		if err := writePreviewFile(preview, blocks); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "preview: %s\n", preview)
	}
	return nil
}

func writePreviewFile(path string, blocks *world.Map) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	if err := world.WritePreview(file, blocks, 4); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// effectiveSeed turns the zero seed into a time based one.
func effectiveSeed(seed int64) int64 {
	if seed == 0 {
		return time.Now().UnixNano()
	}
	return seed
}

// buildWorld generates the terrain and places the player at the configured
// spawn point.
func buildWorld(cfg *config.Config, seed int64, sink terrain.Sink, logger *zap.Logger) (*world.World, error) {
	params, err := cfg.TerrainParams()
	if err != nil {
		return nil, err
	}

	started := time.Now()
	blocks, err := terrain.Generate(params, rand.New(rand.NewSource(seed)), sink)
	if err != nil {
		return nil, err
	}
	logger.Info("world generated",
		zap.Int64("seed", seed),
		zap.Int("blocks", blocks.Len()),
		zap.String("fingerprint", fmt.Sprintf("%016x", blocks.Fingerprint())),
		zap.Duration("took", time.Since(started)))

	p := player.New(player.Options{
		FlyingSpeed: cfg.Player.FlyingSpeed,
		Position:    cfg.Player.Spawn,
	})
	return world.New(p, blocks), nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
