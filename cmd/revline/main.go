// revline runs a single UCI engine over a chess game tree, recording its
// evaluations and continuations into a position graph, then renders the
// result as an annotated, branched PGN.
//
// Usage:
//
//	revline <engine-command> [pgn-output-path]
//
// With no output path the PGN is written to stdout. This is intentionally
// the whole of revline's argument handling: building a configuration
// document (file or flag based) out of that input is left to callers.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kallevik/revline/pkg/config"
	"github.com/kallevik/revline/pkg/knowledge"
	"github.com/kallevik/revline/pkg/pgn"
	"github.com/kallevik/revline/pkg/position"
	"github.com/kallevik/revline/pkg/review"
	"github.com/kallevik/revline/pkg/uci"
	"github.com/seekerror/build"
	"github.com/seekerror/logw"
)

var version = build.NewVersion(0, 1, 0)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		logw.Exitf(ctx, "usage: revline <engine-command> [pgn-output-path]")
	}

	logw.Infof(ctx, "revline %v starting", version)

	engineCfg := config.Engine{
		Name:    "engine",
		Command: os.Args[1],
	}
	revCfg := config.Rev{
		Depth: 18,
	}

	engine, err := uci.NewEngine(ctx, engineCfg)
	if err != nil {
		logw.Exitf(ctx, "start engine %v: %v", engineCfg.Command, err)
	}
	defer engine.Quit(ctx)

	if err := engine.NewGame(ctx); err != nil {
		logw.Exitf(ctx, "new game: %v", err)
	}

	root := position.Initial()
	k := knowledge.New(root)

	d := review.New([]review.Processor{
		review.NewEngineProcessor(engine, revCfg),
	})
	if err := d.Run(ctx, k, review.WorkItem{VIdx: k.Main(), HM: 0, Pos: root}); err != nil {
		logw.Exitf(ctx, "review run: %v", err)
	}

	out := os.Stdout
	if len(os.Args) >= 3 {
		f, err := os.Create(os.Args[2])
		if err != nil {
			logw.Exitf(ctx, "create output %v: %v", os.Args[2], err)
		}
		defer f.Close()
		out = f
	}

	tree := pgn.Build(k)
	if err := tree.WritePGN(out); err != nil {
		logw.Exitf(ctx, "write pgn: %v", err)
	}
	fmt.Fprintln(out)

	logw.Infof(ctx, "revline finished: %d positions, %d variations", k.NumPositions(), k.NumVariations())
}
