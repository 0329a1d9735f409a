package cli

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/rethread-erp/rethread-erp/internal/auth"
	"github.com/rethread-erp/rethread-erp/internal/fx"
)

// Deps carries the services CLI commands operate on.
type Deps struct {
	Logger *slog.Logger
	Rates  fx.Repository
	Auth   *auth.Service
}

// Run dispatches a CLI subcommand and returns the process exit code.
func Run(ctx context.Context, args []string, deps Deps) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: rethread <command> [flags]")
		fmt.Fprintln(os.Stderr, "commands: fx-import, token-mint")
		return 2
	}
	switch args[0] {
	case "fx-import":
		fs := flag.NewFlagSet("fx-import", flag.ContinueOnError)
		source := fs.String("source", "", "CSV file with currency,rate rows, or - for stdin")
		mode := fs.String("mode", "dry", "dry or apply")
		jsonOut := fs.Bool("json", false, "emit a JSON summary")
		actor := fs.Int64("actor", 0, "actor id recorded on applied rates")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return FXImportCommand(ctx, deps.Rates, FXImportOptions{
			Source:     *source,
			Mode:       FXImportMode(*mode),
			ActorID:    *actor,
			JSONOutput: *jsonOut,
		})
	case "token-mint":
		fs := flag.NewFlagSet("token-mint", flag.ContinueOnError)
		name := fs.String("name", "", "display name for the token")
		actor := fs.Int64("actor", 0, "actor id the token acts as")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *name == "" {
			fmt.Fprintln(os.Stderr, "token-mint: --name is required")
			return 2
		}
		plaintext, token, err := deps.Auth.Mint(ctx, *name, *actor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "token-mint: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "token %d (%s): %s\n", token.ID, token.Name, plaintext)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return 2
	}
}
