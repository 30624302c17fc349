// Command pgadmin is the PatternGuard administration console.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/patternguard/console/internal/client"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// run parses the global flags, builds the command tree and executes it.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	global := pflag.NewFlagSet("pgadmin", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(io.Discard)
	configPath := global.String("config", defaultConfigPath(), "path to the YAML configuration file")
	baseURL := global.String("base-url", "", "backend URL, overrides the configuration")
	noColor := global.Bool("no-color", false, "disable colored output")

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			root := newRootCommand(&app{stdout: stdout})
			root.PrintHelp(stdout)
			fmt.Fprintf(stdout, "\nGlobal flags:\n%s", global.FlagUsages())
			return nil
		}
		return err
	}
	if *noColor {
		color.NoColor = true
	}

	a := &app{
		ctx:        ctx,
		configPath: *configPath,
		baseURL:    *baseURL,
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
	}
	defer a.close()

	err := newRootCommand(a).Execute(global.Args(), stdout)

	var ce *client.Error
	if errors.As(err, &ce) && a.log != nil {
		a.log.Debug("cli", "command failed", map[string]interface{}{"detail": ce.Detail()})
	}
	return err
}

func defaultConfigPath() string {
	if p := os.Getenv("PGADMIN_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pgadmin.yaml"
	}
	return dir + string(os.PathSeparator) + "pgadmin" + string(os.PathSeparator) + "pgadmin.yaml"
}
