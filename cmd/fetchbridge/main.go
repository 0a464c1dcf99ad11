// Command fetchbridge fetches files and URLs through response bridges on a
// host loop, the way embedded guests do.
package main

import (
	stdErrors "errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/reglet-dev/reglet-fetch/application/config"
	"github.com/reglet-dev/reglet-fetch/application/schema"
	"github.com/reglet-dev/reglet-fetch/domain/entities"
	"github.com/reglet-dev/reglet-fetch/domain/errors"
)

func main() {
	if err := runCLI(os.Args, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(errors.ToErrorDetail(err).Error()))
		os.Exit(1)
	}
}

func runCLI(args []string, stdout, stderr io.Writer) error {
	if len(args) < 2 {
		return usageError(stderr)
	}
	switch args[1] {
	case "get":
		return getCommand(args[2:], stdout, stderr)
	case "watch":
		return watchCommand(args[2:], stderr)
	case "schema":
		return schemaCommand(stdout)
	case "help", "-h", "--help":
		printUsage(stderr)
		return nil
	default:
		return usageError(stderr)
	}
}

func schemaCommand(stdout io.Writer) error {
	data, err := schema.ConfigSchema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}

// loadConfig returns the defaults when path is empty.
func loadConfig(path string) (*entities.Config, error) {
	if path == "" {
		cfg := entities.DefaultConfig()
		return &cfg, nil
	}
	return config.Load(path)
}

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	return fs, configPath
}

func usageError(stderr io.Writer) error {
	printUsage(stderr)
	return stdErrors.New("invalid command")
}

func printUsage(w io.Writer) {
	prog := filepath.Base(os.Args[0])
	fmt.Fprintf(w, "Usage: %s <command> [flags] <url|path>...\n", prog)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  get     fetch resources and print a summary")
	fmt.Fprintln(w, "  watch   fetch resources in an interactive view")
	fmt.Fprintln(w, "  schema  print the config file JSON schema")
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config string")
	fmt.Fprintln(w, "    path to a YAML config file")
	fmt.Fprintln(w, "  -timeout duration")
	fmt.Fprintln(w, "    (get) cancel requests still pending after this long")
	fmt.Fprintln(w, "  -body")
	fmt.Fprintln(w, "    (get) print response bodies")
}
