package main

import (
	"fmt"
	"os"

	"github.com/danmuck/avlgate/internal/config"
	"github.com/spf13/pflag"
)

func main() {
	output := pflag.StringP("output", "o", "cmd/avlgated/config.toml", "output path for config template")
	validate := pflag.Bool("validate", false, "validate an existing config file")
	input := pflag.StringP("input", "i", "cmd/avlgated/config.toml", "config path for validation")
	force := pflag.Bool("force", false, "overwrite existing config file")
	pflag.Parse()

	if *validate {
		if _, err := config.Load(*input); err != nil {
			fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Validated avlgated config at %s\n", *input)
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote avlgated config template to %s\n", *output)
}
