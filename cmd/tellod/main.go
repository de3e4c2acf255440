package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tello-im/tello/internal/account"
	"github.com/tello-im/tello/internal/config"
	"github.com/tello-im/tello/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	accountFlag := flag.String("account", "", "account name (overrides config default)")
	flag.Parse()

	accountName := account.Resolve(*accountFlag)
	if err := account.ValidateName(accountName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Missing config is fine, the engine runs local-only on defaults.
	cfg, err := config.Load(account.ConfigPath())
	if err != nil {
		cfg = &config.Config{}
	}

	app := fx.New(
		daemon.Module(daemon.Params{AccountName: accountName, Config: cfg}),
	)

	app.Run()
}
