package cmd

import (
	"context"
	"fmt"

	"barberbot/app/service/tools"
	"barberbot/app/util/mylog"

	"github.com/samber/do"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the config and list the tools offered to the assistant",
		RunE:  runCheck,
	}
}

func runCheck(cmd *cobra.Command, _ []string) error {
	mylog.Preinit()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	di := newInjector(ctx, cfg)
	defer di.Shutdown()

	registry, err := do.Invoke[*tools.Service](di)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config ok: listening on %s, debounce window %s (%s)\n",
		cfg.Server.Listen, cfg.Debounce.Window, cfg.Debounce.Mode)

	for _, schema := range registry.Schemas() {
		fmt.Fprintf(out, "tool %s: %s\n", schema.Name, schema.Description)
	}

	return nil
}
