// snekcore is a thin manual-invocation wrapper over pkg/sandbox.Run, built
// for local smoke-testing of the core; it is not the HTTP front end.
//
// Usage:
//
//	snekcore run -- -c "print(1)"
//	snekcore probe-cgroup
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/python-discord/snekbox/pkg/cgroup"
	"github.com/python-discord/snekbox/pkg/config"
	"github.com/python-discord/snekbox/pkg/jailerconfig"
	"github.com/python-discord/snekbox/pkg/sandbox"
)

var configPath string

func main() {
	log := logrus.New()

	root := &cobra.Command{
		Use:   "snekcore",
		Short: "Manual-invocation wrapper over the sandboxed code-execution core",
		Long: `snekcore drives pkg/sandbox.Run directly, without the HTTP front end,
for local smoke-testing of the jailer, cgroup, and memfs plumbing.`,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/snekbox/config.toml", "path to the service configuration file")

	root.AddCommand(runCmd(log), probeCgroupCmd(log))

	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func runCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run -- [py_args...]",
		Short: "Run one invocation of the sandboxed executor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, jailerCfg, entry, err := bootstrap(log)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			version := cgroup.ProbeVersion(jailerCfg, entry)
			orc, err := sandbox.New(cfg, jailerCfg, version, entry)
			if err != nil {
				return err
			}

			res, err := orc.Run(ctx, args, nil, nil)
			if err != nil {
				return err
			}

			if res.ReturnCode != nil {
				fmt.Printf("returncode=%d\n", *res.ReturnCode)
			} else {
				fmt.Println("returncode=<absent>")
			}
			fmt.Println(res.Stdout)
			for _, f := range res.Files {
				fmt.Printf("file: %s (%d bytes)\n", f.Path, f.Size())
			}
			return nil
		},
	}
}

func probeCgroupCmd(log *logrus.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "probe-cgroup",
		Short: "Print the detected cgroup hierarchy version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, jailerCfg, entry, err := bootstrap(log)
			if err != nil {
				return err
			}
			fmt.Println(cgroup.ProbeVersion(jailerCfg, entry))
			return nil
		},
	}
}

func bootstrap(log *logrus.Logger) (*config.Config, *jailerconfig.Config, *logrus.Entry, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading configuration: %w", err)
	}
	config.LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	entry := cfg.ApplyToLogger(log)

	jailerCfg, err := jailerconfig.Load(cfg.Jailer.ConfigPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading jailer configuration: %w", err)
	}

	return cfg, jailerCfg, entry, nil
}
