// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/ManuGH/capd/internal/client"
	"github.com/ManuGH/capd/internal/version"
)

// cli carries the settings shared by every subcommand.
type cli struct {
	v     *viper.Viper
	token string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "capctl",
		Short: "Control capture sessions on a capd server",
		Long: `capctl acquires lab targets on a capd server, starts and stops
stream captures, takes snapshots and downloads the results.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.initConfig(); err != nil {
				return err
			}
			return c.resolveToken(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "config file (default is $HOME/.config/capctl/config.yaml)")
	pf.StringP("server", "s", "http://localhost:8080", "capd server URL")
	pf.String("token", "", `bearer token; "-" prompts for it`)
	pf.StringP("user", "u", "", "user name on servers without tokens (default $USER)")
	pf.StringP("output", "o", "text", "output format: text or json")
	for _, name := range []string{"config", "server", "token", "user", "output"} {
		_ = c.v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		c.targetsCmd(),
		c.acquireCmd(),
		c.releaseCmd(),
		c.listCmd(),
		c.inventoryCmd(),
		c.startCmd(),
		c.getCmd(),
	)
	return root
}

func (c *cli) initConfig() error {
	if cfgFile := c.v.GetString("config"); cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
	} else {
		c.v.SetConfigName("config")
		c.v.SetConfigType("yaml")
		if dir, err := os.UserConfigDir(); err == nil {
			c.v.AddConfigPath(filepath.Join(dir, "capctl"))
		}
	}

	// CAPCTL_SERVER, CAPCTL_TOKEN, CAPCTL_USER ...
	c.v.SetEnvPrefix("CAPCTL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || c.v.GetString("config") != "" {
			return err
		}
	}
	return nil
}

// resolveToken reads the token from the terminal, without echo, when it is
// given as "-".
func (c *cli) resolveToken(cmd *cobra.Command) error {
	c.token = c.v.GetString("token")
	if c.token != "-" {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return errors.New(`--token "-" needs an interactive terminal`)
	}
	_, _ = fmt.Fprint(cmd.ErrOrStderr(), "Token: ")
	b, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	c.token = strings.TrimSpace(string(b))
	return nil
}

func (c *cli) client() *client.Client {
	var opts []client.Option
	if c.token != "" {
		opts = append(opts, client.WithToken(c.token))
	}
	user := c.v.GetString("user")
	if user == "" {
		user = os.Getenv("USER")
	}
	if user != "" {
		opts = append(opts, client.WithUser(user))
	}
	return client.New(c.v.GetString("server"), opts...)
}

func (c *cli) jsonOutput() bool {
	return strings.EqualFold(c.v.GetString("output"), "json")
}
