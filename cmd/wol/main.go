/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	crlog "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/gpillon/magicpacket/internal/wol"
)

const (
	version   = "v0.1.0"
	envPrefix = "WOL"

	configFlag = "config"
)

var (
	setupLog = crlog.Log.WithName("setup")
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		// No-op when PersistentPreRunE already installed the flag-configured logger
		crlog.SetLogger(zap.New(zap.WriteTo(os.Stderr)))
		setupLog.Error(err, "Command failed")
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := zap.Options{
		Development: false,
	}
	zapFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	opts.BindFlags(zapFlags)

	cmd := &cobra.Command{
		Use:   "wol",
		Short: "Build and inspect Wake-on-LAN magic packets",
		Long: `wol builds the 102-byte Wake-on-LAN magic packet for a MAC address
and listens for magic packets sent over UDP or raw Ethernet.

Every flag can also be set through the environment, e.g. WOL_PORTS=9,7.
The --config file may name hosts so they can be used instead of a MAC:

  hosts:
    nas: "52:54:00:12:34:56"`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			crlog.SetLogger(zap.New(zap.UseFlagOptions(&opts), zap.WriteTo(cmd.ErrOrStderr())))
			return nil
		},
	}
	cmd.PersistentFlags().StringP(configFlag, "c", "", "Path to a config file (YAML, JSON or TOML) with a hosts map")
	cmd.PersistentFlags().AddGoFlagSet(zapFlags)

	cmd.AddCommand(newPacketCommand(), newListenCommand())
	return cmd
}

// newConfig returns a viper instance reading WOL_* environment variables
func newConfig() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// loadDirectory reads the hosts map of the config file at path.
// An empty path yields an empty directory.
func loadDirectory(path string) (*wol.Directory, error) {
	dir := wol.NewDirectory()
	if path == "" {
		return dir, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := dir.Load(v.GetStringMapString("hosts")); err != nil {
		return nil, fmt.Errorf("invalid hosts in %s: %w", path, err)
	}

	setupLog.V(1).Info("Loaded host directory", "config", path, "hosts", dir.Len())
	return dir, nil
}
