/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

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
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/profile"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/halo/InputParameters"
	"github.com/notargets/halo/driver"
)

// ExchangeCmd represents the exchange command
var ExchangeCmd = &cobra.Command{
	Use:   "exchange",
	Short: "Run halo exchange cycles over a decomposed mesh and verify every ghost cell",
	Long: `
Runs repeated halo exchanges with one goroutine per rank, over either an
in-process network or loopback TCP. Without an input file the built in
example is used. Flags override values from the input file.

halo exchange -I input.yaml --ranks 8 --transport tcp`,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var (
			ip  *InputParameters.InputParameters
			cfg driver.Config
			r   *driver.Report
		)
		if ip, err = processInput(cmd); err != nil {
			return
		}
		if cfg, err = newDriverConfig(cmd, ip); err != nil {
			return
		}
		ip.Print()
		stop, err := startProfile(viper.GetString("profile"), viper.GetString("profile-path"))
		if err != nil {
			return
		}
		defer stop()
		run := func() (err error) {
			r, err = driver.Run(context.Background(), cfg)
			return
		}
		if perfOn, _ := cmd.Flags().GetBool("perf"); perfOn {
			var instructions uint64
			if instructions, err = countInstructions(run); err == nil && instructions > 0 {
				fmt.Printf("%d\t= CPU instructions\n", instructions)
			}
		} else {
			err = run()
		}
		if r != nil {
			r.Print()
		}
		return
	},
}

func init() {
	rootCmd.AddCommand(ExchangeCmd)
	flags := ExchangeCmd.Flags()
	flags.StringP("inputFile", "I", "", "YAML file for input parameters like:\n\t- MeshNx, BlockNx, NGhost\n\t- NRanks, Cycles, Transport")
	flags.IntP("ranks", "r", 0, "number of ranks, overrides NRanks")
	flags.IntP("cycles", "c", 0, "number of exchange cycles, overrides Cycles")
	flags.IntP("nvar", "n", 0, "variables per cell, overrides NVar")
	flags.IntP("procLimit", "p", 0, "goroutines per rank for packing, overrides ProcLimit")
	flags.StringP("transport", "t", "", "local or tcp, overrides Transport")
	flags.String("host", "127.0.0.1", "listen host for the tcp transport")
	flags.String("profile", "", "write a profile of the run: cpu, mem, block or mutex")
	flags.String("profile-path", ".", "directory for profile output")
	flags.Bool("perf", false, "count CPU instructions of the run with perf events (linux)")
	for _, name := range []string{"transport", "host", "profile", "profile-path"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func processInput(cmd *cobra.Command) (ip *InputParameters.InputParameters, err error) {
	var (
		data      []byte
		inputFile string
	)
	if inputFile, err = cmd.Flags().GetString("inputFile"); err != nil {
		return
	}
	if len(inputFile) == 0 {
		log.Info().Msg("no input file (-I, --inputFile), using the example")
		fmt.Printf("Example File:%s\n", InputParameters.ExampleFile)
		data = []byte(InputParameters.ExampleFile)
	} else if data, err = os.ReadFile(inputFile); err != nil {
		return
	}
	ip = &InputParameters.InputParameters{}
	if err = ip.Parse(data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", inputFile, err)
	}
	return
}

// newDriverConfig applies flag overrides to the input parameters and converts
// them for the driver
func newDriverConfig(cmd *cobra.Command, ip *InputParameters.InputParameters) (cfg driver.Config, err error) {
	flags := cmd.Flags()
	for name, dst := range map[string]*int{
		"ranks":     &ip.NRanks,
		"cycles":    &ip.Cycles,
		"nvar":      &ip.NVar,
		"procLimit": &ip.ProcLimit,
	} {
		if flags.Changed(name) {
			if *dst, err = flags.GetInt(name); err != nil {
				return
			}
		}
	}
	if tr := viper.GetString("transport"); tr != "" {
		ip.Transport = tr
	}
	if cfg.Mesh, err = ip.MeshConfig(); err != nil {
		return
	}
	if cfg.Transport, err = driver.NewTransport(ip.Transport); err != nil {
		return
	}
	cfg.Nvar = ip.NVar
	cfg.Cycles = ip.Cycles
	cfg.ProcLimit = ip.ProcLimit
	cfg.Host = viper.GetString("host")
	cfg.Timeout = time.Duration(ip.Timeout * float64(time.Second))
	return
}

func startProfile(mode, path string) (stop func(), err error) {
	var opt func(*profile.Profile)
	switch mode {
	case "":
		return func() {}, nil
	case "cpu":
		opt = profile.CPUProfile
	case "mem":
		opt = profile.MemProfile
	case "block":
		opt = profile.BlockProfile
	case "mutex":
		opt = profile.MutexProfile
	default:
		return nil, fmt.Errorf("unknown profile %q, use cpu, mem, block or mutex", mode)
	}
	p := profile.Start(opt, profile.ProfilePath(path), profile.NoShutdownHook)
	return p.Stop, nil
}
