// Copyright 2018 Bull S.A.S. Atos Technologies - Bull, Rue Jean Jaures, B.P.68, 78340, Les Clayes-sous-Bois, France.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package commands holds the sbatcher commands tree
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hpcforge/sbatcher/config"
	"github.com/hpcforge/sbatcher/jobs"
	"github.com/hpcforge/sbatcher/log"
)

// RootCmd is the root of sbatcher commands tree
var RootCmd = &cobra.Command{
	Use:   "sbatcher",
	Short: "A declarative Slurm batch job submitter",
	Long: `sbatcher turns a declarative job file into a Slurm batch submission.
It renders the batch script, submits it on a login node, watches the job
until completion and relays its captured outputs. Resource allocation and
scheduling stay entirely on the Slurm side.
`,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		err := cmd.Help()
		if err != nil {
			fmt.Print(err)
		}
	},
}

var cfgFile string

// noColor disables coloring output, shared by the commands rendering states
var noColor bool

func init() {
	setConfig()
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// enable ability to specify config file via flag
		viper.SetConfigFile(cfgFile)
	}
	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		log.Debugln("Using config file:", viper.ConfigFileUsed())
	} else {
		log.Debugln("Config not found... ")
	}
	log.SetDebug(viper.GetBool("debug"))
	if viper.GetBool("no_color") {
		noColor = true
		color.NoColor = true
	}
}

func setConfig() {
	RootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is /etc/sbatcher/config.sbatcher.yaml)")
	RootCmd.PersistentFlags().StringP("endpoint", "e", "", "endpoint of the cluster login node (format: [ssh://][<user>@]<host>[:<port>]), commands run locally when empty")
	RootCmd.PersistentFlags().StringP("user_name", "u", "", "user name used to connect to the login node")
	RootCmd.PersistentFlags().StringP("private_key", "k", "", "private key used to connect to the login node, given as a path or as the key content")
	RootCmd.PersistentFlags().StringP("password", "p", "", "password used to connect to the login node")
	RootCmd.PersistentFlags().StringP("working_directory", "w", "", "directory on the login node where jobs run, the user home by default")
	RootCmd.PersistentFlags().Bool("keep_artifacts", false, "keep the batch script and the uploaded artifacts on the login node once a job is done")
	RootCmd.PersistentFlags().Bool("no_color", false, "Disable coloring output")
	RootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logs")

	viper.BindPFlag("endpoint", RootCmd.PersistentFlags().Lookup("endpoint"))
	viper.BindPFlag("user_name", RootCmd.PersistentFlags().Lookup("user_name"))
	viper.BindPFlag("private_key", RootCmd.PersistentFlags().Lookup("private_key"))
	viper.BindPFlag("password", RootCmd.PersistentFlags().Lookup("password"))
	viper.BindPFlag("working_directory", RootCmd.PersistentFlags().Lookup("working_directory"))
	viper.BindPFlag("keep_job_remote_artifacts", RootCmd.PersistentFlags().Lookup("keep_artifacts"))
	viper.BindPFlag("no_color", RootCmd.PersistentFlags().Lookup("no_color"))
	viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))

	setDefaults()
}

func setDefaults() {
	//Environment Variables
	viper.SetEnvPrefix("sbatcher") // will be uppercased automatically - Become "SBATCHER_"
	viper.AutomaticEnv()           // read in environment variables that match
	viper.BindEnv("endpoint")
	viper.BindEnv("user_name")
	viper.BindEnv("private_key")
	viper.BindEnv("password")
	viper.BindEnv("working_directory")
	viper.BindEnv("default_job_name")
	viper.BindEnv("job_monitoring_time_interval")
	viper.BindEnv("keep_job_remote_artifacts")

	//Setting Defaults
	viper.SetDefault("endpoint", "")
	viper.SetDefault("working_directory", "")
	viper.SetDefault("job_monitoring_time_interval", config.DefaultJobMonitoringTimeInterval)
	viper.SetDefault("keep_job_remote_artifacts", config.DefaultKeepJobRemoteArtifacts)

	//Configuration file directories
	viper.SetConfigName("config.sbatcher") // name of config file (without extension)
	viper.AddConfigPath("/etc/sbatcher/")
	viper.AddConfigPath(".")
}

func getConfig() config.Configuration {
	configuration := config.Configuration{}
	configuration.Endpoint = viper.GetString("endpoint")
	configuration.UserName = viper.GetString("user_name")
	configuration.PrivateKey = viper.GetString("private_key")
	configuration.Password = viper.GetString("password")
	configuration.WorkingDirectory = viper.GetString("working_directory")
	configuration.DefaultJobName = viper.GetString("default_job_name")
	configuration.JobMonitoringTimeInterval = viper.GetDuration("job_monitoring_time_interval")
	configuration.KeepJobRemoteArtifacts = viper.GetBool("keep_job_remote_artifacts")
	configuration.NoColor = viper.GetBool("no_color")
	configuration.Telemetry.ServiceName = viper.GetString("telemetry.service_name")
	configuration.Telemetry.StatsdAddress = viper.GetString("telemetry.statsd_address")
	configuration.Telemetry.StatsiteAddress = viper.GetString("telemetry.statsite_address")
	configuration.Telemetry.DisableHostName = viper.GetBool("telemetry.disable_hostname")
	configuration.Telemetry.DisableGoRuntimeMetrics = viper.GetBool("telemetry.disable_go_runtime_metrics")
	configuration.Cluster = config.NewDynamicMapWithPayload(viper.GetStringMap("cluster"))
	return configuration
}

func errExit(msg interface{}) {
	fmt.Println("Error:", msg)
	os.Exit(1)
}

// interruptibleContext returns a context cancelled on SIGINT or SIGTERM, so
// long running commands stop cleanly.
func interruptibleContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-signalCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// coloredState renders a job state with the color of its meaning: green for
// the successful terminal state, yellow for a job still progressing, red
// otherwise.
func coloredState(colorize bool, state string) string {
	if !colorize {
		return state
	}
	switch {
	case jobs.IsSuccessState(state):
		return color.New(color.FgHiGreen, color.Bold).SprintFunc()(state)
	case jobs.IsTransientState(state):
		return color.New(color.FgHiYellow, color.Bold).SprintFunc()(state)
	default:
		return color.New(color.FgHiRed, color.Bold).SprintFunc()(state)
	}
}
