package main

import (
	"encoding/json"
	"fmt"
	"os"

	solgate "github.com/solgatepay/solgate/pkg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	// Load config
	var configPath string
	var config solgate.Config

	LoadConfig(configPath, &config)

	// define root command
	rootCmd := &cobra.Command{
		Use: "solgate",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
			os.Exit(0)
		},
	}

	// Add flags for each configuration option
	rootCmd.PersistentFlags().StringVar(&config.Solgate.ServiceName, "service-name", "", "Service name")
	rootCmd.PersistentFlags().StringVar(&config.Solgate.Network, "network", "", "Solana network (key into [Node] config)")
	rootCmd.PersistentFlags().IntVar(&config.Monitor.PollSecs, "poll-secs", 0, "Seconds between detection polls")
	rootCmd.PersistentFlags().IntVar(&config.Monitor.SigLimit, "sig-limit", 0, "Signatures scanned per detection cycle")
	rootCmd.PersistentFlags().StringVar(&config.Settlement.HouseAddress, "house-address", "", "House payout address")
	rootCmd.PersistentFlags().Int64Var(&config.Settlement.HouseFeeBP, "house-fee-bp", 0, "House share in basis points")
	rootCmd.PersistentFlags().StringVar(&config.WebAPI.Port, "webapi-port", "", "Web API port")
	rootCmd.PersistentFlags().StringVar(&config.WebAPI.Bind, "webapi-bind", "", "Web API bind")
	rootCmd.PersistentFlags().StringVar(&config.Store.DBFile, "store-db-file", "", "Store DB file")
	// Bind flags to config fields
	viper.BindPFlags(rootCmd.PersistentFlags())

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the Solgate server",
		Run: func(cmd *cobra.Command, args []string) {
			Server(config)
		},
	}

	configCmd := &cobra.Command{
		Use:   "showconf",
		Short: "Print the config state and exit",
		Run: func(cmd *cobra.Command, args []string) {
			o, _ := json.MarshalIndent(config, ">", " ")
			fmt.Println(string(o))
			os.Exit(0)
		},
	}

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(configCmd)

	// Execute the Cobra command
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
	}
}

func LoadConfig(configPath string, config *solgate.Config) {

	configFileName, set := os.LookupEnv("SOLGATE_ENV")
	if set {
		viper.SetConfigName(configFileName)
	} else {
		viper.SetConfigName("config")
	}

	// Set config file name and search paths
	viper.SetConfigType("toml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/solgate/")
	viper.AddConfigPath("$HOME/.solgate")

	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("failed to find config file: ", err)
		os.Exit(1)
	}

	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("failed to unmarshal config: %s", err))
	}
}
