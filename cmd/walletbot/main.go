package main

import (
	"log"

	corecmd "github.com/m3rciful/walletbot/core/cmd"
	"github.com/m3rciful/walletbot/wallet/app"
	"github.com/m3rciful/walletbot/wallet/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return config.Load(path)
		},
		Bootstrap: app.Bootstrap,
	})
	if err != nil {
		log.Fatalf("walletbot: %v", err)
	}
}
