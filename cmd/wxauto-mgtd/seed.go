package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zj591227045/wxauto-mgt/internal/cryptobox"
	"github.com/zj591227045/wxauto-mgt/internal/seed"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load instances, platforms, and rules from a YAML seed file",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg := loadSettings()
	setupLogging(cfg.LogLevel)

	if cfg.SeedFile == "" {
		return configErr(fmt.Errorf("seed: --seed-file or WXAUTO_SEED_FILE is required"))
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return configErr(err)
	}

	var box *cryptobox.Box
	if cfg.MasterKey != "" {
		b, err := cryptobox.NewFromBase64(cfg.MasterKey)
		if err != nil {
			return configErr(err)
		}
		box = b
	}

	st, err := store.Open(cfg.DataDir+"/wxauto-mgt.db", box)
	if err != nil {
		return storeErr(err)
	}
	defer st.Close()
	if err := st.Init(); err != nil {
		return storeErr(err)
	}

	doc, err := seed.ParseFile(cfg.SeedFile)
	if err != nil {
		return configErr(err)
	}
	if err := seed.Apply(st, doc); err != nil {
		return runtimeErr(err)
	}

	fmt.Printf("seed applied: %d instances, %d platforms, %d rules\n",
		len(doc.Instances), len(doc.Platforms), len(doc.Rules))
	return nil
}
