package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zj591227045/wxauto-mgt/internal/cryptobox"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and exit",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := loadSettings()
	setupLogging(cfg.LogLevel)

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

	fmt.Println("migrations applied")
	return nil
}
