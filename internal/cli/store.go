package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/r9s-ai/cardq/internal/store"
	"github.com/r9s-ai/cardq/pkg/config"
)

type storeOptions struct {
	cfgPath string
	dir     string
}

func (o *storeOptions) bind(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&o.cfgPath, "config", "c", defaultConfigPath, "config yaml path")
	fs.StringVar(&o.dir, "dir", "", "use the fs store rooted at this directory instead of the configured store")
}

// open returns the configured store without change tracking.
func (o storeOptions) open() (*store.Store, error) {
	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		return nil, err
	}
	if o.dir != "" {
		cfg.Store.Driver = "fs"
		cfg.Store.Dir = o.dir
	}
	cfg.Store.Watch = false
	return store.Open(cfg.Store, zerolog.Nop())
}
