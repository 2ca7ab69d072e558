package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sptp/internal/store"
)

// openStore opens and migrates the run store. It returns nil without a
// configured path unless required is set.
func openStore(ctx context.Context, required bool) (store.Store, error) {
	if cfg.Store.Path == "" {
		if required {
			return nil, eris.New("run store path is required (SPTP_STORE_PATH)")
		}
		return nil, nil
	}
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
