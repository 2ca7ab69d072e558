package main

import (
	"github.com/sells-group/sptp/internal/config"
	"github.com/sells-group/sptp/internal/fetcher"
	"github.com/sells-group/sptp/internal/overpass"
	"github.com/sells-group/sptp/internal/resilience"
)

// newMapFetcher builds the Overpass client from configuration.
func newMapFetcher(c config.OverpassConfig, radius int) *overpass.Client {
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: c.UserAgent,
		Timeout:   c.Timeout(),
	})
	retry := resilience.DefaultRetryConfig()
	if c.MaxAttempts > 0 {
		retry.MaxAttempts = c.MaxAttempts
	}
	return overpass.New(f,
		overpass.WithEndpoint(c.Endpoint),
		overpass.WithRadius(radius),
		overpass.WithRetry(retry),
	)
}
