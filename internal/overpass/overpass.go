// Package overpass queries the Overpass API for the ways and nodes around a
// location and stores the OSM XML response in the cache directory.
package overpass

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sptp/internal/fetcher"
	"github.com/sells-group/sptp/internal/resilience"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "http://overpass-api.de/api/interpreter"

// DefaultRadius is the search radius in meters.
const DefaultRadius = 200

// Script returns the OSM script selecting every way around lat/lon together
// with its nodes, plus every node in the same radius.
func Script(lat, lon float64, radius int) string {
	around := fmt.Sprintf(`<around lat="%s" lon="%s" radius="%d"/>`,
		strconv.FormatFloat(lat, 'f', -1, 64), strconv.FormatFloat(lon, 'f', -1, 64), radius)
	return `<osm-script><union>` +
		`<query type="way">` + around + `</query>` +
		`<recurse type="way-node"/>` +
		`<query type="node">` + around + `</query>` +
		`</union><print/></osm-script>`
}

// Client downloads Overpass responses through a Fetcher.
type Client struct {
	fetcher  fetcher.Fetcher
	endpoint string
	radius   int
	retry    resilience.RetryConfig
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides DefaultEndpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithRadius overrides DefaultRadius.
func WithRadius(meters int) Option {
	return func(c *Client) { c.radius = meters }
}

// WithRetry overrides the retry policy. The default allows one retry of a
// transient failure.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// New creates a Client.
func New(f fetcher.Fetcher, opts ...Option) *Client {
	c := &Client{
		fetcher:  f,
		endpoint: DefaultEndpoint,
		radius:   DefaultRadius,
		retry:    resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = resilience.RetryLogger("overpass query")
	}
	return c
}

// Radius returns the configured search radius in meters.
func (c *Client) Radius() int { return c.radius }

// URL returns the interpreter URL for the script around lat/lon.
func (c *Client) URL(lat, lon float64) string {
	q := url.Values{"data": {Script(lat, lon, c.radius)}}
	return c.endpoint + "?" + q.Encode()
}

// FetchToFile downloads the map data around lat/lon into path and returns the
// number of bytes written. A file already at path is only replaced by a
// complete response.
func (c *Client) FetchToFile(ctx context.Context, lat, lon float64, path string) (int64, error) {
	u := c.URL(lat, lon)
	n, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (int64, error) {
		return c.fetcher.DownloadToFile(ctx, u, path)
	})
	if err != nil {
		return 0, eris.Wrapf(err, "overpass: fetch %s", path)
	}
	return n, nil
}
