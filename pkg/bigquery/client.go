// Package bigquery connects to the analytics dataset. Tables are created by
// infrastructure tooling; the client only checks that they exist.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/handmade-market/pkg/config"
	"github.com/angelmondragon/handmade-market/pkg/logger"
)

const verifyTimeout = 10 * time.Second

var (
	ErrMissingProject = errors.New("bigquery: gcp project id is required")
	ErrMissingDataset = errors.New("bigquery: dataset is required")
	ErrMissingTable   = errors.New("bigquery: table name is required")
	ErrClosed         = errors.New("bigquery: client is not open")
)

// Client streams rows into the tables of one dataset.
type Client struct {
	bq      *bigquery.Client
	dataset *bigquery.Dataset
	tables  map[string]struct{}
}

// NewClient opens the dataset named in cfg and fails unless the dataset
// and the marketplace events table are reachable.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	datasetID := strings.TrimSpace(cfg.Dataset)
	table := strings.TrimSpace(cfg.MarketplaceEventsTable)
	switch {
	case project == "":
		return nil, ErrMissingProject
	case datasetID == "":
		return nil, ErrMissingDataset
	case table == "":
		return nil, ErrMissingTable
	}

	bq, err := bigquery.NewClient(ctx, project, gcp.ClientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: connect: %w", err)
	}
	c := &Client{
		bq:      bq,
		dataset: bq.Dataset(datasetID),
		tables:  map[string]struct{}{table: {}},
	}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": datasetID, "table": table}), "bigquery.ready")
	}
	return c, nil
}

// Ping reads the metadata of the dataset and every known table.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describe("dataset", c.dataset.DatasetID, err)
	}
	for name := range c.tables {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			return describe("table", name, err)
		}
	}
	return nil
}

// InsertRows streams rows into table. Rows must be bigquery.ValueSaver
// values or structs with bigquery tags.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return ErrClosed
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return ErrMissingTable
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func describe(kind, name string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
		return fmt.Errorf("bigquery: %s %q does not exist", kind, name)
	}
	return fmt.Errorf("bigquery: read %s %q: %w", kind, name, err)
}
