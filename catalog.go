package explorer

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownDataset is returned when a dataset ID is not in the catalog.
var ErrUnknownDataset = errors.New("explorer: unknown dataset")

// Dataset describes one named archive a client can download: a primary URI
// plus fallback mirrors tried in order.
type Dataset struct {
	// ID is the stable archive identifier the index refers to.
	ID string `json:"id"`

	// URI is the primary location.
	URI string `json:"uri"`

	// Fallbacks are mirror URIs tried in order when the primary fails
	// transiently.
	Fallbacks []string `json:"fallbacks,omitempty"`

	// Size is the expected payload size in bytes, 0 if unknown.
	Size int64 `json:"size_bytes,omitempty"`

	// ContentHash is the expected hex SHA-256, empty to skip verification.
	ContentHash string `json:"content_hash,omitempty"`

	// SourceTag labels the engine/network that produced the games; it is
	// stamped on every record ingested from this dataset.
	SourceTag string `json:"source_tag,omitempty"`

	// Format names the record parser: "plain" or "pgn".
	Format string `json:"format,omitempty"`
}

// Catalog holds the datasets a client knows how to download.
type Catalog struct {
	datasets map[string]Dataset
}

// NewCatalog creates a catalog from the given datasets.
func NewCatalog(datasets ...Dataset) *Catalog {
	c := &Catalog{datasets: make(map[string]Dataset, len(datasets))}
	for _, d := range datasets {
		c.datasets[d.ID] = d
	}
	return c
}

// Add registers or replaces a dataset.
func (c *Catalog) Add(d Dataset) {
	c.datasets[d.ID] = d
}

// Get returns the dataset with the given ID.
func (c *Catalog) Get(id string) (Dataset, error) {
	d, ok := c.datasets[id]
	if !ok {
		return Dataset{}, fmt.Errorf("%w: %s", ErrUnknownDataset, id)
	}
	return d, nil
}

// IDs returns all dataset IDs, sorted.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.datasets))
	for id := range c.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
