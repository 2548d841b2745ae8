// Package vectorutils is the vector store utility package
package vectorutils

import (
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/vector"
	"github.com/quarryhq/quarry/pkg/vector/memory"
	"github.com/quarryhq/quarry/pkg/vector/qdrant"
	"github.com/quarryhq/quarry/pkg/vector/sqlitevec"
)

type NewStoreOpts struct {
	// ProviderType selects the backend: "memory", "sqlite" or "qdrant".
	ProviderType string

	// Target is provider-specific: a database path for sqlitevec, a
	// host:port pair for qdrant, unused for memory.
	Target string

	// APIKey authenticates against managed qdrant deployments.
	APIKey string

	// UseTLS enables TLS for qdrant connections.
	UseTLS bool

	Logger *zap.Logger
}

func NewStore(o *NewStoreOpts) (vector.Store, error) {
	switch o.ProviderType {
	case "memory":
		return memory.NewStore(), nil

	case "sqlite", "sqlitevec":
		return sqlitevec.NewStore(sqlitevec.Config{
			DBPath: o.Target,
		}, o.Logger)

	case "qdrant":
		host, portStr, err := net.SplitHostPort(o.Target)
		if err != nil {
			return nil, fmt.Errorf("qdrant target must be host:port, got %q: %w", o.Target, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("qdrant port must be numeric, got %q: %w", portStr, err)
		}
		return qdrant.NewStore(qdrant.Config{
			Host:   host,
			Port:   port,
			APIKey: o.APIKey,
			UseTLS: o.UseTLS,
		}, o.Logger)

	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
