package artifact

import (
	"context"
	"fmt"

	"github.com/PolloDK/FK01-Encuestas/internal/config"
)

// Open builds the store selected by cfg.
func Open(ctx context.Context, cfg config.ArtifactsConfig) (Store, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocal(cfg.Dir)
	case "gcs":
		return NewGCS(ctx, cfg.Bucket, cfg.Prefix)
	default:
		return nil, fmt.Errorf("unknown artifact backend %q", cfg.Backend)
	}
}
