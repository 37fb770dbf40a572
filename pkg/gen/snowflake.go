package gen

import (
	"fmt"

	"carematch/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("idgen", fx.Provide(ProvideIDGenerator))

// IDGenerator issues opaque, unique identifiers.
type IDGenerator interface {
	NewID() string
}

type SnowflakeNode struct {
	node *snowflake.Node
}

func NewSnowflakeNode(nodeID int64) (*SnowflakeNode, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to init snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeNode{node: node}, nil
}

func ProvideIDGenerator(cfg *config.Config) (IDGenerator, error) {
	return NewSnowflakeNode(cfg.NodeID)
}

func (s *SnowflakeNode) NewID() string {
	return s.node.Generate().String()
}
