package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// NumberSource hands out invoice numbers.
type NumberSource interface {
	Next(at time.Time) string
}

// SnowflakeNumbers formats invoice numbers as <prefix>-<year>-<id>, where id
// is a base36 snowflake. Numbers are unique across nodes with distinct ids.
type SnowflakeNumbers struct {
	node   *snowflake.Node
	prefix string
}

// NewSnowflakeNumbers accepts node ids 0..1023.
func NewSnowflakeNumbers(prefix string, nodeID int64) (*SnowflakeNumbers, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node %d: %w", nodeID, err)
	}
	if prefix == "" {
		prefix = "F"
	}
	return &SnowflakeNumbers{node: node, prefix: prefix}, nil
}

func (g *SnowflakeNumbers) Next(at time.Time) string {
	return fmt.Sprintf("%s-%d-%s", g.prefix, at.Year(), strings.ToUpper(g.node.Generate().Base36()))
}
