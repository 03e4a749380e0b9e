package idgen

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	mu   sync.Mutex
	node *snowflake.Node
)

// Init 以指定节点号初始化雪花节点，多实例部署时节点号必须唯一
func Init(nodeID int64) error {
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}

	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

// Next 生成下一个 ID，未初始化时使用节点 1
func Next() int64 {
	mu.Lock()
	if node == nil {
		node, _ = snowflake.NewNode(1)
	}
	n := node
	mu.Unlock()

	return n.Generate().Int64()
}
