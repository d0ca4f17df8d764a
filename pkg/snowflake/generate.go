package snowflake

import (
	"errors"
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once

	errInvalidMachineID   = errors.New("invalid snowflake machine id")
	errInvalidDataCenter  = errors.New("invalid snowflake data center id")
	errGeneratorUninitial = errors.New("snowflake generator is not initialized")
)

// Generator 干预记录 ID 生成器
type Generator struct {
	node *snowflake.Node
}

// NewGenerator machineID 与 dataCenterID 取值 0~31
func NewGenerator(machineID, dataCenterID int64) (*Generator, error) {
	if machineID < 0 || machineID > 31 {
		return nil, errInvalidMachineID
	}
	if dataCenterID < 0 || dataCenterID > 31 {
		return nil, errInvalidDataCenter
	}
	n, err := snowflake.NewNode((dataCenterID << 5) | machineID)
	if err != nil {
		return nil, err
	}
	return &Generator{node: n}, nil
}

func (g *Generator) NextID() (int64, error) {
	if g == nil || g.node == nil {
		return 0, errGeneratorUninitial
	}
	return g.node.Generate().Int64(), nil
}

// Init 初始化全局节点，供不方便注入的地方使用
func Init(machineID, dataCenterID int64) error {
	var initErr error

	once.Do(func() {
		g, err := NewGenerator(machineID, dataCenterID)
		if err != nil {
			initErr = err
			return
		}
		node = g.node
	})

	return initErr
}

// Default 返回全局生成器
func Default() *Generator {
	return &Generator{node: node}
}

func NextID() (int64, error) {
	return Default().NextID()
}
