package idgen

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

// 流水号、送礼单号、事件 key 都是 前缀 + 秒级时间 + 雪花 ID。
// 雪花 ID 的节点号占 10 位，服务启动时必须通过 Init 配置，多实例部署时各实例不能相同。

const maxNode = 1<<10 - 1

var ErrInvalidNodeID = errors.New("雪花 ID 节点号必须在 1-1023 之间")

var (
	mu         sync.Mutex
	node       *snowflake.Node
	configured bool
)

// Init 设置节点号，服务启动时调用；节点号缺失或越界时返回错误
// 重复调用以第一次成功的为准
func Init(nodeID int64) error {
	if nodeID < 1 || nodeID > maxNode {
		return fmt.Errorf("%w: %d", ErrInvalidNodeID, nodeID)
	}
	mu.Lock()
	defer mu.Unlock()
	if configured {
		return nil
	}
	n, err := snowflake.NewNode(nodeID)
	if err != nil {
		return err
	}
	node = n
	configured = true
	return nil
}

// current 未调用 Init 时（单元测试、命令行工具）按进程号取节点号
func current() *snowflake.Node {
	mu.Lock()
	defer mu.Unlock()
	if node == nil {
		n, err := snowflake.NewNode(int64(os.Getpid()) & maxNode)
		if err != nil {
			log.Fatalf("初始化 ID 生成器失败: %v", err)
		}
		node = n
	}
	return node
}

// NextID 生成下一个ID
func NextID() int64 {
	return current().Generate().Int64()
}

func generate(prefix string) string {
	return fmt.Sprintf("%s%s%d", prefix, time.Now().Format("20060102150405"), NextID())
}

// GenerateEntryNo 生成流水号
// 格式：LED + 年月日时分秒 + 雪花ID
func GenerateEntryNo() string {
	return generate("LED")
}

// GenerateGiftNo 生成送礼单号
func GenerateGiftNo() string {
	return generate("GFT")
}

// GenerateEventKey 生成事件消息 key
func GenerateEventKey() string {
	return generate("EVT")
}
