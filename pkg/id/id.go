// Package id issues time-ordered identifiers for connection attempts.
package id

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cespare/xxhash"
)

type Unique = int64

var generator = new(idGenerator)

type idGenerator struct {
	node *snowflake.Node
	once sync.Once
}

func (g *idGenerator) nextID() int64 {
	g.once.Do(func() {
		node, err := snowflake.NewNode(nodeID())
		if err != nil {
			panic(fmt.Sprintf("failed to initialize snowflake node: %s", err))
		}
		g.node = node
	})
	return g.node.Generate().Int64()
}

func New() Unique {
	return generator.nextID()
}

// Time is when id was issued.
func Time(id Unique) time.Time {
	return time.UnixMilli(snowflake.ID(id).Time())
}

// Hash folds parts into a stable 64-bit value.
func Hash(parts ...string) uint64 {
	return xxhash.Sum64String(strings.Join(parts, "\x00"))
}

// nodeID spreads concurrent clients on one machine over the snowflake
// node space.
func nodeID() int64 {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	return int64(Hash(host, strconv.Itoa(os.Getpid())) % 1024)
}
