package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/openisp/netbill/internal/clock"
	"github.com/openisp/netbill/internal/config"
	"github.com/openisp/netbill/internal/migration"
	"github.com/openisp/netbill/internal/server"
	"github.com/openisp/netbill/pkg/db"
	"github.com/openisp/netbill/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// HTTP surface plus all domain modules it wires in.
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
