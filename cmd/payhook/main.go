package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/payhook/internal/checkout"
	"github.com/smallbiznis/payhook/internal/clock"
	"github.com/smallbiznis/payhook/internal/config"
	"github.com/smallbiznis/payhook/internal/observability"
	"github.com/smallbiznis/payhook/internal/onramp"
	"github.com/smallbiznis/payhook/internal/reconcile"
	"github.com/smallbiznis/payhook/internal/server"
	"github.com/smallbiznis/payhook/internal/swap"
	"github.com/smallbiznis/payhook/internal/webhook"
	"github.com/smallbiznis/payhook/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,

		checkout.Module,
		webhook.Module,
		reconcile.Module,
		onramp.Module,
		swap.Module,

		server.Module,
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
