//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/rs/zerolog"

	"github.com/weegigs/wee-ledger-go/support"
)

func InitializeApp(cfg *support.Config, log *zerolog.Logger) (*App, func(), error) {
	panic(wire.Build(Live))
}
