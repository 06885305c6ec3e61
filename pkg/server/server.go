package server

import (
	"context"

	"github.com/toastate/toastbuild/internal/server"
	"github.com/toastate/toastbuild/internal/tlogger"
)

type Server interface {
	Start(ctx context.Context) error
	TriggerReload()
}

func NewServer(dir string, port int, override404 string, lg *tlogger.Logger) Server {
	return server.NewServer(dir, port, override404, lg)
}
