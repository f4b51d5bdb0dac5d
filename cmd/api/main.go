package main

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/procure/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
