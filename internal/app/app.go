package app

import (
	"go.uber.org/fx"

	"github.com/Additional-Code/procure/internal/cache"
	"github.com/Additional-Code/procure/internal/config"
	"github.com/Additional-Code/procure/internal/database"
	"github.com/Additional-Code/procure/internal/identity"
	"github.com/Additional-Code/procure/internal/logger"
	"github.com/Additional-Code/procure/internal/messaging"
	"github.com/Additional-Code/procure/internal/observability"
	repositoryorder "github.com/Additional-Code/procure/internal/repository/order"
	grpcserver "github.com/Additional-Code/procure/internal/server/grpc"
	httpserver "github.com/Additional-Code/procure/internal/server/http"
	serviceorder "github.com/Additional-Code/procure/internal/service/order"
	transporthttp "github.com/Additional-Code/procure/internal/transport/http"
	"github.com/Additional-Code/procure/internal/worker"
	workerorder "github.com/Additional-Code/procure/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	observability.Module,
	identity.Module,
	repositoryorder.Module,
	serviceorder.Module,
)

// HTTP wires the HTTP transport on top of the core modules.
var HTTP = fx.Options(
	Core,
	httpserver.Module,
	transporthttp.Module,
)

// GRPC wires the gRPC server (health service only for now) on top of core.
var GRPC = fx.Options(
	Core,
	grpcserver.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring (HTTP only).
var Module = HTTP
